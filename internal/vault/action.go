package vault

import (
	"fmt"
	"strings"

	"github.com/visuluxe/visuluxe/internal/database/models"
)

// Action is one of the four vault operations. Request bodies carry the
// string form; ParseAction rejects anything else at the boundary so every
// switch over Action can be exhaustive.
type Action int

const (
	ActionEncrypt Action = iota
	ActionDecrypt
	ActionGetMasked
	ActionReEncryptLegacy
)

var actionNames = map[Action]string{
	ActionEncrypt:         "encrypt",
	ActionDecrypt:         "decrypt",
	ActionGetMasked:       "get_masked",
	ActionReEncryptLegacy: "re_encrypt_legacy",
}

func (a Action) String() string {
	return actionNames[a]
}

// ValidActions lists the accepted action strings, for error messages.
func ValidActions() []string {
	return []string{"encrypt", "decrypt", "get_masked", "re_encrypt_legacy"}
}

func ParseAction(s string) (Action, error) {
	for a, name := range actionNames {
		if s == name {
			return a, nil
		}
	}
	return 0, fmt.Errorf("unknown action %q, valid actions: %s", s, strings.Join(ValidActions(), ", "))
}

// KeyState is the explicit encryption state of a provider credential.
// StateOf is the only place that inspects KeyEncryptedAt.
type KeyState int

const (
	KeyStateNone      KeyState = iota // no key stored
	KeyStatePlaintext                 // legacy key, not yet migrated
	KeyStateEncrypted                 // base64(nonce || ciphertext || tag)
)

func StateOf(p *models.Provider) KeyState {
	switch {
	case p.APIKey == "":
		return KeyStateNone
	case p.KeyEncryptedAt != nil:
		return KeyStateEncrypted
	default:
		return KeyStatePlaintext
	}
}
