package vault

import (
	"errors"

	"github.com/visuluxe/visuluxe/pkg/crypto"
)

var (
	// ErrNotConfigured means the server has no encryption key; every vault
	// action fails with it until ENCRYPTION_KEY is set.
	ErrNotConfigured = errors.New("encryption key not configured")

	ErrProviderNotFound = errors.New("provider not found")
	ErrNoKey            = errors.New("no API key stored for provider")

	// ErrRateLimited is returned when the actor's decrypt count over the
	// trailing window has reached the limit.
	ErrRateLimited = errors.New("decrypt rate limit exceeded")

	// ErrStepUpFailed covers any password re-verification failure: wrong
	// password, inactive account, or verifier error. The decrypt makes no
	// further progress and nothing is audited.
	ErrStepUpFailed = errors.New("password verification failed")

	ErrDecryptionFailed = crypto.ErrDecryptionFailed
)
