package crypto

// maskPrefix is the fixed display placeholder: eight bullet characters.
const maskPrefix = "••••••••"

// Mask returns a display-safe rendering of a secret: eight bullets followed
// by the last four characters. Secrets shorter than four characters return
// the bare placeholder so the suffix cannot reconstruct them.
func Mask(secret string) string {
	runes := []rune(secret)
	if len(runes) < 4 {
		return maskPrefix
	}
	return maskPrefix + string(runes[len(runes)-4:])
}
