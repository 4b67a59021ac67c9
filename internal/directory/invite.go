package directory

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// GenerateInvitationCode returns a fresh code of the form INV-XXXXXXXX.
func GenerateInvitationCode() string {
	return "INV-" + strings.ToUpper(uuid.NewString()[:8])
}

// EncryptInvitationCode derives the seeded form of code: ENC- followed
// by the first 16 hex digits of SHA-256(code+seed), upper-case.
func EncryptInvitationCode(code, seed string) string {
	sum := sha256.Sum256([]byte(code + seed))
	return "ENC-" + strings.ToUpper(hex.EncodeToString(sum[:])[:16])
}
