package jam

import (
	"crypto/rand"
	"math/big"
	"strings"
)

// CodeLength is the length of join and access codes.
const CodeLength = 6

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateCode returns a random 6-character join code from [A-Z0-9].
// Uniqueness among active sessions is the caller's responsibility.
func GenerateCode() string {
	var b strings.Builder
	b.Grow(CodeLength)
	for i := 0; i < CodeLength; i++ {
		b.WriteByte(codeAlphabet[randIndex(len(codeAlphabet))])
	}
	return b.String()
}

// NormalizeCode canonicalizes a user-entered join code. Codes are compared
// case-insensitively.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidCode reports whether code (after normalization) has the join code
// format.
func ValidCode(code string) bool {
	code = NormalizeCode(code)
	if len(code) != CodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if !strings.ContainsRune(codeAlphabet, rune(code[i])) {
			return false
		}
	}
	return true
}

func randIndex(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		// crypto/rand only fails when the OS entropy source is broken
		return 0
	}
	return int(v.Int64())
}
