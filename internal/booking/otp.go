package booking

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"
)

const otpDigits = 6

// GenerateOTP produces a cryptographically random 6-digit code and the hash
// under which it is stored. The plaintext code leaves this package only to
// be read to the caller; rows keep the hash.
func GenerateOTP() (code, hash string, err error) {
	max := big.NewInt(1)
	for i := 0; i < otpDigits; i++ {
		max.Mul(max, big.NewInt(10))
	}

	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", "", fmt.Errorf("generate otp: %w", err)
	}

	code = fmt.Sprintf("%0*d", otpDigits, n)
	return code, HashOTP(code), nil
}

// HashOTP returns the storage form of a code.
func HashOTP(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// VerifyOTP compares a submitted code against a stored hash in constant
// time. An empty hash (already consumed) never matches.
func VerifyOTP(storedHash, submitted string) bool {
	if storedHash == "" {
		return false
	}
	submittedHash := HashOTP(submitted)
	return subtle.ConstantTimeCompare([]byte(storedHash), []byte(submittedHash)) == 1
}
