package utils

import (
	"golang.org/x/crypto/bcrypt"
)

// hashCost is the bcrypt work factor. 12 keeps hashing well under a second
// on current hardware; stored hashes carry their own cost, so existing
// passwords keep verifying after a bump.
const hashCost = 12

// HashPassword hashes a plain password using bcrypt.
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), hashCost)
	return string(bytes), err
}

// CheckPassword compares plain password with hashed password.
func CheckPassword(plain, hashed string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain))
	return err == nil
}
