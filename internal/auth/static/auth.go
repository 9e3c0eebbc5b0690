package static

import (
	"golang.org/x/crypto/bcrypt"
)

// Validate reports whether password matches the administrator hash.
func (a *Auth) Validate(password string) bool {
	// Empty passwords are compared too.
	if err := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)); err != nil {
		return false
	}
	return true
}
