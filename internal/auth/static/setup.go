package static

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

type Config struct {
	// PasswordHash is the bcrypt hash of the administrator password.
	PasswordHash string
}

type Auth struct {
	passwordHash []byte
}

func NewAuthFromConfig(config *Config) (*Auth, error) {
	if config == nil || config.PasswordHash == "" {
		return nil, fmt.Errorf("no administrator password hash configured")
	}
	hash := []byte(config.PasswordHash)
	if _, err := bcrypt.Cost(hash); err != nil {
		return nil, fmt.Errorf("invalid administrator password hash: %w", err)
	}
	return &Auth{passwordHash: hash}, nil
}

// HashPassword returns a bcrypt hash suitable for Config.PasswordHash.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}
