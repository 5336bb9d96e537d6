package users

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"golang.org/x/crypto/bcrypt"
)

// Verifier is the credential check the servers consult.
type Verifier interface {
	// ValidUser reports whether username may log in at all
	ValidUser(username string) bool
	// Verify reports whether password is correct for username
	Verify(username, password string) bool
}

var _ Verifier = &StaticUser{}

// StaticUser is a single fixed account. The password is kept only as a bcrypt hash.
type StaticUser struct {
	Username     string
	passwordHash []byte
}

// NewStaticUser hashes password with bcrypt's default cost.
func NewStaticUser(username, password string) (*StaticUser, error) {
	return NewStaticUserCost(username, password, bcrypt.DefaultCost)
}

// NewStaticUserCost hashes password with the given bcrypt cost.
func NewStaticUserCost(username, password string, cost int) (*StaticUser, error) {
	if username == "" {
		return nil, errors.New("username is required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return nil, fmt.Errorf("error hashing password: %w", err)
	}
	return &StaticUser{Username: username, passwordHash: hash}, nil
}

// NewStaticUserHash uses an existing bcrypt hash, e.g. from configuration.
func NewStaticUserHash(username, hash string) (*StaticUser, error) {
	if username == "" {
		return nil, errors.New("username is required")
	}
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, fmt.Errorf("error parsing password hash: %w", err)
	}
	return &StaticUser{Username: username, passwordHash: []byte(hash)}, nil
}

// ValidUser reports whether username is the configured one
func (u *StaticUser) ValidUser(username string) bool {
	return subtle.ConstantTimeCompare([]byte(username), []byte(u.Username)) == 1
}

// Verify checks both the username and the password
func (u *StaticUser) Verify(username, password string) bool {
	if !u.ValidUser(username) {
		return false
	}
	return bcrypt.CompareHashAndPassword(u.passwordHash, []byte(password)) == nil
}
