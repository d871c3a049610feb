package accounts

import (
	validation "github.com/go-ozzo/ozzo-validation"
)

// DefaultMaxLoginAttempts is the lockout threshold unless configured otherwise.
const DefaultMaxLoginAttempts = 5

// PasswordPolicy describes the password strength rules enforced on
// registration, administrative creation, and password reset.
type PasswordPolicy struct {
	MinLength        int
	RequireUppercase bool
	RequireLowercase bool
	RequireDigit     bool
	RequireSpecial   bool
}

// DefaultPasswordPolicy mirrors the policy the backend ships with.
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:        8,
		RequireUppercase: true,
		RequireLowercase: true,
		RequireDigit:     true,
		RequireSpecial:   true,
	}
}

// Config holds the account service options. It is passed explicitly at
// construction so tests can vary thresholds per case.
type Config struct {
	// MaxLoginAttempts is the number of consecutive failed logins after
	// which the account locks.
	MaxLoginAttempts int
	// PasswordPolicy is applied to every plaintext password we accept.
	PasswordPolicy PasswordPolicy
	// BcryptCost is the credential hashing work factor.
	BcryptCost int
}

// DefaultConfig returns a Config with production defaults.
func DefaultConfig() Config {
	return Config{
		MaxLoginAttempts: DefaultMaxLoginAttempts,
		PasswordPolicy:   DefaultPasswordPolicy(),
		BcryptCost:       DefaultBcryptCost,
	}
}

// Validate will run validation rules
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.MaxLoginAttempts, validation.Required, validation.Min(1)),
		validation.Field(&c.PasswordPolicy, validation.By(func(any) error {
			return validation.ValidateStruct(&c.PasswordPolicy,
				validation.Field(&c.PasswordPolicy.MinLength, validation.Required, validation.Min(1)),
			)
		})),
	)
}

func (c Config) withDefaults() Config {
	if c.MaxLoginAttempts <= 0 {
		c.MaxLoginAttempts = DefaultMaxLoginAttempts
	}
	if c.PasswordPolicy.MinLength <= 0 {
		c.PasswordPolicy = DefaultPasswordPolicy()
	}
	if c.BcryptCost <= 0 {
		c.BcryptCost = DefaultBcryptCost
	}
	return c
}
