package accounts

import (
	"fmt"
	"regexp"
	"unicode"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/nyaruka/phonenumbers"
)

// nicknamePattern constrains nicknames to url-safe handles.
var nicknamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{3,50}$`)

// ValidateEmail checks the address format.
func ValidateEmail(email string) error {
	if err := validation.Validate(email, validation.Required, is.Email); err != nil {
		return NewValidationError("invalid email address", err)
	}
	return nil
}

// ValidateNickname checks the handle against the allowed pattern.
func ValidateNickname(nickname string) error {
	err := validation.Validate(nickname,
		validation.Required,
		validation.Match(nicknamePattern),
	)
	if err != nil {
		return NewValidationError("invalid nickname", err)
	}
	return nil
}

// ValidatePhone checks an optional phone number. Empty values pass.
func ValidatePhone(phone string) error {
	if phone == "" {
		return nil
	}

	num, err := phonenumbers.Parse(phone, "US")
	if err != nil {
		return NewValidationError("invalid phone number", err)
	}

	if !phonenumbers.IsValidNumber(num) {
		return NewValidationError("invalid phone number", nil)
	}

	return nil
}

// ValidatePassword applies the configured strength policy to a plaintext
// candidate. The plaintext is never logged or persisted.
func ValidatePassword(password string, policy PasswordPolicy) error {
	if len(password) < policy.MinLength {
		return NewValidationError(
			fmt.Sprintf("password must be at least %d characters", policy.MinLength), nil)
	}

	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			special = true
		}
	}

	if policy.RequireUppercase && !upper {
		return NewValidationError("password must contain an uppercase letter", nil)
	}
	if policy.RequireLowercase && !lower {
		return NewValidationError("password must contain a lowercase letter", nil)
	}
	if policy.RequireDigit && !digit {
		return NewValidationError("password must contain a digit", nil)
	}
	if policy.RequireSpecial && !special {
		return NewValidationError("password must contain a special character", nil)
	}

	return nil
}
