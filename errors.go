package accounts

import (
	goerrors "github.com/goliatone/go-errors"
)

const (
	textCodeInvalidCredentials = "INVALID_CREDENTIALS"
	textCodeAccountNotFound    = "ACCOUNT_NOT_FOUND"
	textCodeEmailTaken         = "EMAIL_TAKEN"
	textCodeNicknameTaken      = "NICKNAME_TAKEN"
	textCodeWeakPassword       = "WEAK_PASSWORD"
	textCodeNotification       = "NOTIFICATION_FAILED"
)

// ErrInvalidCredentials is the single error returned for every login failure.
// Missing account, locked account, unverified email, and password mismatch
// are indistinguishable at the result level; the distinction lives in logs.
var ErrInvalidCredentials = goerrors.New("invalid credentials", goerrors.CategoryAuth).
	WithTextCode(textCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrAccountNotFound is returned when an operation targets a missing account.
var ErrAccountNotFound = goerrors.New("account not found", goerrors.CategoryNotFound).
	WithTextCode(textCodeAccountNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrEmailTaken is returned when the email is already registered.
var ErrEmailTaken = goerrors.New("email already registered", goerrors.CategoryConflict).
	WithTextCode(textCodeEmailTaken).
	WithCode(goerrors.CodeConflict)

// ErrNicknameTaken is returned when the nickname is already registered.
var ErrNicknameTaken = goerrors.New("nickname already registered", goerrors.CategoryConflict).
	WithTextCode(textCodeNicknameTaken).
	WithCode(goerrors.CodeConflict)

// ErrNoEmptyString is returned when hashing an empty password.
var ErrNoEmptyString = goerrors.New("value should not be an empty string", goerrors.CategoryValidation).
	WithTextCode(textCodeWeakPassword).
	WithCode(goerrors.CodeBadRequest)

// ErrMismatchedHashAndPassword is the bcrypt mismatch sentinel.
var ErrMismatchedHashAndPassword = goerrors.New("mismatched hash and password", goerrors.CategoryAuth).
	WithTextCode(textCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// NewValidationError builds a field-level validation error. The original
// payload validation error is preserved for the routing layer to format.
func NewValidationError(msg string, cause error) error {
	if cause == nil {
		return goerrors.New(msg, goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest)
	}
	return goerrors.Wrap(cause, goerrors.CategoryValidation, msg).
		WithCode(goerrors.CodeBadRequest)
}

// NewStoreError wraps a persistence failure. Retries are owned by the caller;
// we only classify.
func NewStoreError(cause error, msg string) error {
	return goerrors.Wrap(cause, goerrors.CategoryInternal, msg)
}

// NewNotificationError reports a dispatch failure after a committed mutation.
// It must never be conflated with the mutation having failed.
func NewNotificationError(cause error, template TemplateKind) error {
	return goerrors.Wrap(cause, goerrors.CategoryOperation, "notification dispatch failed").
		WithTextCode(textCodeNotification).
		WithMetadata(map[string]any{"template": string(template)})
}

// IsNotFound reports whether err represents a missing account.
func IsNotFound(err error) bool {
	return goerrors.IsNotFound(err)
}

// IsConflict reports whether err is a uniqueness conflict on email or nickname.
func IsConflict(err error) bool {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return rich.Category == goerrors.CategoryConflict
	}
	return false
}

// IsValidation reports whether err was rejected before touching the store.
func IsValidation(err error) bool {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return rich.Category == goerrors.CategoryValidation
	}
	return false
}

// IsNotification reports whether err is a post-commit notification failure.
func IsNotification(err error) bool {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return rich.TextCode == textCodeNotification
	}
	return false
}
