package accounts

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AccountRole is the account's role
type AccountRole = string

const (
	// RoleStandard is a regular account (i.e. owns its profile)
	RoleStandard AccountRole = "standard"
	// RoleManager is a manager (i.e. list, inspect accounts)
	RoleManager AccountRole = "manager"
	// RoleAdmin is an admin role (i.e. create, unlock, delete accounts)
	RoleAdmin AccountRole = "admin"
)

// Account is the account model
type Account struct {
	bun.BaseModel       `bun:"table:accounts,alias:acc"`
	ID                  uuid.UUID   `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Role                AccountRole `bun:"role,notnull" json:"role,omitempty"`
	Email               string      `bun:"email,notnull,unique" json:"email,omitempty"`
	Nickname            string      `bun:"nickname,notnull,unique" json:"nickname,omitempty"`
	FirstName           string      `bun:"first_name" json:"first_name,omitempty"`
	LastName            string      `bun:"last_name" json:"last_name,omitempty"`
	Bio                 string      `bun:"bio" json:"bio,omitempty"`
	Phone               string      `bun:"phone_number" json:"phone_number,omitempty"`
	ProfilePicture      string      `bun:"profile_picture" json:"profile_picture,omitempty"`
	PasswordHash        string      `bun:"password_hash,notnull" json:"-"`
	EmailVerified       bool        `bun:"is_email_verified" json:"is_email_verified,omitempty"`
	VerificationToken   string      `bun:"verification_token" json:"-"`
	FailedLoginAttempts int         `bun:"failed_login_attempts" json:"failed_login_attempts,omitempty"`
	IsLocked            bool        `bun:"is_locked" json:"is_locked,omitempty"`
	LoginAttemptAt      *time.Time  `bun:"login_attempt_at" json:"login_attempt_at,omitempty"`
	LoggedInAt          *time.Time  `bun:"loggedin_at" json:"loggedin_at,omitempty"`
	CreatedAt           *time.Time  `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt           *time.Time  `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// EnsureRole defaults the role for records created without one.
func (a *Account) EnsureRole() {
	if a.Role == "" {
		a.Role = RoleStandard
	}
}

// CanLogin reports whether the account passes the pre-password gates:
// not locked, email verified.
func (a *Account) CanLogin() bool {
	return !a.IsLocked && a.EmailVerified
}

// PublicAccount is the wire representation we hand to the routing layer.
// It never carries the password hash or the verification token.
type PublicAccount struct {
	ID             uuid.UUID   `json:"id"`
	Role           AccountRole `json:"role"`
	Email          string      `json:"email"`
	Nickname       string      `json:"nickname"`
	FirstName      string      `json:"first_name,omitempty"`
	LastName       string      `json:"last_name,omitempty"`
	Bio            string      `json:"bio,omitempty"`
	Phone          string      `json:"phone_number,omitempty"`
	ProfilePicture string      `json:"profile_picture,omitempty"`
	EmailVerified  bool        `json:"is_email_verified"`
	IsLocked       bool        `json:"is_locked"`
	CreatedAt      *time.Time  `json:"created_at,omitempty"`
	UpdatedAt      *time.Time  `json:"updated_at,omitempty"`
}

// Public projects the account into its wire representation.
func (a *Account) Public() *PublicAccount {
	if a == nil {
		return nil
	}
	return &PublicAccount{
		ID:             a.ID,
		Role:           a.Role,
		Email:          a.Email,
		Nickname:       a.Nickname,
		FirstName:      a.FirstName,
		LastName:       a.LastName,
		Bio:            a.Bio,
		Phone:          a.Phone,
		ProfilePicture: a.ProfilePicture,
		EmailVerified:  a.EmailVerified,
		IsLocked:       a.IsLocked,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}
