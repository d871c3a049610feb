package accounts

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Service orchestrates the account lifecycle: registration, verification,
// login with failed-attempt tracking and lockout, administrative unlock, and
// password reset. It owns no state beyond its collaborators; the store is the
// single source of truth.
type Service struct {
	repo     RepositoryManager
	cfg      Config
	tokens   TokenGenerator
	notifier Notifier
	logger   Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithNotifier sets the notification dispatcher.
func WithNotifier(n Notifier) ServiceOption {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(l Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTokenGenerator overrides the verification token source.
func WithTokenGenerator(g TokenGenerator) ServiceOption {
	return func(s *Service) {
		if g != nil {
			s.tokens = g
		}
	}
}

// NewService builds the account lifecycle service.
func NewService(repo RepositoryManager, cfg Config, opts ...ServiceOption) *Service {
	s := &Service{
		repo:     repo,
		cfg:      cfg.withDefaults(),
		tokens:   GenerateVerificationToken,
		notifier: NoopNotifier{},
		logger:   defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s
}

// Config returns the configuration the service was built with.
func (s *Service) Config() Config {
	return s.cfg
}

// RegisterInput carries the caller-settable fields for self registration.
type RegisterInput struct {
	Email          string `json:"email"`
	Nickname       string `json:"nickname"`
	Password       string `json:"password"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	Bio            string `json:"bio"`
	Phone          string `json:"phone_number"`
	ProfilePicture string `json:"profile_picture"`
}

// CreateInput is the administrative creation payload. Unlike self
// registration it may set the role, and may derive a deterministic ID
// from the email.
type CreateInput struct {
	RegisterInput
	Role      AccountRole `json:"role"`
	UseHashid bool        `json:"-"`
}

// Register creates an account through the self-service path. The account is
// created unverified with a fresh verification token, and the verification
// notification is dispatched after the creation transaction committed: a
// dispatch failure returns the created account together with a notification
// error, never a creation failure.
func (s *Service) Register(ctx context.Context, input RegisterInput) (*Account, error) {
	return s.createAccount(ctx, CreateInput{RegisterInput: input}, TemplateEmailVerification)
}

// Create is the administrative creation path. It funnels through the same
// validation and persistence logic as Register.
func (s *Service) Create(ctx context.Context, input CreateInput) (*Account, error) {
	if input.Role != "" {
		switch input.Role {
		case RoleStandard, RoleManager, RoleAdmin:
		default:
			return nil, goerrors.New("unknown role", goerrors.CategoryValidation).
				WithCode(goerrors.CodeBadRequest).
				WithMetadata(map[string]any{"role": input.Role})
		}
	}
	return s.createAccount(ctx, input, TemplateAccountCreated)
}

func (s *Service) createAccount(ctx context.Context, input CreateInput, kind TemplateKind) (*Account, error) {
	input.Email = strings.TrimSpace(input.Email)
	input.Nickname = strings.TrimSpace(input.Nickname)

	if err := ValidateEmail(input.Email); err != nil {
		return nil, err
	}
	if err := ValidatePassword(input.Password, s.cfg.PasswordPolicy); err != nil {
		return nil, err
	}
	if err := ValidatePhone(input.Phone); err != nil {
		return nil, err
	}
	if input.Nickname != "" {
		if err := ValidateNickname(input.Nickname); err != nil {
			return nil, err
		}
	}

	hash, err := HashPasswordCost(input.Password, s.cfg.BcryptCost)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	token, err := s.tokens()
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate verification token")
	}

	account := &Account{
		Email:             input.Email,
		Nickname:          input.Nickname,
		FirstName:         input.FirstName,
		LastName:          input.LastName,
		Bio:               input.Bio,
		Phone:             input.Phone,
		ProfilePicture:    input.ProfilePicture,
		PasswordHash:      hash,
		Role:              input.Role,
		EmailVerified:     false,
		VerificationToken: token,
	}

	if input.UseHashid {
		if id, err := hashid.NewUUID(input.Email); err == nil {
			account.ID = id
		}
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err = s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		// Conflicts are detected before the insert so the caller gets a
		// field-specific error; the unique index remains the arbiter under
		// races and surfaces as a conflict either way.
		if _, err := s.repo.Accounts().GetByEmailTx(ctx, tx, input.Email); err == nil {
			return ErrEmailTaken
		} else if !repository.IsRecordNotFound(err) {
			return NewStoreError(err, "failed to check email uniqueness")
		}

		if account.Nickname == "" {
			nickname, err := s.generateNickname(ctx, tx, input.Email)
			if err != nil {
				return err
			}
			account.Nickname = nickname
		} else {
			if _, err := s.repo.Accounts().GetByNicknameTx(ctx, tx, account.Nickname); err == nil {
				return ErrNicknameTaken
			} else if !repository.IsRecordNotFound(err) {
				return NewStoreError(err, "failed to check nickname uniqueness")
			}
		}

		created, err := s.repo.Accounts().CreateTx(ctx, tx, account)
		if err != nil {
			if IsUniqueViolation(err) {
				return ErrEmailTaken
			}
			return NewStoreError(err, "failed to create account")
		}

		account = created
		return nil
	})

	if err != nil {
		var rich *goerrors.Error
		if goerrors.As(err, &rich) {
			return nil, rich
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "account creation transaction failed")
	}

	// Dispatch happens outside the transaction so a slow or failing send
	// cannot hold a lock on the account row. The account is committed at
	// this point; a failure here is surfaced as a notification error next
	// to the created account.
	if err := s.notifier.Send(ctx, account, kind, map[string]any{
		"account_id": account.ID.String(),
		"token":      account.VerificationToken,
	}); err != nil {
		s.logger.Warn("account created but notification failed",
			"account_id", account.ID.String(), "error", err)
		return account, NewNotificationError(err, kind)
	}

	return account, nil
}

// Login authenticates an email/password pair. Every failure mode returns
// ErrInvalidCredentials: the caller cannot distinguish a missing account
// from a wrong password, a locked account, or an unverified email. The
// distinction is observable only through logging.
//
// Locked accounts fail before the password is compared, and neither a locked
// nor an unverified account mutates the failure counter. A mismatch
// increments the counter and engages the lock in a single atomic statement
// once the configured threshold is reached.
func (s *Service) Login(ctx context.Context, email, password string) (*Account, error) {
	account, err := s.repo.Accounts().GetByEmail(ctx, email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			s.logger.Info("login failed: unknown email", "email", email)
			return nil, ErrInvalidCredentials
		}
		return nil, NewStoreError(err, "failed to retrieve account during login")
	}

	if account.IsLocked {
		s.logger.Info("login failed: account locked", "account_id", account.ID.String())
		return nil, ErrInvalidCredentials
	}

	if !account.EmailVerified {
		s.logger.Info("login failed: email not verified", "account_id", account.ID.String())
		return nil, ErrInvalidCredentials
	}

	if err := ComparePasswordAndHash(password, account.PasswordHash); err != nil {
		updated, terr := s.repo.Accounts().TrackFailedLogin(ctx, account.ID, s.cfg.MaxLoginAttempts)
		if terr != nil && !repository.IsRecordNotFound(terr) {
			return nil, NewStoreError(terr, "failed to track login attempt")
		}

		if updated != nil && updated.IsLocked {
			s.logger.Warn("account locked after repeated failures",
				"account_id", account.ID.String(),
				"attempts", updated.FailedLoginAttempts)
			s.notifyAsync(account, TemplateAccountLocked, nil)
		} else {
			s.logger.Info("login failed: password mismatch", "account_id", account.ID.String())
		}

		return nil, ErrInvalidCredentials
	}

	updated, err := s.repo.Accounts().TrackSuccessfulLogin(ctx, account.ID)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			// Account deleted between lookup and counter reset.
			return nil, ErrInvalidCredentials
		}
		return nil, NewStoreError(err, "failed to track successful login")
	}

	return updated, nil
}

// VerifyEmail flips the account to verified when the supplied token matches
// the stored verification token. Any mismatch (missing account, already
// verified, token differs) returns false and mutates nothing, so retries
// with a stale token are safe.
func (s *Service) VerifyEmail(ctx context.Context, id uuid.UUID, token string) (bool, error) {
	if token == "" {
		return false, nil
	}

	ok, err := s.repo.Accounts().ConfirmEmail(ctx, id, token)
	if err != nil {
		return false, NewStoreError(err, "failed to verify email")
	}

	if ok {
		s.logger.Info("email verified", "account_id", id.String())
	}

	return ok, nil
}

// IsAccountLocked reports whether the account behind email is locked.
// A missing account reads as not locked; existence checks belong to lookup.
func (s *Service) IsAccountLocked(ctx context.Context, email string) (bool, error) {
	account, err := s.repo.Accounts().GetByEmail(ctx, email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return false, nil
		}
		return false, NewStoreError(err, "failed to retrieve account")
	}

	return account.IsLocked, nil
}

// Unlock clears the lock flag and zeroes the failure counter in one atomic
// statement. It reports false for missing accounts and is otherwise
// idempotent: unlocking an unlocked account is a no-op success.
func (s *Service) Unlock(ctx context.Context, id uuid.UUID) (bool, error) {
	ok, err := s.repo.Accounts().Unlock(ctx, id)
	if err != nil {
		return false, NewStoreError(err, "failed to unlock account")
	}

	if ok {
		s.logger.Info("account unlocked", "account_id", id.String())
	}

	return ok, nil
}

// ResetPassword overwrites the credential hash with a hash of newPassword.
// It does not require the old password — the reset-token exchange happens
// out of band — and deliberately leaves the lock flag and failure counter
// alone; unlocking is a separate administrative action.
func (s *Service) ResetPassword(ctx context.Context, id uuid.UUID, newPassword string) (bool, error) {
	if err := ValidatePassword(newPassword, s.cfg.PasswordPolicy); err != nil {
		return false, err
	}

	hash, err := HashPasswordCost(newPassword, s.cfg.BcryptCost)
	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	ok, err := s.repo.Accounts().ResetPassword(ctx, id, hash)
	if err != nil {
		return false, NewStoreError(err, "failed to reset password")
	}

	if ok {
		s.logger.Info("password reset", "account_id", id.String())
		if account, err := s.repo.Accounts().GetByID(ctx, id.String()); err == nil {
			s.notifyAsync(account, TemplatePasswordReset, nil)
		}
	}

	return ok, nil
}

// notifyAsync dispatches best-effort notifications that have no caller to
// report to. Errors are logged, never returned.
func (s *Service) notifyAsync(account *Account, kind TemplateKind, data map[string]any) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second*30)
		defer cancel()
		if err := s.notifier.Send(ctx, account, kind, data); err != nil {
			s.logger.Warn("notification dispatch failed",
				"template", string(kind),
				"account_id", account.ID.String(),
				"error", err)
		}
	}()
}

// generateNickname derives a handle from the email local part plus a short
// random suffix, retrying on collision.
func (s *Service) generateNickname(ctx context.Context, tx bun.IDB, email string) (string, error) {
	base := email
	if at := strings.Index(email, "@"); at > 0 {
		base = email[:at]
	}
	base = sanitizeNickname(base)

	for i := 0; i < 5; i++ {
		candidate := base + "-" + uuid.NewString()[:8]
		_, err := s.repo.Accounts().GetByNicknameTx(ctx, tx, candidate)
		if repository.IsRecordNotFound(err) {
			return candidate, nil
		}
		if err != nil {
			return "", NewStoreError(err, "failed to check nickname uniqueness")
		}
	}

	return "", goerrors.New("unable to generate a unique nickname", goerrors.CategoryInternal)
}

func sanitizeNickname(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		}
	}
	if b.Len() < 3 {
		return "account"
	}
	return b.String()
}
