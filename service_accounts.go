package accounts

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UpdateInput carries the mutable profile fields. Nil means "leave as is".
type UpdateInput struct {
	Email          *string      `json:"email"`
	Nickname       *string      `json:"nickname"`
	FirstName      *string      `json:"first_name"`
	LastName       *string      `json:"last_name"`
	Bio            *string      `json:"bio"`
	Phone          *string      `json:"phone_number"`
	ProfilePicture *string      `json:"profile_picture"`
	Role           *AccountRole `json:"role"`
}

func (in UpdateInput) isEmpty() bool {
	return in.Email == nil && in.Nickname == nil && in.FirstName == nil &&
		in.LastName == nil && in.Bio == nil && in.Phone == nil &&
		in.ProfilePicture == nil && in.Role == nil
}

// GetByID fetches an account by identifier.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	account, err := s.repo.Accounts().GetByID(ctx, id.String())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrAccountNotFound
		}
		return nil, NewStoreError(err, "failed to retrieve account")
	}
	return account, nil
}

// GetByEmail fetches an account by email, case-insensitively.
func (s *Service) GetByEmail(ctx context.Context, email string) (*Account, error) {
	account, err := s.repo.Accounts().GetByEmail(ctx, email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrAccountNotFound
		}
		return nil, NewStoreError(err, "failed to retrieve account")
	}
	return account, nil
}

// GetByNickname fetches an account by nickname.
func (s *Service) GetByNickname(ctx context.Context, nickname string) (*Account, error) {
	account, err := s.repo.Accounts().GetByNickname(ctx, nickname)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrAccountNotFound
		}
		return nil, NewStoreError(err, "failed to retrieve account")
	}
	return account, nil
}

// Update mutates the profile fields set in input. Validation failures and
// uniqueness conflicts are rejected before any write; a missing account is a
// distinct not-found outcome.
func (s *Service) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*Account, error) {
	if input.isEmpty() {
		return nil, NewValidationError("no fields to update", nil)
	}

	if input.Email != nil {
		*input.Email = strings.TrimSpace(*input.Email)
		if err := ValidateEmail(*input.Email); err != nil {
			return nil, err
		}
	}
	if input.Nickname != nil {
		*input.Nickname = strings.TrimSpace(*input.Nickname)
		if err := ValidateNickname(*input.Nickname); err != nil {
			return nil, err
		}
	}
	if input.Phone != nil {
		if err := ValidatePhone(*input.Phone); err != nil {
			return nil, err
		}
	}
	if input.Role != nil {
		switch *input.Role {
		case RoleStandard, RoleManager, RoleAdmin:
		default:
			return nil, goerrors.New("unknown role", goerrors.CategoryValidation).
				WithCode(goerrors.CodeBadRequest).
				WithMetadata(map[string]any{"role": *input.Role})
		}
	}

	var updated *Account

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		current, err := s.repo.Accounts().GetByIDTx(ctx, tx, id.String())
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrAccountNotFound
			}
			return NewStoreError(err, "failed to retrieve account")
		}

		if input.Email != nil && !strings.EqualFold(*input.Email, current.Email) {
			if other, err := s.repo.Accounts().GetByEmailTx(ctx, tx, *input.Email); err == nil && other.ID != id {
				return ErrEmailTaken
			} else if err != nil && !repository.IsRecordNotFound(err) {
				return NewStoreError(err, "failed to check email uniqueness")
			}
			current.Email = *input.Email
		}

		if input.Nickname != nil && *input.Nickname != current.Nickname {
			if other, err := s.repo.Accounts().GetByNicknameTx(ctx, tx, *input.Nickname); err == nil && other.ID != id {
				return ErrNicknameTaken
			} else if err != nil && !repository.IsRecordNotFound(err) {
				return NewStoreError(err, "failed to check nickname uniqueness")
			}
			current.Nickname = *input.Nickname
		}

		if input.FirstName != nil {
			current.FirstName = *input.FirstName
		}
		if input.LastName != nil {
			current.LastName = *input.LastName
		}
		if input.Bio != nil {
			current.Bio = *input.Bio
		}
		if input.Phone != nil {
			current.Phone = *input.Phone
		}
		if input.ProfilePicture != nil {
			current.ProfilePicture = *input.ProfilePicture
		}
		if input.Role != nil {
			current.Role = *input.Role
		}

		now := time.Now()
		current.UpdatedAt = &now

		updated, err = s.repo.Accounts().UpdateTx(ctx, tx, current, repository.UpdateByID(id.String()))
		if err != nil {
			if IsUniqueViolation(err) {
				return ErrEmailTaken
			}
			return NewStoreError(err, "failed to update account")
		}

		return nil
	})

	if err != nil {
		var rich *goerrors.Error
		if goerrors.As(err, &rich) {
			return nil, rich
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "account update transaction failed")
	}

	return updated, nil
}

// Delete removes the account. Missing accounts report false, not an error.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	ok, err := s.repo.Accounts().DeleteByID(ctx, id)
	if err != nil {
		return false, NewStoreError(err, "failed to delete account")
	}

	if ok {
		s.logger.Info("account deleted", "account_id", id.String())
	}

	return ok, nil
}

// List returns a stable page of accounts. An out-of-range skip yields an
// empty page, never an error.
func (s *Service) List(ctx context.Context, skip, limit int) ([]*Account, error) {
	if skip < 0 {
		skip = 0
	}

	records, err := s.repo.Accounts().List(ctx, skip, limit)
	if err != nil {
		return nil, NewStoreError(err, "failed to list accounts")
	}

	return records, nil
}

// Count returns the total number of accounts.
func (s *Service) Count(ctx context.Context) (int, error) {
	n, err := s.repo.Accounts().Count(ctx)
	if err != nil {
		return 0, NewStoreError(err, "failed to count accounts")
	}
	return n, nil
}
