package accounts_test

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"time"

	accounts "github.com/goliatone/go-accounts"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type testLogger struct{}

func (testLogger) Debug(string, ...any) {}
func (testLogger) Info(string, ...any)  {}
func (testLogger) Warn(string, ...any)  {}
func (testLogger) Error(string, ...any) {}

// stubAccounts is an in-memory Accounts store with the same mutation
// semantics as the SQL-backed repository: counter increments decide the lock
// flag on the post-increment value, and email confirmation is a
// compare-and-swap on the stored token.
type stubAccounts struct {
	accounts.Accounts

	mu    sync.Mutex
	byID  map[uuid.UUID]*accounts.Account
	order []uuid.UUID

	getErr    error
	createErr error
	updateErr error
	trackErr  error
}

func newStubAccounts() *stubAccounts {
	return &stubAccounts{byID: map[uuid.UUID]*accounts.Account{}}
}

func (s *stubAccounts) add(record *accounts.Account) *accounts.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insert(record)
}

func (s *stubAccounts) insert(record *accounts.Account) *accounts.Account {
	record.EnsureRole()
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	now := time.Now()
	if record.CreatedAt == nil {
		record.CreatedAt = &now
	}
	if record.UpdatedAt == nil {
		record.UpdatedAt = &now
	}
	s.byID[record.ID] = record
	s.order = append(s.order, record.ID)
	return cloneAccount(record)
}

func cloneAccount(a *accounts.Account) *accounts.Account {
	if a == nil {
		return nil
	}
	clone := *a
	return &clone
}

func notFound(meta map[string]any) error {
	return repository.NewRecordNotFound().WithMetadata(meta)
}

func (s *stubAccounts) findByEmail(email string) *accounts.Account {
	for _, id := range s.order {
		if record, ok := s.byID[id]; ok && strings.EqualFold(record.Email, strings.TrimSpace(email)) {
			return record
		}
	}
	return nil
}

func (s *stubAccounts) findByNickname(nickname string) *accounts.Account {
	for _, id := range s.order {
		if record, ok := s.byID[id]; ok && record.Nickname == strings.TrimSpace(nickname) {
			return record
		}
	}
	return nil
}

func (s *stubAccounts) GetByEmail(ctx context.Context, email string) (*accounts.Account, error) {
	return s.GetByEmailTx(ctx, nil, email)
}

func (s *stubAccounts) GetByEmailTx(_ context.Context, _ bun.IDB, email string) (*accounts.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	if record := s.findByEmail(email); record != nil {
		return cloneAccount(record), nil
	}
	return nil, notFound(map[string]any{"email": email})
}

func (s *stubAccounts) GetByNickname(ctx context.Context, nickname string) (*accounts.Account, error) {
	return s.GetByNicknameTx(ctx, nil, nickname)
}

func (s *stubAccounts) GetByNicknameTx(_ context.Context, _ bun.IDB, nickname string) (*accounts.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	if record := s.findByNickname(nickname); record != nil {
		return cloneAccount(record), nil
	}
	return nil, notFound(map[string]any{"nickname": nickname})
}

func (s *stubAccounts) GetByID(_ context.Context, id string, _ ...repository.SelectCriteria) (*accounts.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, notFound(map[string]any{"id": id})
	}
	if record, ok := s.byID[uid]; ok {
		return cloneAccount(record), nil
	}
	return nil, notFound(map[string]any{"id": id})
}

func (s *stubAccounts) GetByIDTx(ctx context.Context, _ bun.IDB, id string, criteria ...repository.SelectCriteria) (*accounts.Account, error) {
	return s.GetByID(ctx, id, criteria...)
}

func (s *stubAccounts) CreateTx(_ context.Context, _ bun.IDB, record *accounts.Account, _ ...repository.InsertCriteria) (*accounts.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return nil, s.createErr
	}
	if s.findByEmail(record.Email) != nil {
		return nil, sqlUniqueError("accounts.email")
	}
	if record.Nickname != "" && s.findByNickname(record.Nickname) != nil {
		return nil, sqlUniqueError("accounts.nickname")
	}
	return s.insert(record), nil
}

func (s *stubAccounts) UpdateTx(_ context.Context, _ bun.IDB, record *accounts.Account, _ ...repository.UpdateCriteria) (*accounts.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return nil, s.updateErr
	}
	if _, ok := s.byID[record.ID]; !ok {
		return nil, notFound(map[string]any{"id": record.ID.String()})
	}
	s.byID[record.ID] = cloneAccount(record)
	return cloneAccount(record), nil
}

func (s *stubAccounts) List(_ context.Context, skip, limit int) ([]*accounts.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := []*accounts.Account{}
	for i, id := range s.order {
		if i < skip {
			continue
		}
		if limit > 0 && len(records) >= limit {
			break
		}
		if record, ok := s.byID[id]; ok {
			records = append(records, cloneAccount(record))
		}
	}
	return records, nil
}

func (s *stubAccounts) Count(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID), nil
}

func (s *stubAccounts) DeleteByID(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return false, nil
	}
	delete(s.byID, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true, nil
}

func (s *stubAccounts) TrackFailedLogin(_ context.Context, id uuid.UUID, threshold int) (*accounts.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.trackErr != nil {
		return nil, s.trackErr
	}
	record, ok := s.byID[id]
	if !ok {
		return nil, notFound(map[string]any{"id": id.String()})
	}
	record.FailedLoginAttempts++
	if record.FailedLoginAttempts >= threshold {
		record.IsLocked = true
	}
	now := time.Now()
	record.LoginAttemptAt = &now
	record.UpdatedAt = &now
	return cloneAccount(record), nil
}

func (s *stubAccounts) TrackSuccessfulLogin(_ context.Context, id uuid.UUID) (*accounts.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.trackErr != nil {
		return nil, s.trackErr
	}
	record, ok := s.byID[id]
	if !ok {
		return nil, notFound(map[string]any{"id": id.String()})
	}
	record.FailedLoginAttempts = 0
	record.LoginAttemptAt = nil
	now := time.Now()
	record.LoggedInAt = &now
	record.UpdatedAt = &now
	return cloneAccount(record), nil
}

func (s *stubAccounts) ConfirmEmail(_ context.Context, id uuid.UUID, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.byID[id]
	if !ok || record.EmailVerified || record.VerificationToken != token {
		return false, nil
	}
	record.EmailVerified = true
	record.VerificationToken = ""
	now := time.Now()
	record.UpdatedAt = &now
	return true, nil
}

func (s *stubAccounts) Unlock(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.byID[id]
	if !ok {
		return false, nil
	}
	record.IsLocked = false
	record.FailedLoginAttempts = 0
	now := time.Now()
	record.UpdatedAt = &now
	return true, nil
}

func (s *stubAccounts) ResetPassword(_ context.Context, id uuid.UUID, passwordHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.byID[id]
	if !ok {
		return false, nil
	}
	record.PasswordHash = passwordHash
	now := time.Now()
	record.UpdatedAt = &now
	return true, nil
}

// snapshot returns the stored record, bypassing error injection.
func (s *stubAccounts) snapshot(id uuid.UUID) *accounts.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneAccount(s.byID[id])
}

type sqliteError string

func (e sqliteError) Error() string { return string(e) }

func sqlUniqueError(column string) error {
	return sqliteError("UNIQUE constraint failed: " + column)
}

// stubRepoManager runs transaction bodies inline against stubAccounts.
type stubRepoManager struct {
	store *stubAccounts
	txErr error
}

func newStubRepoManager() *stubRepoManager {
	return &stubRepoManager{store: newStubAccounts()}
}

func (m *stubRepoManager) Accounts() accounts.Accounts { return m.store }

func (m *stubRepoManager) Validate() error { return nil }

func (m *stubRepoManager) MustValidate() {}

func (m *stubRepoManager) RunInTx(ctx context.Context, _ *sql.TxOptions, fn func(context.Context, bun.Tx) error) error {
	if m.txErr != nil {
		return m.txErr
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fn(ctx, bun.Tx{})
	}
}

type sentNotification struct {
	AccountID uuid.UUID
	Email     string
	Kind      accounts.TemplateKind
	Data      map[string]any
}

// recordingNotifier captures dispatches; Send is safe to call from the
// service's async path.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
	err  error
}

func (n *recordingNotifier) Send(_ context.Context, account *accounts.Account, kind accounts.TemplateKind, data map[string]any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, sentNotification{
		AccountID: account.ID,
		Email:     account.Email,
		Kind:      kind,
		Data:      data,
	})
	return nil
}

func (n *recordingNotifier) sentKinds() []accounts.TemplateKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	kinds := make([]accounts.TemplateKind, 0, len(n.sent))
	for _, s := range n.sent {
		kinds = append(kinds, s.Kind)
	}
	return kinds
}

func (n *recordingNotifier) last() (sentNotification, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sent) == 0 {
		return sentNotification{}, false
	}
	return n.sent[len(n.sent)-1], true
}
