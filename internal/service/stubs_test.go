package service

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/identity-api/internal/models"
	"github.com/noah-isme/identity-api/internal/repository"
)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: testEpoch} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// stubUsers is an in-memory user repository keyed by username.
type stubUsers struct {
	mu        sync.Mutex
	users     map[string]*models.User
	findErr   error
	createErr error
	updateErr error
	listErr   error
}

func newStubUsers(users ...*models.User) *stubUsers {
	s := &stubUsers{users: make(map[string]*models.User)}
	for _, u := range users {
		s.users[u.Username] = u
	}
	return s
}

func (s *stubUsers) FindByUsername(_ context.Context, username string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	u, ok := s.users[username]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *u
	return &copy, nil
}

func (s *stubUsers) FindByID(_ context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	for _, u := range s.users {
		if u.ID == id {
			copy := *u
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *stubUsers) List(_ context.Context, filter models.UserFilter) ([]models.User, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, 0, s.listErr
	}
	var out []models.User
	for _, u := range s.users {
		if filter.Username == "" || strings.Contains(u.Username, strings.ToLower(filter.Username)) {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, len(out), nil
}

func (s *stubUsers) Create(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	if _, ok := s.users[user.Username]; ok {
		return repository.ErrDuplicate
	}
	copy := *user
	s.users[user.Username] = &copy
	return nil
}

func (s *stubUsers) UpdatePassword(_ context.Context, id, passwordHash string, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	for _, u := range s.users {
		if u.ID == id {
			u.PasswordHash = passwordHash
			u.UpdatedAt = updatedAt
			return nil
		}
	}
	return sql.ErrNoRows
}

func (s *stubUsers) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, u := range s.users {
		if u.ID == id {
			delete(s.users, name)
			return nil
		}
	}
	return sql.ErrNoRows
}

// stubRevocations mirrors the revoked_tokens table with an atomic insert.
type stubRevocations struct {
	mu        sync.Mutex
	entries   map[string]time.Time
	existsErr error
}

func newStubRevocations() *stubRevocations {
	return &stubRevocations{entries: make(map[string]time.Time)}
}

func (s *stubRevocations) Exists(_ context.Context, jti string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.existsErr != nil {
		return false, s.existsErr
	}
	_, ok := s.entries[jti]
	return ok, nil
}

func (s *stubRevocations) Insert(_ context.Context, jti string, expiresAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[jti]; ok {
		return false, nil
	}
	s.entries[jti] = expiresAt
	return true, nil
}

func (s *stubRevocations) DeleteExpiredBefore(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for jti, exp := range s.entries {
		if !exp.After(now) {
			delete(s.entries, jti)
			n++
		}
	}
	return n, nil
}

type stubAudit struct {
	mu      sync.Mutex
	entries []*models.AuditLog
	err     error
}

func (s *stubAudit) Create(_ context.Context, entry *models.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, entry)
	return nil
}

func (s *stubAudit) actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.Action)
	}
	return out
}

type stubEvents struct {
	mu     sync.Mutex
	counts map[string]int
}

func (s *stubEvents) RecordAuthEvent(event, outcome string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counts == nil {
		s.counts = make(map[string]int)
	}
	s.counts[event+"/"+outcome]++
}

func (s *stubEvents) count(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[key]
}

func newTestUser(id, username, password string, roles ...models.Role) *models.User {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	return &models.User{
		ID:           id,
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: string(hash),
		Active:       true,
		Roles:        roles,
	}
}

var testTokenConfig = TokenConfig{
	Secret:     "test-secret-that-is-long-enough-for-hs512",
	Issuer:     "identity-test",
	AccessTTL:  time.Hour,
	RefreshTTL: 24 * time.Hour,
	ResetTTL:   15 * time.Minute,
}

func newTestTokenService(users tokenUserRepository, revoked revocationRepository, clock *fakeClock) *TokenService {
	svc := NewTokenService(users, revoked, nil, testTokenConfig, nil)
	svc.clock = clock.Now
	return svc
}
