package user

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/trezcool/kahawa/core"
)

// fakeRepo is a map-backed store covering the user, password-reset and
// session repositories.
type fakeRepo struct {
	mu       sync.Mutex
	users    map[int]*User
	tokens   map[string]*ResetToken
	sessions map[string]*SessionRecord
	nextID   int

	sessionErr error // forced failure for durable-store calls
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		users:    make(map[int]*User),
		tokens:   make(map[string]*ResetToken),
		sessions: make(map[string]*SessionRecord),
	}
}

func (r *fakeRepo) id() int { r.nextID++; return r.nextID }

func (r *fakeRepo) CheckEmailUniqueness(_ context.Context, email string, excluded ...User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
outer:
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			for _, ex := range excluded {
				if ex.ID == u.ID {
					continue outer
				}
			}
			return ErrEmailExists
		}
	}
	return nil
}

func (r *fakeRepo) CreateUser(_ context.Context, usr User) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, usr.Email) {
			return User{}, ErrEmailExists
		}
	}
	usr.ID = r.id()
	r.users[usr.ID] = &usr
	return usr, nil
}

func (r *fakeRepo) GetUserByID(_ context.Context, id int) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return *u, nil
}

func (r *fakeRepo) GetUserByEmail(_ context.Context, email string) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			return *u, nil
		}
	}
	return User{}, ErrNotFound
}

func (r *fakeRepo) QueryAllUsers(_ context.Context) ([]User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeRepo) FilterUsers(_ context.Context, filter QueryFilter) ([]User, error) {
	all, _ := r.QueryAllUsers(context.Background())
	var out []User
	for _, u := range all {
		if filter.Role != "" && u.Role != filter.Role {
			continue
		}
		if filter.Status != "" && u.Status != filter.Status {
			continue
		}
		if filter.Search != "" {
			s := strings.ToLower(filter.Search)
			if !strings.Contains(strings.ToLower(u.FirstName), s) &&
				!strings.Contains(strings.ToLower(u.LastName), s) &&
				!strings.Contains(strings.ToLower(u.Email), s) {
				continue
			}
		}
		out = append(out, u)
	}
	return out, nil
}

func (r *fakeRepo) UpdateUser(_ context.Context, usr User) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.users[usr.ID]
	if !ok {
		return User{}, ErrNotFound
	}
	*stored = usr
	return usr, nil
}

func (r *fakeRepo) SetLastLogin(_ context.Context, usr User) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.users[usr.ID]
	if !ok {
		return User{}, ErrNotFound
	}
	stored.LastLoginAt = time.Now().UTC()
	return *stored, nil
}

func (r *fakeRepo) SetPassword(_ context.Context, userID int, hash []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (r *fakeRepo) SetTwoFactorSecret(_ context.Context, userID int, secret string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.TwoFactorSecret = secret
	return nil
}

func (r *fakeRepo) SetTwoFactorEnabled(_ context.Context, userID int, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.TwoFactorEnabled = enabled
	return nil
}

func (r *fakeRepo) ReplaceResetToken(_ context.Context, userID int, token string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for t, rt := range r.tokens {
		if rt.UserID == userID {
			delete(r.tokens, t)
		}
	}
	r.tokens[token] = &ResetToken{ID: r.id(), UserID: userID, Token: token, ExpiresAt: expiresAt}
	return nil
}

func (r *fakeRepo) GetResetToken(_ context.Context, token string) (ResetToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rt, ok := r.tokens[token]
	if !ok || !rt.UsedAt.IsZero() || rt.ExpiresAt.Before(time.Now().UTC()) {
		return ResetToken{}, ErrInvalidResetToken
	}
	return *rt, nil
}

func (r *fakeRepo) MarkResetTokenUsed(_ context.Context, tokenID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rt := range r.tokens {
		if rt.ID == tokenID {
			rt.UsedAt = time.Now().UTC()
			return nil
		}
	}
	return ErrInvalidResetToken
}

func (r *fakeRepo) CreateSession(_ context.Context, rec SessionRecord) (SessionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessionErr != nil {
		return SessionRecord{}, r.sessionErr
	}
	rec.ID = r.id()
	r.sessions[rec.TokenHash] = &rec
	return rec, nil
}

func (r *fakeRepo) GetActiveSession(_ context.Context, tokenHash string) (SessionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessionErr != nil {
		return SessionRecord{}, r.sessionErr
	}
	rec, ok := r.sessions[tokenHash]
	if !ok || !rec.IsActive {
		return SessionRecord{}, ErrSessionNotFound
	}
	return *rec, nil
}

func (r *fakeRepo) TouchSession(_ context.Context, tokenHash string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.sessions[tokenHash]; ok {
		rec.LastActivity = at
	}
	return r.sessionErr
}

func (r *fakeRepo) DeactivateSession(_ context.Context, tokenHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.sessions[tokenHash]; ok {
		rec.IsActive = false
	}
	return r.sessionErr
}

func (r *fakeRepo) DeactivateUserSessions(_ context.Context, userID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.sessions {
		if rec.UserID == userID {
			rec.IsActive = false
		}
	}
	return r.sessionErr
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

func testConfig() *core.Config {
	return &core.Config{
		AppName:              "Kahawa",
		TestMode:             true,
		PasswordResetTimeout: time.Hour,
		SessionIdleTimeout:   30 * time.Minute,
	}
}
