package user

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/trezcool/kahawa/core"
)

var ErrSessionNotFound = errors.New("session not found")

const reaperInterval = 60 * time.Second

type (
	// SessionRecord tracks a single login session. Records live in a dual
	// store: an in-memory cache for fast lookups, mirrored to a durable table
	// from which the cache is rehydrated on miss.
	SessionRecord struct {
		ID           int       `db:"id"`
		UserID       int       `db:"user_id"`
		TokenHash    string    `db:"token_hash"`
		IPAddress    string    `db:"ip_address"`
		UserAgent    string    `db:"user_agent"`
		LastActivity time.Time `db:"last_activity"`
		ExpiresAt    time.Time `db:"expires_at"`
		IsActive     bool      `db:"is_active"`
	}

	SessionRepository interface {
		CreateSession(ctx context.Context, rec SessionRecord) (SessionRecord, error)
		// GetActiveSession returns an active, non-expired session.
		GetActiveSession(ctx context.Context, tokenHash string) (SessionRecord, error)
		TouchSession(ctx context.Context, tokenHash string, at time.Time) error
		DeactivateSession(ctx context.Context, tokenHash string) error
		DeactivateUserSessions(ctx context.Context, userID int) error
	}

	// SessionManager enforces per-user idle timeouts on login sessions.
	// Durable-store errors are logged and swallowed: session tracking must
	// never block the authentication flow, it merely degrades to memory-only
	// tracking until restart.
	SessionManager struct {
		mu    sync.RWMutex
		cache map[string]*SessionRecord // keyed by token hash

		repo    SessionRepository
		usrRepo Repository
		logger  core.Logger

		idleTimeout time.Duration // default, per-user preference overrides
		nowFunc     func() time.Time

		stopOnce sync.Once
		stop     chan struct{}
	}
)

func NewSessionManager(repo SessionRepository, usrRepo Repository, conf *core.Config, logger core.Logger) *SessionManager {
	return &SessionManager{
		cache:       make(map[string]*SessionRecord),
		repo:        repo,
		usrRepo:     usrRepo,
		logger:      logger,
		idleTimeout: conf.SessionIdleTimeout,
		nowFunc:     time.Now,
		stop:        make(chan struct{}),
	}
}

// HashToken returns the sha256 hex digest under which a token is stored;
// raw tokens never hit the durable store.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Create registers a new login session in both stores.
func (m *SessionManager) Create(ctx context.Context, usr User, token, ip, userAgent string) SessionRecord {
	now := m.nowFunc().UTC()
	timeout := m.userTimeout(usr)
	rec := SessionRecord{
		UserID:       usr.ID,
		TokenHash:    HashToken(token),
		IPAddress:    ip,
		UserAgent:    userAgent,
		LastActivity: now,
		ExpiresAt:    now.Add(timeout),
		IsActive:     true,
	}

	if saved, err := m.repo.CreateSession(ctx, rec); err != nil {
		m.logger.Error(fmt.Sprintf("creating session record: %v", err), err)
	} else {
		rec = saved
	}

	m.mu.Lock()
	m.cache[rec.TokenHash] = &rec
	m.mu.Unlock()
	return rec
}

// Check reports whether the session for the token is still valid. Cache
// misses fall back to the durable store and rehydrate the cache. Sessions
// idle past the user's timeout are destroyed and reported invalid.
func (m *SessionManager) Check(ctx context.Context, token string) bool {
	hash := HashToken(token)

	m.mu.RLock()
	rec, ok := m.cache[hash]
	m.mu.RUnlock()

	if !ok {
		dbRec, err := m.repo.GetActiveSession(ctx, hash)
		if err != nil {
			if err != ErrSessionNotFound {
				m.logger.Error(fmt.Sprintf("checking session record: %v", err), err)
			}
			return false
		}
		rec = &dbRec
		m.mu.Lock()
		m.cache[hash] = rec
		m.mu.Unlock()
	}

	m.mu.RLock()
	userID := rec.UserID
	lastActivity := rec.LastActivity
	m.mu.RUnlock()

	timeout := m.idleTimeout
	if usr, err := m.usrRepo.GetUserByID(ctx, userID); err == nil {
		timeout = m.userTimeout(usr)
	}

	if m.nowFunc().UTC().Sub(lastActivity) > timeout {
		m.Destroy(ctx, token)
		return false
	}
	return true
}

// Touch updates the session's last activity; called on every authenticated request.
func (m *SessionManager) Touch(ctx context.Context, token string) {
	hash := HashToken(token)
	now := m.nowFunc().UTC()

	m.mu.Lock()
	rec, ok := m.cache[hash]
	if ok {
		rec.LastActivity = now
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	if err := m.repo.TouchSession(ctx, hash, now); err != nil {
		m.logger.Error(fmt.Sprintf("touching session record: %v", err), err)
	}
}

// Destroy removes the session from the cache and deactivates the durable row.
func (m *SessionManager) Destroy(ctx context.Context, token string) {
	hash := HashToken(token)

	m.mu.Lock()
	delete(m.cache, hash)
	m.mu.Unlock()

	if err := m.repo.DeactivateSession(ctx, hash); err != nil {
		m.logger.Error(fmt.Sprintf("destroying session record: %v", err), err)
	}
}

// DestroyAllForUser invalidates every session of a user; used on password reset.
func (m *SessionManager) DestroyAllForUser(ctx context.Context, userID int) {
	m.mu.Lock()
	for hash, rec := range m.cache {
		if rec.UserID == userID {
			delete(m.cache, hash)
		}
	}
	m.mu.Unlock()

	if err := m.repo.DeactivateUserSessions(ctx, userID); err != nil {
		m.logger.Error(fmt.Sprintf("destroying user sessions: %v", err), err)
	}
}

// StartReaper launches the periodic cleanup of expired cache entries.
func (m *SessionManager) StartReaper() {
	go func() {
		ticker := time.NewTicker(reaperInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.reap()
			case <-m.stop:
				return
			}
		}
	}()
}

func (m *SessionManager) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

func (m *SessionManager) reap() {
	now := m.nowFunc().UTC()

	m.mu.RLock()
	var expired []string
	for hash, rec := range m.cache {
		if rec.ExpiresAt.Before(now) {
			expired = append(expired, hash)
		}
	}
	m.mu.RUnlock()

	ctx := context.Background()
	for _, hash := range expired {
		m.mu.Lock()
		delete(m.cache, hash)
		m.mu.Unlock()

		if err := m.repo.DeactivateSession(ctx, hash); err != nil {
			m.logger.Error(fmt.Sprintf("reaping session record: %v", err), err)
		}
	}
}

func (m *SessionManager) userTimeout(usr User) time.Duration {
	if usr.SessionTimeoutMinutes > 0 {
		return time.Duration(usr.SessionTimeoutMinutes) * time.Minute
	}
	return m.idleTimeout
}
