package user

import (
	"context"
	"testing"
	"time"
)

func newTestSessionManager(repo *fakeRepo) (*SessionManager, *time.Time) {
	m := NewSessionManager(repo, repo, testConfig(), nopLogger{})
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	m.nowFunc = func() time.Time { return now }
	return m, &now
}

func TestSessionManager_idleTimeout(t *testing.T) {
	repo := newFakeRepo()
	m, now := newTestSessionManager(repo)
	ctx := context.Background()

	usr := createUser(t, repo, "jo@test.cd", "pwd", RoleTrainee, true)
	m.Create(ctx, usr, "token-1", "1.2.3.4", "tests")

	if !m.Check(ctx, "token-1") {
		t.Fatal("fresh session reported invalid")
	}
	if m.Check(ctx, "unknown-token") {
		t.Error("unknown token reported valid")
	}

	// idle just under the timeout
	*now = now.Add(29 * time.Minute)
	if !m.Check(ctx, "token-1") {
		t.Error("session invalid before the idle timeout")
	}

	// activity resets the clock
	m.Touch(ctx, "token-1")
	*now = now.Add(29 * time.Minute)
	if !m.Check(ctx, "token-1") {
		t.Error("touched session expired early")
	}

	// idle past the timeout
	*now = now.Add(31 * time.Minute)
	if m.Check(ctx, "token-1") {
		t.Error("session valid past the idle timeout")
	}
	// destroyed for good, not just hidden
	if m.Check(ctx, "token-1") {
		t.Error("expired session came back")
	}
}

func TestSessionManager_perUserTimeout(t *testing.T) {
	repo := newFakeRepo()
	m, now := newTestSessionManager(repo)
	ctx := context.Background()

	usr := createUser(t, repo, "jo@test.cd", "pwd", RoleTrainee, true)
	usr.SessionTimeoutMinutes = 5
	if _, err := repo.UpdateUser(ctx, usr); err != nil {
		t.Fatalf("UpdateUser() failed: %v", err)
	}

	m.Create(ctx, usr, "token-1", "", "")

	*now = now.Add(4 * time.Minute)
	if !m.Check(ctx, "token-1") {
		t.Error("session invalid within the user's own timeout")
	}
	*now = now.Add(2 * time.Minute)
	if m.Check(ctx, "token-1") {
		t.Error("session valid past the user's own timeout")
	}
}

func TestSessionManager_durableFallback(t *testing.T) {
	repo := newFakeRepo()
	m, _ := newTestSessionManager(repo)
	ctx := context.Background()

	usr := createUser(t, repo, "jo@test.cd", "pwd", RoleTrainee, true)
	m.Create(ctx, usr, "token-1", "", "")

	// a second manager over the same store simulates a restart: its cache is
	// empty but the durable row rehydrates it
	m2, _ := newTestSessionManager(repo)
	if !m2.Check(ctx, "token-1") {
		t.Error("session not recovered from the durable store")
	}

	// destroying via one manager deactivates the shared durable row
	m2.Destroy(ctx, "token-1")
	m3, _ := newTestSessionManager(repo)
	if m3.Check(ctx, "token-1") {
		t.Error("destroyed session recovered from the durable store")
	}
}

func TestSessionManager_storeFailuresDegrade(t *testing.T) {
	repo := newFakeRepo()
	m, _ := newTestSessionManager(repo)
	ctx := context.Background()

	usr := createUser(t, repo, "jo@test.cd", "pwd", RoleTrainee, true)

	// durable-store failures never block the flow; tracking degrades to
	// memory only
	repo.sessionErr = context.DeadlineExceeded
	m.Create(ctx, usr, "token-1", "", "")
	if !m.Check(ctx, "token-1") {
		t.Error("session invalid while the durable store is down")
	}
	m.Touch(ctx, "token-1")
	m.Destroy(ctx, "token-1")
	if m.Check(ctx, "token-1") {
		t.Error("destroyed session still valid")
	}
}

func TestSessionManager_reap(t *testing.T) {
	repo := newFakeRepo()
	m, now := newTestSessionManager(repo)
	ctx := context.Background()

	usr := createUser(t, repo, "jo@test.cd", "pwd", RoleTrainee, true)
	m.Create(ctx, usr, "token-1", "", "")
	m.Create(ctx, usr, "token-2", "", "")

	*now = now.Add(31 * time.Minute)
	m.reap()

	m.mu.RLock()
	n := len(m.cache)
	m.mu.RUnlock()
	if n != 0 {
		t.Errorf("%d cache entries after reaping, want 0", n)
	}
}

func TestHashToken(t *testing.T) {
	h1 := HashToken("abc")
	h2 := HashToken("abc")
	if h1 != h2 {
		t.Error("hashing is not deterministic")
	}
	if h1 == "abc" || len(h1) != 64 {
		t.Errorf("unexpected hash %q", h1)
	}
	if HashToken("abd") == h1 {
		t.Error("different tokens hash alike")
	}
}
