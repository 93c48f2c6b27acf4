package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	store, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	return store, s
}

func TestNewRedisStore(t *testing.T) {
	s := miniredis.RunT(t)
	defer s.Close()

	store, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("NewRedisStore failed: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Ping(ctx); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestSaveAndLookupByToken(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	token := "test-session-token"
	expiresAt := time.Now().Add(24 * time.Hour)

	err := store.Save(ctx, token, "user-123", User{Name: "Test User", Email: "test@example.com"}, expiresAt)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	sess, err := store.LookupByToken(ctx, token)
	if err != nil {
		t.Fatalf("LookupByToken failed: %v", err)
	}
	if sess == nil {
		t.Fatal("expected session, got nil")
	}
	if sess.UserID != "user-123" {
		t.Errorf("expected user ID user-123, got %s", sess.UserID)
	}
	if sess.User.Name != "Test User" || sess.User.Email != "test@example.com" {
		t.Errorf("unexpected user profile: %+v", sess.User)
	}
}

func TestLookupUnknownToken(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	sess, err := store.LookupByToken(context.Background(), "never-issued")
	if err != nil {
		t.Fatalf("LookupByToken failed: %v", err)
	}
	if sess != nil {
		t.Fatalf("expected nil session, got %+v", sess)
	}
}

func TestLookupExpiredSession(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	token := "expiring-token"
	err := store.Save(ctx, token, "user-456", User{Email: "gone@example.com"}, time.Now().Add(50*time.Millisecond))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// Fast-forward time in miniredis past the TTL
	s.FastForward(time.Second)

	sess, err := store.LookupByToken(ctx, token)
	if err != nil {
		t.Fatalf("LookupByToken failed: %v", err)
	}
	if sess != nil {
		t.Fatalf("expected expired session to be absent, got %+v", sess)
	}
}

func TestSaveRejectsPastExpiry(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	err := store.Save(context.Background(), "tok", "user-1", User{}, time.Now().Add(-time.Minute))
	if err == nil {
		t.Fatal("expected Save() to fail for past expiry")
	}
}

func TestRevoke(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	token := "revoked-token"
	if err := store.Save(ctx, token, "user-789", User{}, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Revoke(ctx, token); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	sess, err := store.LookupByToken(ctx, token)
	if err != nil {
		t.Fatalf("LookupByToken failed: %v", err)
	}
	if sess != nil {
		t.Fatalf("expected revoked session to be absent, got %+v", sess)
	}
}
