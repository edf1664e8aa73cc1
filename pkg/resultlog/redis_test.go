package resultlog

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newTestPublisher(t *testing.T) (*RedisPublisher, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	p := NewRedisPublisher(Config{
		Address: mr.Addr(),
		Name:    "nightly-sync",
		TTL:     3600,
	})
	t.Cleanup(func() { p.Close() })
	return p, mr
}

func TestPublish_Success(t *testing.T) {
	p, mr := newTestPublisher(t)

	state := RunState{
		Plan:       "regions",
		DryRun:     false,
		StartedAt:  time.Now().Add(-time.Minute),
		FinishedAt: time.Now(),
		DurationMs: 60000,
		Written:    1500,
		Failed:     2,
	}
	if err := p.Publish(context.Background(), state, nil); err != nil {
		t.Fatalf("Failed to publish: %v", err)
	}

	raw, err := mr.Get("refsync:run:nightly-sync:state")
	if err != nil {
		t.Fatalf("Failed to read state key: %v", err)
	}

	var got RunState
	if err := json.Unmarshal([]byte(raw), &got); err != nil {
		t.Fatalf("Failed to unmarshal state: %v", err)
	}
	if got.Status != "success" {
		t.Errorf("Expected status 'success', got %q", got.Status)
	}
	if got.ResultName != "nightly-sync" {
		t.Errorf("Expected result name from config, got %q", got.ResultName)
	}
	if got.Written != 1500 || got.Failed != 2 {
		t.Errorf("Unexpected counters: written=%d failed=%d", got.Written, got.Failed)
	}
	if got.Error != nil {
		t.Errorf("Expected no error field on success, got %q", *got.Error)
	}

	// The state key carries the configured TTL
	ttl := mr.TTL("refsync:run:nightly-sync:state")
	if ttl != 3600*time.Second {
		t.Errorf("Expected TTL 3600s, got %v", ttl)
	}
}

func TestPublish_Failure(t *testing.T) {
	p, mr := newTestPublisher(t)

	err := p.Publish(context.Background(), RunState{Plan: "regions"}, errors.New("upsert city: connection refused"))
	if err != nil {
		t.Fatalf("Failed to publish: %v", err)
	}

	raw, err := mr.Get("refsync:run:nightly-sync:state")
	if err != nil {
		t.Fatalf("Failed to read state key: %v", err)
	}
	var got RunState
	if err := json.Unmarshal([]byte(raw), &got); err != nil {
		t.Fatalf("Failed to unmarshal state: %v", err)
	}
	if got.Status != "failed" {
		t.Errorf("Expected status 'failed', got %q", got.Status)
	}
	if got.Error == nil || *got.Error != "upsert city: connection refused" {
		t.Errorf("Unexpected error field: %v", got.Error)
	}
}

func TestPublish_ConnectionError(t *testing.T) {
	p, mr := newTestPublisher(t)
	mr.Close()

	if err := p.Publish(context.Background(), RunState{Plan: "regions"}, nil); err == nil {
		t.Fatal("Expected error when Redis is down")
	}
}
