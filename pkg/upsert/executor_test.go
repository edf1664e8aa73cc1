package upsert

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ruslano69/refsync/pkg/core/record"
	"github.com/ruslano69/refsync/pkg/retry"
	"github.com/ruslano69/refsync/pkg/stores"
	"github.com/ruslano69/refsync/pkg/stores/memory"
)

func makeRecords(n int) []*record.Record {
	recs := make([]*record.Record, n)
	for i := 0; i < n; i++ {
		rec := record.New("region")
		rec.Key = record.NaturalKey{fmt.Sprintf("R%03d", i)}
		rec.SetField("code", record.String(fmt.Sprintf("R%03d", i)))
		rec.SetField("name", record.String(fmt.Sprintf("Region %d", i)))
		recs[i] = rec
	}
	return recs
}

func fastRetryer(t *testing.T) *retry.Retryer {
	t.Helper()
	r, err := retry.NewRetryer(retry.Config{
		MaxAttempts:     3,
		InitialDelay:    time.Millisecond,
		MaxDelay:        10 * time.Millisecond,
		BackoffStrategy: retry.BackoffConstant,
	})
	if err != nil {
		t.Fatalf("Failed to create retryer: %v", err)
	}
	return r
}

func TestExecute_CreatesAndAssignsIDs(t *testing.T) {
	store := memory.New()
	recs := makeRecords(10)

	ex := NewExecutor(store, nil)
	res, err := ex.Execute(context.Background(), "region", recs, Options{
		MaxParallel: 2,
		BatchSize:   3,
		KeyMode:     stores.KeyModeNatural,
		KeyFields:   []string{"code"},
	})
	if err != nil {
		t.Fatalf("Failed to execute: %v", err)
	}

	if res.Created != 10 || res.Updated != 0 || res.Failed != 0 {
		t.Errorf("Expected 10 created, got created=%d updated=%d failed=%d",
			res.Created, res.Updated, res.Failed)
	}
	if res.Batches != 4 {
		t.Errorf("Expected 4 batches for 10 records with batch size 3, got %d", res.Batches)
	}
	// The store-assigned surrogate id is propagated back to each record
	for i, rec := range recs {
		if rec.ID == "" {
			t.Errorf("Record %d has no assigned id", i)
		}
	}
}

func TestExecute_Idempotence(t *testing.T) {
	store := memory.New()

	ex := NewExecutor(store, nil)
	opts := Options{MaxParallel: 2, BatchSize: 4}

	if _, err := ex.Execute(context.Background(), "region", makeRecords(10), opts); err != nil {
		t.Fatalf("Failed on first run: %v", err)
	}
	// Same natural keys again: every record must be an update
	res, err := ex.Execute(context.Background(), "region", makeRecords(10), opts)
	if err != nil {
		t.Fatalf("Failed on second run: %v", err)
	}
	if res.Created != 0 || res.Updated != 10 {
		t.Errorf("Expected 10 updated on second run, got created=%d updated=%d",
			res.Created, res.Updated)
	}

	count, _ := store.CountRecords(context.Background(), "region")
	if count != 10 {
		t.Errorf("Expected 10 records in store, got %d", count)
	}
}

func TestExecute_BoundedConcurrency(t *testing.T) {
	store := memory.New()
	store.CallDelay = 20 * time.Millisecond

	ex := NewExecutor(store, nil)
	_, err := ex.Execute(context.Background(), "region", makeRecords(20), Options{
		MaxParallel: 3,
		BatchSize:   2,
	})
	if err != nil {
		t.Fatalf("Failed to execute: %v", err)
	}

	if got := store.MaxInFlight(); got > 3 {
		t.Errorf("Expected at most 3 concurrent batch calls, observed %d", got)
	}
	if got := store.MaxInFlight(); got < 2 {
		t.Errorf("Expected overlapping batch calls, observed max %d", got)
	}
}

func TestExecute_ContinueOnRecordError(t *testing.T) {
	store := memory.New()
	store.UpsertHook = func(entityType string, rec *record.Record) error {
		if rec.Key.String() == "R003" {
			return errors.New("invalid value in field name")
		}
		return nil
	}

	ex := NewExecutor(store, nil)
	res, err := ex.Execute(context.Background(), "region", makeRecords(10), Options{
		MaxParallel: 2,
		BatchSize:   3,
	})
	if err != nil {
		t.Fatalf("Failed to execute: %v", err)
	}

	if res.Created != 9 || res.Failed != 1 {
		t.Errorf("Expected 9 created, 1 failed; got created=%d failed=%d", res.Created, res.Failed)
	}
	if len(res.Errors) != 1 {
		t.Fatalf("Expected 1 record error, got %d", len(res.Errors))
	}
	if res.Errors[0].Key != "R003" || res.Errors[0].Index != 3 {
		t.Errorf("Unexpected record error: %+v", res.Errors[0])
	}
}

func TestExecute_WholeBatchFailure(t *testing.T) {
	store := memory.New()
	calls := 0
	store.BatchHook = func(op, entityType string) error {
		if op != "upsert" {
			return nil
		}
		calls++
		if calls == 1 {
			// Deterministic error: the retryer must not mask it
			return errors.New("permission denied")
		}
		return nil
	}

	ex := NewExecutor(store, fastRetryer(t))
	res, err := ex.Execute(context.Background(), "region", makeRecords(10), Options{
		MaxParallel: 1,
		BatchSize:   5,
	})
	if err != nil {
		t.Fatalf("Failed to execute: %v", err)
	}

	// One batch of 5 failed entirely, the other succeeded
	if res.Failed != 5 || res.Created != 5 {
		t.Errorf("Expected 5 failed and 5 created, got failed=%d created=%d",
			res.Failed, res.Created)
	}
	if len(res.Errors) != 5 {
		t.Errorf("Expected 5 record errors for the failed batch, got %d", len(res.Errors))
	}
}

func TestExecute_TransientBatchErrorRetried(t *testing.T) {
	store := memory.New()
	calls := 0
	store.BatchHook = func(op, entityType string) error {
		if op != "upsert" {
			return nil
		}
		calls++
		if calls == 1 {
			return errors.New("connection timeout")
		}
		return nil
	}

	ex := NewExecutor(store, fastRetryer(t))
	res, err := ex.Execute(context.Background(), "region", makeRecords(4), Options{
		MaxParallel: 1,
		BatchSize:   10,
	})
	if err != nil {
		t.Fatalf("Failed to execute: %v", err)
	}
	if res.Created != 4 || res.Failed != 0 {
		t.Errorf("Expected all records created after retry, got created=%d failed=%d",
			res.Created, res.Failed)
	}
	if calls != 2 {
		t.Errorf("Expected 2 batch calls (original + retry), got %d", calls)
	}
}

func TestExecute_Progress(t *testing.T) {
	store := memory.New()
	var total int
	var callbacks int

	ex := NewExecutor(store, nil)
	_, err := ex.Execute(context.Background(), "region", makeRecords(10), Options{
		MaxParallel: 1,
		BatchSize:   4,
		OnProgress: func(delta int) {
			callbacks++
			total += delta
		},
	})
	if err != nil {
		t.Fatalf("Failed to execute: %v", err)
	}
	if total != 10 {
		t.Errorf("Expected progress callbacks to cover 10 records, got %d", total)
	}
	if callbacks != 3 {
		t.Errorf("Expected 3 callbacks for 3 batches, got %d", callbacks)
	}
}

func TestExecute_ContextCancellation(t *testing.T) {
	store := memory.New()
	store.CallDelay = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(15 * time.Millisecond)
		cancel()
	}()

	ex := NewExecutor(store, nil)
	res, err := ex.Execute(ctx, "region", makeRecords(100), Options{
		MaxParallel: 1,
		BatchSize:   1,
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if res == nil {
		t.Fatal("Expected a partial result on cancellation")
	}
	processed := res.Created + res.Updated + res.Failed
	if processed >= 100 {
		t.Errorf("Expected a partial result, got %d processed", processed)
	}
}

func TestExecute_Empty(t *testing.T) {
	store := memory.New()
	ex := NewExecutor(store, nil)
	res, err := ex.Execute(context.Background(), "region", nil, Options{})
	if err != nil {
		t.Fatalf("Failed on empty input: %v", err)
	}
	if res.Total != 0 || res.Batches != 0 {
		t.Errorf("Expected empty result, got %+v", res)
	}
}
