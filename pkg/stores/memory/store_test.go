package memory

import (
	"context"
	"fmt"
	"testing"

	"github.com/ruslano69/refsync/pkg/core/record"
	"github.com/ruslano69/refsync/pkg/stores"
)

func seedRegions(s *Store, n int) {
	for i := 0; i < n; i++ {
		rec := record.New("region")
		rec.Key = record.NaturalKey{fmt.Sprintf("R%03d", i)}
		rec.SetField("code", record.String(fmt.Sprintf("R%03d", i)))
		rec.SetField("name", record.String(fmt.Sprintf("Region %d", i)))
		s.Seed("region", rec)
	}
}

func TestQuery_CursorPagination(t *testing.T) {
	s := New()
	seedRegions(s, 7)
	ctx := context.Background()

	var all []*record.Record
	cursor := ""
	pages := 0
	for {
		page, err := s.Query(ctx, "region", nil, 3, cursor)
		if err != nil {
			t.Fatalf("Failed to query page: %v", err)
		}
		pages++
		all = append(all, page.Records...)
		if page.Done {
			break
		}
		cursor = page.NextCursor
	}

	if len(all) != 7 {
		t.Errorf("Expected 7 records across pages, got %d", len(all))
	}
	if pages != 3 {
		t.Errorf("Expected 3 pages, got %d", pages)
	}
	// Pages are ordered by surrogate id, no overlaps
	seen := make(map[string]bool)
	for _, rec := range all {
		if seen[rec.ID] {
			t.Errorf("Record %s returned twice", rec.ID)
		}
		seen[rec.ID] = true
	}
}

func TestQuery_Projection(t *testing.T) {
	s := New()
	seedRegions(s, 1)

	page, err := s.Query(context.Background(), "region", []string{"code"}, 10, "")
	if err != nil {
		t.Fatalf("Failed to query: %v", err)
	}
	if len(page.Records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(page.Records))
	}
	rec := page.Records[0]
	if rec.Field("code").IsNull() {
		t.Error("Expected projected field 'code' to be present")
	}
	if !rec.Field("name").IsNull() {
		t.Error("Expected unprojected field 'name' to be absent")
	}
}

func TestBatchUpsert_NaturalCreateThenUpdate(t *testing.T) {
	s := New()
	ctx := context.Background()

	rec := record.New("region")
	rec.Key = record.NaturalKey{"RU-MOW"}
	rec.SetField("code", record.String("RU-MOW"))
	rec.SetField("name", record.String("Moscow"))

	results, err := s.BatchUpsert(ctx, "region", []string{"code"}, []*record.Record{rec}, stores.KeyModeNatural)
	if err != nil {
		t.Fatalf("Failed to upsert: %v", err)
	}
	if results[0].Status != stores.StatusCreated {
		t.Errorf("Expected created, got %s", results[0].Status)
	}
	id := results[0].ID
	if id == "" {
		t.Fatal("Expected a generated surrogate id")
	}

	// Same key again: update, same id
	again := rec.Clone()
	again.ID = ""
	again.SetField("name", record.String("Moscow (renamed)"))
	results, err = s.BatchUpsert(ctx, "region", []string{"code"}, []*record.Record{again}, stores.KeyModeNatural)
	if err != nil {
		t.Fatalf("Failed to upsert second time: %v", err)
	}
	if results[0].Status != stores.StatusUpdated {
		t.Errorf("Expected updated, got %s", results[0].Status)
	}
	if results[0].ID != id {
		t.Errorf("Expected stable id %s, got %s", id, results[0].ID)
	}

	stored, ok := s.Get("region", id)
	if !ok {
		t.Fatal("Record not found after update")
	}
	if stored.Field("name").Str != "Moscow (renamed)" {
		t.Errorf("Expected updated name, got %q", stored.Field("name").Str)
	}
}

func TestBatchUpsert_InvalidKeyFails(t *testing.T) {
	s := New()
	rec := record.New("region") // no natural key assigned

	results, err := s.BatchUpsert(context.Background(), "region", nil, []*record.Record{rec}, stores.KeyModeNatural)
	if err != nil {
		t.Fatalf("Failed to upsert: %v", err)
	}
	if results[0].Status != stores.StatusFailed {
		t.Errorf("Expected failed status for record without key, got %s", results[0].Status)
	}
}

func TestBatchDelete(t *testing.T) {
	s := New()
	seedRegions(s, 3)
	ctx := context.Background()

	page, err := s.Query(ctx, "region", nil, 10, "")
	if err != nil {
		t.Fatalf("Failed to query: %v", err)
	}
	ids := []string{page.Records[0].ID, "missing-id"}

	results, err := s.BatchDelete(ctx, "region", ids)
	if err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}
	if results[0].Err != "" {
		t.Errorf("Expected first delete to succeed, got %q", results[0].Err)
	}
	if results[1].Err == "" {
		t.Error("Expected error for missing id")
	}

	count, err := s.CountRecords(ctx, "region")
	if err != nil {
		t.Fatalf("Failed to count: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 records after delete, got %d", count)
	}
}

func TestIDByKey(t *testing.T) {
	s := New()
	seedRegions(s, 1)

	id, ok := s.IDByKey("region", "R000")
	if !ok || id == "" {
		t.Errorf("Expected to find record by natural key, got %q, %v", id, ok)
	}
	if _, ok := s.IDByKey("region", "nope"); ok {
		t.Error("Expected miss for unknown key")
	}
}

func TestFactoryRegistration(t *testing.T) {
	store, err := stores.New(context.Background(), stores.Config{Type: "memory"})
	if err != nil {
		t.Fatalf("Failed to create memory store through factory: %v", err)
	}
	if store.StoreType() != "memory" {
		t.Errorf("Expected store type 'memory', got %q", store.StoreType())
	}
}
