package extract

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ruslano69/refsync/pkg/core/record"
	"github.com/ruslano69/refsync/pkg/stores/memory"
)

func regionSpec() record.EntitySpec {
	return record.EntitySpec{
		Name:       "region",
		KeyFields:  []string{"code"},
		Projection: []string{"name"},
	}
}

func regionRecord(code, name string) *record.Record {
	rec := record.New("region")
	rec.SetField("code", record.String(code))
	rec.SetField("name", record.String(name))
	return rec
}

func TestExtract_Pagination(t *testing.T) {
	store := memory.New()
	for i := 0; i < 5; i++ {
		store.Seed("region", regionRecord(fmt.Sprintf("R%02d", i), fmt.Sprintf("Region %d", i)))
	}

	ex := NewExtractor(store, 2)
	res, err := ex.Extract(context.Background(), regionSpec())
	if err != nil {
		t.Fatalf("Failed to extract: %v", err)
	}

	if len(res.Records) != 5 {
		t.Errorf("Expected 5 records, got %d", len(res.Records))
	}
	if res.Pages != 3 {
		t.Errorf("Expected 3 pages for 5 records with page size 2, got %d", res.Pages)
	}
	if res.Fetched != 5 {
		t.Errorf("Expected 5 fetched, got %d", res.Fetched)
	}
}

func TestExtract_Empty(t *testing.T) {
	store := memory.New()

	ex := NewExtractor(store, 100)
	res, err := ex.Extract(context.Background(), regionSpec())
	if err != nil {
		t.Fatalf("Failed to extract from empty store: %v", err)
	}
	if len(res.Records) != 0 {
		t.Errorf("Expected no records, got %d", len(res.Records))
	}
	if res.Pages != 1 {
		t.Errorf("Expected a single page, got %d", res.Pages)
	}
}

func TestExtract_DedupeAndDrop(t *testing.T) {
	store := memory.New()
	store.Seed("region",
		regionRecord("RU-MOW", "Moscow"),
		regionRecord(" RU-MOW ", "Moscow again"), // duplicate after trim
		regionRecord("  ", "blank key"),          // dropped
		regionRecord("RU-SPE", "Petersburg"),
	)

	ex := NewExtractor(store, 100)
	res, err := ex.Extract(context.Background(), regionSpec())
	if err != nil {
		t.Fatalf("Failed to extract: %v", err)
	}

	if len(res.Records) != 2 {
		t.Errorf("Expected 2 records after dedupe, got %d", len(res.Records))
	}
	if res.Duplicates != 1 {
		t.Errorf("Expected 1 duplicate, got %d", res.Duplicates)
	}
	if res.Dropped != 1 {
		t.Errorf("Expected 1 dropped record, got %d", res.Dropped)
	}

	// Key fields are trim-normalized in place
	for _, rec := range res.Records {
		code := rec.Field("code").Str
		if code != "RU-MOW" && code != "RU-SPE" {
			t.Errorf("Unexpected code after normalization: %q", code)
		}
	}
}

func TestExtract_RetypesReferences(t *testing.T) {
	spec := record.EntitySpec{
		Name:      "city",
		KeyFields: []string{"code"},
		References: map[string]record.RefSpec{
			"region_id": {EntityType: "region", Required: true},
		},
	}

	store := memory.New()
	city := record.New("city")
	city.SetField("code", record.String("ZEL"))
	city.SetField("region_id", record.String("17"))
	empty := record.New("city")
	empty.SetField("code", record.String("ORP"))
	empty.SetField("region_id", record.String("  "))
	store.Seed("city", city, empty)

	ex := NewExtractor(store, 100)
	res, err := ex.Extract(context.Background(), spec)
	if err != nil {
		t.Fatalf("Failed to extract: %v", err)
	}

	for _, rec := range res.Records {
		v := rec.Field("region_id")
		switch rec.Field("code").Str {
		case "ZEL":
			if v.Kind != record.KindReference {
				t.Fatalf("Expected reference value, got %s", v.Kind)
			}
			if v.Ref.EntityType != "region" || v.Ref.ID != "17" {
				t.Errorf("Unexpected reference: %+v", v.Ref)
			}
		case "ORP":
			// Blank reference column becomes null
			if !v.IsNull() {
				t.Errorf("Expected null for blank reference, got %s", v.Kind)
			}
		}
	}
}

func TestExtract_PageErrorAborts(t *testing.T) {
	store := memory.New()
	store.Seed("region", regionRecord("RU-MOW", "Moscow"))
	store.BatchHook = func(op, entityType string) error {
		if op == "query" {
			return errors.New("connection refused")
		}
		return nil
	}

	ex := NewExtractor(store, 100)
	_, err := ex.Extract(context.Background(), regionSpec())
	if err == nil {
		t.Fatal("Expected extraction to fail on page error")
	}
}

func TestExtract_ContextCancellation(t *testing.T) {
	store := memory.New()
	store.Seed("region", regionRecord("RU-MOW", "Moscow"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ex := NewExtractor(store, 100)
	_, err := ex.Extract(ctx, regionSpec())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
