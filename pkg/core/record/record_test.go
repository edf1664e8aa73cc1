package record

import (
	"testing"
	"time"
)

func TestNaturalKey_String(t *testing.T) {
	k := NaturalKey{"RU", "Moscow"}
	if got := k.String(); got != "RU|Moscow" {
		t.Errorf("Expected 'RU|Moscow', got %q", got)
	}
	if got := (NaturalKey{"solo"}).String(); got != "solo" {
		t.Errorf("Expected 'solo', got %q", got)
	}
}

func TestNaturalKey_Normalize(t *testing.T) {
	k := NaturalKey{"  RU ", "Moscow"}
	n := k.Normalize()
	if n.String() != "RU|Moscow" {
		t.Errorf("Expected normalized 'RU|Moscow', got %q", n.String())
	}
	// Original key is not mutated
	if k[0] != "  RU " {
		t.Error("Normalize should not mutate the original key")
	}
}

func TestNaturalKey_IsValid(t *testing.T) {
	tests := []struct {
		name string
		key  NaturalKey
		want bool
	}{
		{"simple", NaturalKey{"RU"}, true},
		{"composite", NaturalKey{"RU", "Moscow"}, true},
		{"empty", NaturalKey{}, false},
		{"nil", nil, false},
		{"empty component", NaturalKey{"RU", ""}, false},
		{"whitespace component", NaturalKey{"RU", "   "}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.IsValid(); got != tt.want {
				t.Errorf("IsValid(%v) = %v, want %v", tt.key, got, tt.want)
			}
		})
	}
}

func TestValue_Canonical(t *testing.T) {
	ts := time.Date(2025, 3, 15, 10, 30, 0, 0, time.UTC)
	tests := []struct {
		name string
		v    Value
		want string
	}{
		{"string", String("hello"), "hello"},
		{"whole number", Number(42), "42"},
		{"fractional number", Number(3.5), "3.5"},
		{"bool", Bool(true), "true"},
		{"timestamp", Timestamp(ts), "2025-03-15T10:30:00Z"},
		{"reference", Ref("region", "17"), "17"},
		{"null", Null(), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.v.Canonical(); got != tt.want {
				t.Errorf("Canonical() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValue_CanonicalTimestampUTC(t *testing.T) {
	// Canonical form must not depend on the zone the timestamp was parsed in
	loc := time.FixedZone("UTC+3", 3*3600)
	local := time.Date(2025, 3, 15, 13, 30, 0, 0, loc)
	utc := time.Date(2025, 3, 15, 10, 30, 0, 0, time.UTC)
	if Timestamp(local).Canonical() != Timestamp(utc).Canonical() {
		t.Error("Expected identical canonical form for equal instants in different zones")
	}
}

func TestRecord_Field(t *testing.T) {
	rec := New("city").SetField("name", String("Moscow"))
	if v := rec.Field("name"); v.Str != "Moscow" {
		t.Errorf("Expected 'Moscow', got %q", v.Str)
	}
	if v := rec.Field("missing"); !v.IsNull() {
		t.Error("Expected Null for missing field")
	}
}

func TestRecord_FieldNames(t *testing.T) {
	rec := New("city").
		SetField("name", String("Moscow")).
		SetField("code", String("MOW")).
		SetField("population", Number(13000000))
	names := rec.FieldNames()
	want := []string{"code", "name", "population"}
	if len(names) != len(want) {
		t.Fatalf("Expected %d names, got %d", len(want), len(names))
	}
	for i, n := range want {
		if names[i] != n {
			t.Errorf("names[%d] = %q, want %q", i, names[i], n)
		}
	}
}

func TestRecord_Clone(t *testing.T) {
	rec := New("city")
	rec.ID = "42"
	rec.Key = NaturalKey{"RU", "Moscow"}
	rec.SetField("region_id", Ref("region", "7"))

	clone := rec.Clone()
	clone.ID = "99"
	clone.Key[0] = "US"
	clone.Fields["region_id"].Ref.ID = "8"

	if rec.ID != "42" {
		t.Error("Clone should not share ID with the original")
	}
	if rec.Key[0] != "RU" {
		t.Error("Clone should not share key slice with the original")
	}
	if rec.Field("region_id").Ref.ID != "7" {
		t.Error("Clone should deep-copy reference values")
	}
}

func TestValue_JSONRoundTrip(t *testing.T) {
	rec := New("city")
	rec.SetField("name", String("Moscow"))
	rec.SetField("active", Bool(true))
	rec.SetField("region_id", Ref("region", "7"))
	rec.SetField("note", Null())

	for name, v := range rec.Fields {
		data, err := v.MarshalJSON()
		if err != nil {
			t.Fatalf("Failed to marshal field %s: %v", name, err)
		}
		var back Value
		if err := back.UnmarshalJSON(data); err != nil {
			t.Fatalf("Failed to unmarshal field %s: %v", name, err)
		}
		if back.Canonical() != v.Canonical() {
			t.Errorf("Field %s: canonical form changed after round trip: %q != %q",
				name, back.Canonical(), v.Canonical())
		}
	}
}

func TestEntitySpec_Validate(t *testing.T) {
	tests := []struct {
		name    string
		spec    EntitySpec
		wantErr bool
	}{
		{
			name:    "valid",
			spec:    EntitySpec{Name: "city", KeyFields: []string{"code"}},
			wantErr: false,
		},
		{
			name:    "missing name",
			spec:    EntitySpec{KeyFields: []string{"code"}},
			wantErr: true,
		},
		{
			name:    "missing key fields",
			spec:    EntitySpec{Name: "city"},
			wantErr: true,
		},
		{
			name:    "duplicate key field",
			spec:    EntitySpec{Name: "city", KeyFields: []string{"code", "code"}},
			wantErr: true,
		},
		{
			name: "reference without entity type",
			spec: EntitySpec{
				Name:       "city",
				KeyFields:  []string{"code"},
				References: map[string]RefSpec{"region_id": {}},
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEntitySpec_FullProjection(t *testing.T) {
	spec := EntitySpec{
		Name:       "city",
		KeyFields:  []string{"region_id", "code"},
		Projection: []string{"name", "code"},
		References: map[string]RefSpec{
			"region_id": {EntityType: "region", Required: true},
		},
	}
	got := spec.FullProjection()
	want := []string{"name", "code", "region_id"}
	if len(got) != len(want) {
		t.Fatalf("Expected %d fields, got %d: %v", len(want), len(got), got)
	}
	for i, f := range want {
		if got[i] != f {
			t.Errorf("projection[%d] = %q, want %q", i, got[i], f)
		}
	}
}
