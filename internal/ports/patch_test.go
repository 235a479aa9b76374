package ports

import (
	"encoding/json"
	"testing"
)

func TestOptionalUnmarshal(t *testing.T) {
	type payload struct {
		Title   Optional[string] `json:"title"`
		Count   Optional[int]    `json:"count"`
		Missing Optional[string] `json:"missing"`
	}

	var p payload
	if err := json.Unmarshal([]byte(`{"title": null, "count": 3}`), &p); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if !p.Title.Set || p.Title.Valid {
		t.Errorf("null field: Set=%v Valid=%v, want Set=true Valid=false", p.Title.Set, p.Title.Valid)
	}
	if !p.Count.Set || !p.Count.Valid || p.Count.Value != 3 {
		t.Errorf("value field: Set=%v Valid=%v Value=%d, want Set=true Valid=true Value=3", p.Count.Set, p.Count.Valid, p.Count.Value)
	}
	if p.Missing.Set || p.Missing.Valid {
		t.Errorf("absent field: Set=%v Valid=%v, want both false", p.Missing.Set, p.Missing.Valid)
	}
}

func TestOptionalUnmarshalTypeMismatch(t *testing.T) {
	var o Optional[int]
	if err := json.Unmarshal([]byte(`"not a number"`), &o); err == nil {
		t.Fatal("expected error for type mismatch")
	}
}

func TestOptionalPtr(t *testing.T) {
	if p := Some("x").Ptr(); p == nil || *p != "x" {
		t.Errorf("Some.Ptr() = %v, want pointer to x", p)
	}
	if p := Null[string]().Ptr(); p != nil {
		t.Errorf("Null.Ptr() = %v, want nil", p)
	}
	var zero Optional[string]
	if p := zero.Ptr(); p != nil {
		t.Errorf("zero.Ptr() = %v, want nil", p)
	}
}

func TestOptionalMarshal(t *testing.T) {
	raw, err := json.Marshal(Some(5))
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(raw) != "5" {
		t.Errorf("marshal = %s, want 5", raw)
	}

	raw, err = json.Marshal(Null[int]())
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(raw) != "null" {
		t.Errorf("marshal = %s, want null", raw)
	}
}
