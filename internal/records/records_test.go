package records

import (
	"math"
	"testing"
	"time"

	"github.com/regdata/ffiec-connect/internal/dates"
	"github.com/regdata/ffiec-connect/internal/ffiecerr"
)

var period = time.Date(2022, 3, 31, 0, 0, 0, 0, time.UTC)

func TestValidateSlotInvariant(t *testing.T) {
	rec := IntRecord("RCFD2170", "480228", period, 1500)
	if err := rec.Validate(); err != nil {
		t.Fatalf("valid record rejected: %v", err)
	}

	// Two slots populated.
	f := 1.5
	rec.Float = &f
	if err := rec.Validate(); !ffiecerr.IsValidation(err) {
		t.Errorf("two populated slots must fail validation, got %v", err)
	}

	// No slots populated.
	empty := Record{MDRM: "RCFD2170", RSSD: "480228", Period: period, Type: TypeInt}
	if err := empty.Validate(); !ffiecerr.IsValidation(err) {
		t.Errorf("empty record must fail validation, got %v", err)
	}

	// Slot does not match tag.
	s := "x"
	mismatch := Record{MDRM: "TEXT9999", RSSD: "480228", Period: period, Type: TypeInt, Str: &s}
	if err := mismatch.Validate(); !ffiecerr.IsValidation(err) {
		t.Errorf("tag/slot mismatch must fail validation, got %v", err)
	}
}

func TestWideningRendersNaNAndWidensInts(t *testing.T) {
	rec := IntRecord("RCFD2170", "480228", period, 1500)
	m, err := rec.ToMap(PolicyWidening, dates.FormatCompact)
	if err != nil {
		t.Fatal(err)
	}

	v, ok := m["int_data"].(float64)
	if !ok || v != 1500.0 {
		t.Errorf("int_data = %v (%T), want float64 1500", m["int_data"], m["int_data"])
	}
	if f, ok := m["float_data"].(float64); !ok || !math.IsNaN(f) {
		t.Errorf("absent float_data = %v, want NaN", m["float_data"])
	}
	if b, ok := m["bool_data"].(float64); !ok || !math.IsNaN(b) {
		t.Errorf("absent bool_data = %v, want NaN", m["bool_data"])
	}
	if m["str_data"] != nil {
		t.Errorf("absent str_data = %v, want nil even under widening", m["str_data"])
	}
}

func TestPreservingKeepsIntsIntegral(t *testing.T) {
	rec := IntRecord("RCFD2170", "480228", period, 1500)
	m, err := rec.ToMap(PolicyPreserving, dates.FormatCompact)
	if err != nil {
		t.Fatal(err)
	}

	if v, ok := m["int_data"].(int64); !ok || v != 1500 {
		t.Errorf("int_data = %v (%T), want int64 1500", m["int_data"], m["int_data"])
	}
	if m["float_data"] != nil || m["bool_data"] != nil || m["str_data"] != nil {
		t.Errorf("absent slots must be nil: %v", m)
	}
}

func TestDualRSSDFields(t *testing.T) {
	rec := StrRecord("TEXT9999", "12345", period, "note")
	m, err := rec.ToMap(PolicyPreserving, dates.FormatOriginal)
	if err != nil {
		t.Fatal(err)
	}
	if m["rssd"] != "12345" || m["id_rssd"] != "12345" {
		t.Errorf("both rssd and id_rssd must carry the id: %v", m)
	}
	if m["quarter"] != "3/31/2022" {
		t.Errorf("quarter = %v, want unpadded original format", m["quarter"])
	}
}

func TestPolicyResolution(t *testing.T) {
	if PolicyDefault.Resolve(true) != PolicyWidening {
		t.Error("legacy protocol must default to widening")
	}
	if PolicyDefault.Resolve(false) != PolicyPreserving {
		t.Error("modern protocol must default to preserving")
	}
	if PolicyPreserving.Resolve(true) != PolicyPreserving {
		t.Error("explicit policy must override the protocol default")
	}
	if PolicyWidening.Resolve(false) != PolicyWidening {
		t.Error("explicit policy must override the protocol default")
	}
}

func TestToMapRejectsUnresolvedPolicy(t *testing.T) {
	rec := BoolRecord("RCON9224", "1", period, true)
	if _, err := rec.ToMap(PolicyDefault, dates.FormatCompact); !ffiecerr.IsValidation(err) {
		t.Errorf("unresolved policy must be rejected, got %v", err)
	}
}
