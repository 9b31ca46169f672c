// Package records defines the canonical typed record every protocol
// normalizes into, and the null-sentinel policies that govern rendering.
package records

import (
	"fmt"
	"math"
	"time"

	"github.com/regdata/ffiec-connect/internal/dates"
	"github.com/regdata/ffiec-connect/internal/ffiecerr"
)

// DataType tags which value slot of a Record is populated.
type DataType string

const (
	TypeInt   DataType = "int"
	TypeFloat DataType = "float"
	TypeBool  DataType = "bool"
	TypeStr   DataType = "str"
)

// Record is one financial datum: an MDRM field for one institution in one
// reporting period. Exactly one value slot is non-nil, and it matches Type.
type Record struct {
	MDRM   string
	RSSD   string
	Period time.Time
	Type   DataType

	Int   *int64
	Float *float64
	Bool  *bool
	Str   *string
}

// Validate enforces the one-populated-slot invariant.
func (r *Record) Validate() error {
	n := 0
	if r.Int != nil {
		n++
	}
	if r.Float != nil {
		n++
	}
	if r.Bool != nil {
		n++
	}
	if r.Str != nil {
		n++
	}
	if n != 1 {
		return ffiecerr.Validation("record", r.MDRM, fmt.Sprintf("exactly one populated value slot (got %d)", n))
	}
	ok := false
	switch r.Type {
	case TypeInt:
		ok = r.Int != nil
	case TypeFloat:
		ok = r.Float != nil
	case TypeBool:
		ok = r.Bool != nil
	case TypeStr:
		ok = r.Str != nil
	}
	if !ok {
		return ffiecerr.Validation("record", r.MDRM, fmt.Sprintf("value slot matching type %q", r.Type))
	}
	return nil
}

// =============================================================================
// NULL POLICY
// =============================================================================

// NullPolicy selects how absent values render and whether ints widen.
type NullPolicy int

const (
	// PolicyDefault resolves per protocol: legacy widens, modern preserves.
	PolicyDefault NullPolicy = iota

	// PolicyWidening renders absent numerics as NaN and widens populated
	// ints to float64, for consumers built around float frames.
	PolicyWidening

	// PolicyPreserving renders absent values as nil and keeps int64 intact.
	PolicyPreserving
)

// Resolve applies the per-protocol default. legacyProtocol is true for the
// SOAP path.
func (p NullPolicy) Resolve(legacyProtocol bool) NullPolicy {
	if p != PolicyDefault {
		return p
	}
	if legacyProtocol {
		return PolicyWidening
	}
	return PolicyPreserving
}

// ToMap renders the record as an ordered-key map. Both rssd and id_rssd are
// emitted for compatibility across the two consumer generations.
func (r *Record) ToMap(policy NullPolicy, f dates.OutputFormat) (map[string]any, error) {
	quarter, err := dates.Render(r.Period, f)
	if err != nil {
		return nil, err
	}
	m := map[string]any{
		"mdrm":      r.MDRM,
		"rssd":      r.RSSD,
		"id_rssd":   r.RSSD,
		"quarter":   quarter,
		"data_type": string(r.Type),
	}

	switch policy {
	case PolicyWidening:
		m["int_data"] = widenInt(r.Int)
		m["float_data"] = widenFloat(r.Float)
		m["bool_data"] = widenBool(r.Bool)
	case PolicyPreserving:
		m["int_data"] = preserve(r.Int)
		m["float_data"] = preserve(r.Float)
		m["bool_data"] = preserve(r.Bool)
	default:
		return nil, ffiecerr.Validation("null policy", policy, "widening or preserving (resolve defaults first)")
	}

	// Strings never widen; absent is nil under both policies.
	m["str_data"] = preserve(r.Str)
	return m, nil
}

func widenInt(v *int64) any {
	if v == nil {
		return math.NaN()
	}
	return float64(*v)
}

func widenFloat(v *float64) any {
	if v == nil {
		return math.NaN()
	}
	return *v
}

func widenBool(v *bool) any {
	if v == nil {
		return math.NaN()
	}
	return *v
}

func preserve[T any](v *T) any {
	if v == nil {
		return nil
	}
	return *v
}

// =============================================================================
// CONSTRUCTORS
// =============================================================================

func IntRecord(mdrm, rssd string, period time.Time, v int64) Record {
	return Record{MDRM: mdrm, RSSD: rssd, Period: period, Type: TypeInt, Int: &v}
}

func FloatRecord(mdrm, rssd string, period time.Time, v float64) Record {
	return Record{MDRM: mdrm, RSSD: rssd, Period: period, Type: TypeFloat, Float: &v}
}

func BoolRecord(mdrm, rssd string, period time.Time, v bool) Record {
	return Record{MDRM: mdrm, RSSD: rssd, Period: period, Type: TypeBool, Bool: &v}
}

func StrRecord(mdrm, rssd string, period time.Time, v string) Record {
	return Record{MDRM: mdrm, RSSD: rssd, Period: period, Type: TypeStr, Str: &v}
}
