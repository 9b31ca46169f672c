package ffiec

import (
	"bytes"
	"encoding/json"
	"fmt"

	writerfile "github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/regdata/ffiec-connect/internal/ffiecerr"
)

// Format selects an output shape for collected records.
type Format string

const (
	// FormatRecords renders plain record maps.
	FormatRecords Format = "records"

	// FormatTable renders a nullable column-typed table.
	FormatTable Format = "table"

	// FormatParquet renders a columnar parquet file, built directly from
	// records.
	FormatParquet Format = "parquet"
)

// Output renders records in the requested shape. There is no fallback
// between shapes; an unknown format is a validation error.
func (c *Client) Output(recs []Record, f Format) (any, error) {
	switch f {
	case FormatRecords:
		return c.FormatRecords(recs)
	case FormatTable:
		return c.BuildTable(recs)
	case FormatParquet:
		return c.WriteParquet(recs)
	default:
		return nil, c.err(ffiecerr.Validation("output format", string(f), "records, table, or parquet"))
	}
}

// FormatRecords renders records as maps under the client's null policy and
// date format.
func (c *Client) FormatRecords(recs []Record) ([]map[string]any, error) {
	policy := c.policy()
	out := make([]map[string]any, 0, len(recs))
	for _, r := range recs {
		m, err := r.ToMap(policy, c.dateFormat)
		if err != nil {
			return nil, c.err(err)
		}
		out = append(out, m)
	}
	return out, nil
}

// =============================================================================
// TABLE OUTPUT
// =============================================================================

// Table is the column-typed shape: nullable slots stay typed pointers, so
// a preserving policy never widens integers.
type Table struct {
	MDRM    []string
	RSSD    []string
	Quarter []string

	IntData   []*int64
	FloatData []*float64
	BoolData  []*bool
	StrData   []*string
}

// Len reports the number of rows.
func (t *Table) Len() int { return len(t.MDRM) }

// BuildTable assembles the nullable table from records. Quarters render in
// compact yyyymmdd form for stable column values.
func (c *Client) BuildTable(recs []Record) (*Table, error) {
	t := &Table{
		MDRM:      make([]string, 0, len(recs)),
		RSSD:      make([]string, 0, len(recs)),
		Quarter:   make([]string, 0, len(recs)),
		IntData:   make([]*int64, 0, len(recs)),
		FloatData: make([]*float64, 0, len(recs)),
		BoolData:  make([]*bool, 0, len(recs)),
		StrData:   make([]*string, 0, len(recs)),
	}
	widen := c.policy() == PolicyWidening

	for _, r := range recs {
		if err := r.Validate(); err != nil {
			return nil, c.err(err)
		}
		t.MDRM = append(t.MDRM, r.MDRM)
		t.RSSD = append(t.RSSD, r.RSSD)
		t.Quarter = append(t.Quarter, r.Period.Format("20060102"))

		intV, floatV := r.Int, r.Float
		if widen && intV != nil {
			// Legacy consumers read every numeric from the float column.
			f := float64(*intV)
			floatV = &f
			intV = nil
		}
		t.IntData = append(t.IntData, intV)
		t.FloatData = append(t.FloatData, floatV)
		t.BoolData = append(t.BoolData, r.Bool)
		t.StrData = append(t.StrData, r.Str)
	}
	return t, nil
}

// =============================================================================
// PARQUET OUTPUT
// =============================================================================

// parquetSchema describes the columnar layout: one optional column per
// value slot, natural physical types. Parquet has real nulls, so the
// widening NaN sentinel does not apply here.
func parquetSchema() string {
	fields := []map[string]string{
		{"Tag": "name=mdrm, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=REQUIRED"},
		{"Tag": "name=rssd, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=REQUIRED"},
		{"Tag": "name=id_rssd, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=REQUIRED"},
		{"Tag": "name=quarter, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=REQUIRED"},
		{"Tag": "name=data_type, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=REQUIRED"},
		{"Tag": "name=int_data, type=INT64, repetitiontype=OPTIONAL"},
		{"Tag": "name=float_data, type=DOUBLE, repetitiontype=OPTIONAL"},
		{"Tag": "name=bool_data, type=BOOLEAN, repetitiontype=OPTIONAL"},
		{"Tag": "name=str_data, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"},
	}
	out := map[string]any{
		"Tag":    "name=parquet_go_root, repetitiontype=REQUIRED",
		"Fields": fields,
	}
	b, _ := json.Marshal(out)
	return string(b)
}

// WriteParquet writes records as a parquet file and returns its bytes. The
// columnar shape is built directly from records, never via the table.
func (c *Client) WriteParquet(recs []Record) ([]byte, error) {
	buf := &bytes.Buffer{}
	pfw := writerfile.NewWriterFile(buf)
	pw, err := writer.NewJSONWriter(parquetSchema(), pfw, 4)
	if err != nil {
		return nil, c.err(ffiecerr.Session(fmt.Errorf("parquet writer: %w", err)))
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, r := range recs {
		if err := r.Validate(); err != nil {
			_ = pw.WriteStop()
			_ = pfw.Close()
			return nil, c.err(err)
		}
		row := map[string]any{
			"mdrm":      r.MDRM,
			"rssd":      r.RSSD,
			"id_rssd":   r.RSSD,
			"quarter":   r.Period.Format("20060102"),
			"data_type": string(r.Type),
		}
		if r.Int != nil {
			row["int_data"] = *r.Int
		}
		if r.Float != nil {
			row["float_data"] = *r.Float
		}
		if r.Bool != nil {
			row["bool_data"] = *r.Bool
		}
		if r.Str != nil {
			row["str_data"] = *r.Str
		}
		// The JSON writer consumes one JSON document per row.
		encoded, err := json.Marshal(row)
		if err != nil {
			_ = pw.WriteStop()
			_ = pfw.Close()
			return nil, c.err(ffiecerr.Session(fmt.Errorf("parquet row: %w", err)))
		}
		if err := pw.Write(string(encoded)); err != nil {
			_ = pw.WriteStop()
			_ = pfw.Close()
			return nil, c.err(ffiecerr.Session(fmt.Errorf("parquet write: %w", err)))
		}
	}
	if err := pw.WriteStop(); err != nil {
		_ = pfw.Close()
		return nil, c.err(ffiecerr.Session(fmt.Errorf("parquet finalize: %w", err)))
	}
	_ = pfw.Close()

	return buf.Bytes(), nil
}
