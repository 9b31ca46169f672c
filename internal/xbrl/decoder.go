// Package xbrl decodes FFIEC facsimile markup into canonical records.
//
// Facsimiles carry flat fact elements in the call-report (cc) and UBPR (uc)
// concept namespaces. Each fact names an MDRM code, references a context
// that encodes the institution and period, and references a unit that
// determines how the value is typed.
package xbrl

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/regdata/ffiec-connect/internal/dates"
	"github.com/regdata/ffiec-connect/internal/ffiecerr"
	"github.com/regdata/ffiec-connect/internal/records"
)

var reISODate = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)

// Decode parses a facsimile payload into records. Facts without a context
// reference or a parseable period are skipped; malformed markup fails with
// a parse error carrying a payload snippet.
func Decode(payload []byte) ([]records.Record, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil, ffiecerr.Parse(errors.New("empty facsimile payload"), nil)
	}

	dec := xml.NewDecoder(bytes.NewReader(payload))
	dec.Strict = true
	// No entity map: facsimiles are data documents, and a payload that needs
	// DTDs or custom entities is treated as hostile.
	dec.Entity = nil

	var out []records.Record
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, ffiecerr.Parse(err, payload)
		}

		switch t := tok.(type) {
		case xml.Directive:
			return nil, ffiecerr.Parse(errors.New("facsimile contains a DTD or directive"), payload)
		case xml.StartElement:
			if !isFactSpace(t.Name.Space) {
				continue
			}
			rec, ok, err := decodeFact(dec, t)
			if err != nil {
				return nil, ffiecerr.Parse(err, payload)
			}
			if ok {
				out = append(out, rec)
			}
		}
	}
	return out, nil
}

// isFactSpace recognizes the cc/uc concept namespaces. Depending on whether
// the document declares the prefix, the decoder reports either the raw
// prefix or the resolved namespace URI; both forms are accepted.
func isFactSpace(space string) bool {
	s := strings.ToLower(space)
	if s == "cc" || s == "uc" {
		return true
	}
	if i := strings.LastIndex(s, "/"); i >= 0 {
		seg := s[i+1:]
		if seg == "cc" || seg == "uc" || strings.HasPrefix(seg, "cc-") || strings.HasPrefix(seg, "uc-") {
			return true
		}
	}
	return false
}

// decodeFact consumes one fact element. The second return is false when the
// fact should be skipped (no context, or no period in the context ref).
func decodeFact(dec *xml.Decoder, start xml.StartElement) (records.Record, bool, error) {
	var contextRef, unitRef string
	for _, attr := range start.Attr {
		switch attr.Name.Local {
		case "contextRef":
			contextRef = attr.Value
		case "unitRef":
			unitRef = attr.Value
		}
	}

	var text strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			return records.Record{}, false, err
		}
		switch t := tok.(type) {
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			if t.Name == start.Name {
				return buildRecord(start.Name.Local, contextRef, unitRef, strings.TrimSpace(text.String()))
			}
		case xml.StartElement:
			// Facts are leaves; nested markup means this is not one.
			if err := dec.Skip(); err != nil {
				return records.Record{}, false, err
			}
		}
	}
}

func buildRecord(mdrm, contextRef, unitRef, value string) (records.Record, bool, error) {
	if contextRef == "" {
		return records.Record{}, false, nil
	}

	// Context refs look like "CI_480228_2022-03-31": the institution's RSSD
	// id is the second underscore-separated token.
	parts := strings.Split(contextRef, "_")
	if len(parts) < 2 {
		return records.Record{}, false, nil
	}
	rssd := parts[1]

	dateStr := reISODate.FindString(contextRef)
	if dateStr == "" {
		return records.Record{}, false, nil
	}
	period, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		return records.Record{}, false, nil
	}
	period = period.UTC()

	switch {
	case unitRef == "USD":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return records.Record{}, false, nil
		}
		// Monetary values arrive in whole dollars and are reported in
		// thousands, floored, so negative amounts round away from zero.
		return records.IntRecord(mdrm, rssd, period, int64(math.Floor(f/1000))), true, nil
	case unitRef == "PURE" || unitRef == "NON-MONETARY":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return records.Record{}, false, nil
		}
		return records.FloatRecord(mdrm, rssd, period, f), true, nil
	case value == "true" || value == "false":
		return records.BoolRecord(mdrm, rssd, period, value == "true"), true, nil
	default:
		return records.StrRecord(mdrm, rssd, period, value), true, nil
	}
}

// Quarter is a convenience for callers that index decoded records by the
// reporting quarter of their period.
func Quarter(r records.Record) string { return dates.Quarter(r.Period) }
