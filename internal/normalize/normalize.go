// Package normalize reshapes raw webservice responses into the forms the
// legacy SOAP service established. The REST API returns numerics where SOAP
// returned strings, drops ZIP leading zeros, and reports booleans natively;
// everything funnels through here so both protocols emit identical shapes.
package normalize

import (
	"fmt"
	"strconv"
	"strings"
)

// Institution is one filer from the panel-of-reporters operation, in the
// field names consumers have always seen.
type Institution struct {
	IDRSSD             string `json:"id_rssd"`
	FDICCertNumber     string `json:"fdic_cert_number"`
	OCCChartNumber     string `json:"occ_chart_number"`
	OTSDockNumber      string `json:"ots_dock_number"`
	PrimaryABARoutNum  string `json:"primary_aba_rout_number"`
	Name               string `json:"name"`
	State              string `json:"state"`
	City               string `json:"city"`
	Address            string `json:"address"`
	ZIP                string `json:"zip"`
	FilingType         string `json:"filing_type"`
	HasFiledForPeriod  string `json:"has_filed_for_reporting_period"`
}

// InstitutionFromRaw builds a filer from a decoded response object keyed by
// the webservice's own field names.
func InstitutionFromRaw(raw map[string]any) Institution {
	return Institution{
		IDRSSD:            IDString(raw["ID_RSSD"]),
		FDICCertNumber:    RegulatorNumber(raw["FDICCertNumber"]),
		OCCChartNumber:    RegulatorNumber(raw["OCCChartNumber"]),
		OTSDockNumber:     RegulatorNumber(raw["OTSDockNumber"]),
		PrimaryABARoutNum: RegulatorNumber(raw["PrimaryABARoutNumber"]),
		Name:              str(raw["Name"]),
		State:             str(raw["State"]),
		City:              str(raw["City"]),
		Address:           str(raw["Address"]),
		ZIP:               FixZIP(raw["ZIP"]),
		FilingType:        str(raw["FilingType"]),
		HasFiledForPeriod: boolString(raw["HasFiledForReportingPeriod"]),
	}
}

// IDString renders an RSSD id (or similar) as a string regardless of how
// the protocol typed it.
func IDString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatInt(int64(x), 10)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	default:
		return fmt.Sprintf("%v", x)
	}
}

// RegulatorNumber renders certificate/charter/docket/routing numbers as
// strings, with absent and zero values rendered empty. The service uses 0
// where an institution has no number from that regulator.
func RegulatorNumber(v any) string {
	s := IDString(v)
	if s == "0" {
		return ""
	}
	return s
}

// FixZIP restores the leading zeros the REST API strips from ZIP codes.
func FixZIP(v any) string {
	s := IDString(v)
	if s == "" {
		return ""
	}
	if len(s) < 5 && isDigits(s) {
		return strings.Repeat("0", 5-len(s)) + s
	}
	return s
}

// boolString renders filing flags the way SOAP did: "true"/"false" strings.
func boolString(v any) string {
	switch x := v.(type) {
	case nil:
		return "false"
	case bool:
		return strconv.FormatBool(x)
	case string:
		return strings.ToLower(strings.TrimSpace(x))
	default:
		return strings.ToLower(fmt.Sprintf("%v", x))
	}
}

func str(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

// IDStrings normalizes a filers-since-date response: every element becomes
// a string id.
func IDStrings(raw []any) []string {
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		out = append(out, IDString(v))
	}
	return out
}
