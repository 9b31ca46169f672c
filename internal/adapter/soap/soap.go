// Package soap implements the adapter for the legacy FFIEC webservice.
//
// The service is a document/literal SOAP 1.1 endpoint authenticated with a
// WS-Security UsernameToken in the envelope header. Envelopes are small and
// fixed-shape, so they are built and parsed with encoding/xml directly.
package soap

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/regdata/ffiec-connect/internal/adapter"
	"github.com/regdata/ffiec-connect/internal/config"
	"github.com/regdata/ffiec-connect/internal/creds"
	"github.com/regdata/ffiec-connect/internal/dates"
	"github.com/regdata/ffiec-connect/internal/ffiecerr"
	"github.com/regdata/ffiec-connect/internal/normalize"
	"github.com/regdata/ffiec-connect/internal/transport"
)

func init() {
	adapter.Register("soap", func(opts adapter.Options) (adapter.Adapter, error) {
		cred, ok := opts.Credential.(creds.Legacy)
		if !ok {
			return nil, ffiecerr.Credential(fmt.Errorf("soap adapter requires legacy credentials, got %T", opts.Credential))
		}
		return New(cred, opts)
	})
}

const (
	serviceNS  = "http://cdr.ffiec.gov/public/services"
	soapEnvNS  = "http://schemas.xmlsoap.org/soap/envelope/"
	wsseNS     = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-secext-1.0.xsd"
	passwdType = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-username-token-profile-1.0#PasswordText"
)

// Client talks to the legacy FFIEC retrieval webservice.
type Client struct {
	cred creds.Legacy
	http *transport.Client
}

// New builds a SOAP adapter for the given legacy credentials.
func New(cred creds.Legacy, opts adapter.Options) (*Client, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Load()
	}

	httpClient, err := transport.NewClient(&transport.ClientConfig{
		BaseURL:    cfg.SOAPEndpoint,
		Auth:       transport.NoAuth{},
		Timeout:    time.Duration(cfg.TimeoutSecs) * time.Second,
		MaxRetries: cfg.MaxRetries,
		RateLimit:  float64(cfg.SOAPRatePerHour) / 3600.0,
		RateBurst:  cfg.RateBurst,
		Limiter:    opts.Limiter,
		Proxy:      cfg.Proxy,
		Transport:  opts.Transport,
	})
	if err != nil {
		return nil, ffiecerr.Session(err)
	}
	return &Client{cred: cred, http: httpClient}, nil
}

func (c *Client) Legacy() bool { return true }

func (c *Client) Close() error { return c.http.Close() }

// =============================================================================
// ENVELOPE CONSTRUCTION
// =============================================================================

type param struct {
	name  string
	value string
}

// buildEnvelope assembles the SOAP 1.1 request with a WS-Security header.
// Parameter order matters to the service, so params is a slice.
func (c *Client) buildEnvelope(operation string, params []param) ([]byte, error) {
	var body bytes.Buffer
	body.WriteString(xml.Header)
	body.WriteString(`<soap:Envelope xmlns:soap="` + soapEnvNS + `">`)
	body.WriteString(`<soap:Header>`)
	body.WriteString(`<wsse:Security xmlns:wsse="` + wsseNS + `"><wsse:UsernameToken>`)
	body.WriteString(`<wsse:Username>`)
	if err := xml.EscapeText(&body, []byte(c.cred.Username())); err != nil {
		return nil, err
	}
	body.WriteString(`</wsse:Username>`)
	body.WriteString(`<wsse:Password Type="` + passwdType + `">`)
	if err := xml.EscapeText(&body, []byte(c.cred.Password())); err != nil {
		return nil, err
	}
	body.WriteString(`</wsse:Password>`)
	body.WriteString(`</wsse:UsernameToken></wsse:Security>`)
	body.WriteString(`</soap:Header>`)
	body.WriteString(`<soap:Body>`)
	body.WriteString(`<` + operation + ` xmlns="` + serviceNS + `">`)
	for _, p := range params {
		body.WriteString(`<` + p.name + `>`)
		if err := xml.EscapeText(&body, []byte(p.value)); err != nil {
			return nil, err
		}
		body.WriteString(`</` + p.name + `>`)
	}
	body.WriteString(`</` + operation + `>`)
	body.WriteString(`</soap:Body></soap:Envelope>`)
	return body.Bytes(), nil
}

// fault is the SOAP 1.1 fault element.
type fault struct {
	Code   string `xml:"faultcode"`
	String string `xml:"faultstring"`
}

// call dispatches one operation and returns the raw response body for
// operation-specific decoding. Faults are mapped onto the taxonomy here.
func (c *Client) call(ctx context.Context, operation string, params []param) ([]byte, error) {
	envelope, err := c.buildEnvelope(operation, params)
	if err != nil {
		return nil, ffiecerr.Session(err)
	}

	resp, err := c.http.Post(ctx, "", "text/xml; charset=utf-8", bytes.NewReader(envelope), map[string]string{
		"SOAPAction": `"` + serviceNS + `/` + operation + `"`,
	})
	if err != nil {
		return nil, ffiecerr.Connection(err)
	}

	// Faults arrive as HTTP 500 with a fault body; check for one before
	// mapping the status.
	if f := extractFault(resp.Body); f != nil {
		msg := fmt.Errorf("%s: SOAP fault %s: %s", operation, f.Code, f.String)
		if isAuthFault(f) {
			return nil, ffiecerr.Credential(msg)
		}
		return nil, ffiecerr.Connection(msg)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return resp.Body, nil
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, ffiecerr.Credential(fmt.Errorf("%s: HTTP %d", operation, resp.StatusCode))
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ffiecerr.RateLimit(resp.RetryAfter(60*time.Second), fmt.Errorf("%s: HTTP 429", operation))
	default:
		return nil, ffiecerr.Connection(fmt.Errorf("%s: HTTP %d", operation, resp.StatusCode))
	}
}

func extractFault(body []byte) *fault {
	if !bytes.Contains(body, []byte("Fault")) {
		return nil
	}
	var env struct {
		Fault *fault `xml:"Body>Fault"`
	}
	if err := xml.Unmarshal(body, &env); err != nil {
		return nil
	}
	return env.Fault
}

func isAuthFault(f *fault) bool {
	s := strings.ToLower(f.Code + " " + f.String)
	for _, marker := range []string{"auth", "security", "credential", "password", "token"} {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}

// =============================================================================
// OPERATIONS
// =============================================================================

func (c *Client) ReportingPeriods(ctx context.Context, series adapter.Series) ([]time.Time, error) {
	if err := adapter.ValidateSeries(series); err != nil {
		return nil, err
	}

	body, err := c.call(ctx, "RetrieveReportingPeriods", []param{{"dataSeries", string(series)}})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Periods []string `xml:"Body>RetrieveReportingPeriodsResponse>RetrieveReportingPeriodsResult>string"`
	}
	if err := xml.Unmarshal(body, &resp); err != nil {
		return nil, ffiecerr.Parse(err, body)
	}

	periods := make([]time.Time, 0, len(resp.Periods))
	for _, s := range resp.Periods {
		t, err := dates.Parse(s)
		if err != nil {
			return nil, ffiecerr.Parse(fmt.Errorf("reporting period %q: %w", s, err), body)
		}
		periods = append(periods, t)
	}
	dates.SortAscending(periods)
	return periods, nil
}

func (c *Client) PanelOfReporters(ctx context.Context, period time.Time) ([]normalize.Institution, error) {
	body, err := c.call(ctx, "RetrievePanelOfReporters", []param{
		{"dataSeries", string(adapter.SeriesCall)},
		{"reportingPeriodEndDate", dates.Wire(period)},
	})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Institutions []struct {
			IDRSSD            string `xml:"ID_RSSD"`
			FDICCertNumber    string `xml:"FDICCertNumber"`
			OCCChartNumber    string `xml:"OCCChartNumber"`
			OTSDockNumber     string `xml:"OTSDockNumber"`
			PrimaryABARoutNum string `xml:"PrimaryABARoutNumber"`
			Name              string `xml:"Name"`
			State             string `xml:"State"`
			City              string `xml:"City"`
			Address           string `xml:"Address"`
			ZIP               string `xml:"ZIP"`
			FilingType        string `xml:"FilingType"`
			HasFiled          string `xml:"HasFiledForReportingPeriod"`
		} `xml:"Body>RetrievePanelOfReportersResponse>RetrievePanelOfReportersResult>ReportingFinancialInstitution"`
	}
	if err := xml.Unmarshal(body, &resp); err != nil {
		return nil, ffiecerr.Parse(err, body)
	}

	panel := make([]normalize.Institution, 0, len(resp.Institutions))
	for _, inst := range resp.Institutions {
		panel = append(panel, normalize.InstitutionFromRaw(map[string]any{
			"ID_RSSD":                    inst.IDRSSD,
			"FDICCertNumber":             inst.FDICCertNumber,
			"OCCChartNumber":             inst.OCCChartNumber,
			"OTSDockNumber":              inst.OTSDockNumber,
			"PrimaryABARoutNumber":       inst.PrimaryABARoutNum,
			"Name":                       inst.Name,
			"State":                      inst.State,
			"City":                       inst.City,
			"Address":                    inst.Address,
			"ZIP":                        inst.ZIP,
			"FilingType":                 inst.FilingType,
			"HasFiledForReportingPeriod": inst.HasFiled,
		}))
	}
	return panel, nil
}

func (c *Client) FilersSinceDate(ctx context.Context, period, since time.Time) ([]string, error) {
	body, err := c.call(ctx, "RetrieveFilersSinceDate", []param{
		{"dataSeries", string(adapter.SeriesCall)},
		{"reportingPeriodEndDate", dates.Wire(period)},
		{"lastUpdateDateTime", dates.Wire(since)},
	})
	if err != nil {
		return nil, err
	}

	var resp struct {
		IDs []string `xml:"Body>RetrieveFilersSinceDateResponse>RetrieveFilersSinceDateResult>int"`
	}
	if err := xml.Unmarshal(body, &resp); err != nil {
		return nil, ffiecerr.Parse(err, body)
	}

	out := make([]string, 0, len(resp.IDs))
	for _, id := range resp.IDs {
		out = append(out, normalize.IDString(id))
	}
	return out, nil
}

func (c *Client) FilersSubmissionDateTime(ctx context.Context, period, since time.Time) ([]adapter.Submission, error) {
	body, err := c.call(ctx, "RetrieveFilersSubmissionDateTime", []param{
		{"dataSeries", string(adapter.SeriesCall)},
		{"reportingPeriodEndDate", dates.Wire(period)},
		{"lastUpdateDateTime", dates.Wire(since)},
	})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Items []struct {
			IDRSSD    string `xml:"ID_RSSD"`
			Timestamp string `xml:"DateTime"`
		} `xml:"Body>RetrieveFilersSubmissionDateTimeResponse>RetrieveFilersSubmissionDateTimeResult>FilerSubmissionDateTime"`
	}
	if err := xml.Unmarshal(body, &resp); err != nil {
		return nil, ffiecerr.Parse(err, body)
	}

	subs := make([]adapter.Submission, 0, len(resp.Items))
	for _, item := range resp.Items {
		at, err := dates.ParseSubmissionTime(item.Timestamp)
		if err != nil {
			return nil, ffiecerr.Parse(fmt.Errorf("submission timestamp %q: %w", item.Timestamp, err), body)
		}
		subs = append(subs, adapter.Submission{
			RSSD:        normalize.IDString(item.IDRSSD),
			SubmittedAt: at,
		})
	}
	return subs, nil
}

func (c *Client) Facsimile(ctx context.Context, series adapter.Series, period time.Time, rssd string) ([]byte, error) {
	if err := adapter.ValidateSeries(series); err != nil {
		return nil, err
	}
	if err := adapter.ValidateRSSD(rssd); err != nil {
		return nil, err
	}

	operation := "RetrieveFacsimile"
	params := []param{
		{"dataSeries", string(adapter.SeriesCall)},
		{"reportingPeriodEndDate", dates.Wire(period)},
		{"fiIDType", "ID_RSSD"},
		{"fiID", rssd},
		{"facsimileFormat", "XBRL"},
	}
	if series == adapter.SeriesUBPR {
		operation = "RetrieveUBPRXBRLFacsimile"
		params = []param{
			{"reportingPeriodEndDate", dates.Wire(period)},
			{"fiIDType", "ID_RSSD"},
			{"fiID", rssd},
		}
	}

	body, err := c.call(ctx, operation, params)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Call []byte `xml:"Body>RetrieveFacsimileResponse>RetrieveFacsimileResult"`
		UBPR []byte `xml:"Body>RetrieveUBPRXBRLFacsimileResponse>RetrieveUBPRXBRLFacsimileResult"`
	}
	if err := xml.Unmarshal(body, &resp); err != nil {
		return nil, ffiecerr.Parse(err, body)
	}

	encoded := resp.Call
	if series == adapter.SeriesUBPR {
		encoded = resp.UBPR
	}
	if len(bytes.TrimSpace(encoded)) == 0 {
		return nil, ffiecerr.NoData(errors.New(operation + ": empty facsimile result"))
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(encoded)))
	if err != nil {
		return nil, ffiecerr.Parse(fmt.Errorf("base64 facsimile: %w", err), encoded)
	}
	return decoded, nil
}
