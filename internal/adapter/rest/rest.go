// Package rest implements the adapter for the modern FFIEC public API.
//
// The API is idiosyncratic: every request parameter travels as an
// exact-cased HTTP header, the bearer token goes in a header literally
// named Authentication, and several client faults surface with deviant
// status codes. All of that is absorbed here.
package rest

import (
	"context"
	"encoding/base64"
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
	adapter.Register("rest", func(opts adapter.Options) (adapter.Adapter, error) {
		cred, ok := opts.Credential.(creds.Modern)
		if !ok {
			return nil, ffiecerr.Credential(fmt.Errorf("rest adapter requires modern credentials, got %T", opts.Credential))
		}
		return New(cred, opts)
	})
}

// Endpoint paths under the public API base URL.
const (
	pathReportingPeriods         = "RetrieveReportingPeriods"
	pathUBPRReportingPeriods     = "RetrieveUBPRReportingPeriods"
	pathPanelOfReporters         = "RetrievePanelOfReporters"
	pathFilersSinceDate          = "RetrieveFilersSinceDate"
	pathFilersSubmissionDateTime = "RetrieveFilersSubmissionDateTime"
	pathFacsimile                = "RetrieveFacsimile"
	pathUBPRFacsimile            = "RetrieveUBPRXBRLFacsimile"
)

// defaultRetryAfter is assumed when a throttle response omits the hint.
const defaultRetryAfter = 60 * time.Second

// Client talks to the modern FFIEC public API.
type Client struct {
	cred creds.Credential
	http *transport.Client
}

// New builds a REST adapter for the given modern credentials.
func New(cred creds.Modern, opts adapter.Options) (*Client, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Load()
	}

	httpClient, err := transport.NewClient(&transport.ClientConfig{
		BaseURL:    cfg.RESTBaseURL,
		Auth:       transport.HeaderTokenAuth{UserID: cred.Username(), Token: cred.Token()},
		Timeout:    time.Duration(cfg.TimeoutSecs) * time.Second,
		MaxRetries: cfg.MaxRetries,
		RateLimit:  float64(cfg.RESTRatePerHour) / 3600.0,
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

func (c *Client) Legacy() bool { return false }

func (c *Client) Close() error { return c.http.Close() }

// get dispatches one API call with parameters as exact-cased headers and
// maps the deviant status codes onto the error taxonomy.
func (c *Client) get(ctx context.Context, path string, params map[string]string) (*transport.Response, error) {
	if modern, ok := c.cred.(creds.Modern); ok && modern.Expired() {
		return nil, ffiecerr.Credential(errors.New("bearer token is expired or expires within 24 hours"))
	}

	resp, err := c.http.Get(ctx, path, params)
	if err != nil {
		return nil, ffiecerr.Connection(err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return resp, nil
	case resp.StatusCode == http.StatusNoContent, resp.StatusCode == http.StatusNotFound:
		return nil, ffiecerr.NoData(fmt.Errorf("%s: no data for request", path))
	case resp.StatusCode == http.StatusBadRequest:
		return nil, ffiecerr.Validation("request", path, "parameters accepted by the API: "+snippet(resp.Body))
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, ffiecerr.Credential(fmt.Errorf("%s: HTTP %d: %s", path, resp.StatusCode, snippet(resp.Body)))
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ffiecerr.RateLimit(resp.RetryAfter(defaultRetryAfter), fmt.Errorf("%s: HTTP 429", path))
	default:
		// The API reports some client faults as 500; treat everything
		// else as a connection-level failure.
		return nil, ffiecerr.Connection(fmt.Errorf("%s: HTTP %d: %s", path, resp.StatusCode, snippet(resp.Body)))
	}
}

func (c *Client) ReportingPeriods(ctx context.Context, series adapter.Series) ([]time.Time, error) {
	if err := adapter.ValidateSeries(series); err != nil {
		return nil, err
	}

	path := pathReportingPeriods
	params := map[string]string{"dataSeries": string(adapter.SeriesCall)}
	if series == adapter.SeriesUBPR {
		// UBPR enumeration is its own endpoint and takes no series header.
		path = pathUBPRReportingPeriods
		params = nil
	}

	resp, err := c.get(ctx, path, params)
	if err != nil {
		return nil, err
	}

	var raw []string
	if err := resp.JSON(&raw); err != nil {
		return nil, ffiecerr.Parse(err, resp.Body)
	}

	periods := make([]time.Time, 0, len(raw))
	for _, s := range raw {
		t, err := dates.Parse(s)
		if err != nil {
			return nil, ffiecerr.Parse(fmt.Errorf("reporting period %q: %w", s, err), resp.Body)
		}
		periods = append(periods, t)
	}
	dates.SortAscending(periods)
	return periods, nil
}

func (c *Client) PanelOfReporters(ctx context.Context, period time.Time) ([]normalize.Institution, error) {
	resp, err := c.get(ctx, pathPanelOfReporters, map[string]string{
		"dataSeries":             string(adapter.SeriesCall),
		"reportingPeriodEndDate": dates.Wire(period),
	})
	if err != nil {
		return nil, err
	}

	var raw []map[string]any
	if err := resp.JSON(&raw); err != nil {
		return nil, ffiecerr.Parse(err, resp.Body)
	}

	panel := make([]normalize.Institution, 0, len(raw))
	for _, item := range raw {
		panel = append(panel, normalize.InstitutionFromRaw(item))
	}
	return panel, nil
}

func (c *Client) FilersSinceDate(ctx context.Context, period, since time.Time) ([]string, error) {
	resp, err := c.get(ctx, pathFilersSinceDate, map[string]string{
		"dataSeries":             string(adapter.SeriesCall),
		"reportingPeriodEndDate": dates.Wire(period),
		"lastUpdateDateTime":     dates.Wire(since),
	})
	if err != nil {
		return nil, err
	}

	var raw []any
	if err := resp.JSON(&raw); err != nil {
		return nil, ffiecerr.Parse(err, resp.Body)
	}
	return normalize.IDStrings(raw), nil
}

func (c *Client) FilersSubmissionDateTime(ctx context.Context, period, since time.Time) ([]adapter.Submission, error) {
	resp, err := c.get(ctx, pathFilersSubmissionDateTime, map[string]string{
		"dataSeries":             string(adapter.SeriesCall),
		"reportingPeriodEndDate": dates.Wire(period),
		"lastUpdateDateTime":     dates.Wire(since),
	})
	if err != nil {
		return nil, err
	}

	var raw []map[string]any
	if err := resp.JSON(&raw); err != nil {
		return nil, ffiecerr.Parse(err, resp.Body)
	}

	subs := make([]adapter.Submission, 0, len(raw))
	for _, item := range raw {
		ts, ok := item["SubmissionDateTime"].(string)
		if !ok {
			return nil, ffiecerr.Parse(fmt.Errorf("submission entry missing SubmissionDateTime"), resp.Body)
		}
		at, err := dates.ParseSubmissionTime(ts)
		if err != nil {
			return nil, ffiecerr.Parse(fmt.Errorf("submission timestamp %q: %w", ts, err), resp.Body)
		}
		subs = append(subs, adapter.Submission{
			RSSD:        normalize.IDString(item["ID_RSSD"]),
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

	path := pathFacsimile
	params := map[string]string{
		"dataSeries":             string(adapter.SeriesCall),
		"reportingPeriodEndDate": dates.Wire(period),
		"fiIDType":               "ID_RSSD",
		"fiID":                   rssd,
		"facsimileFormat":        "XBRL",
	}
	if series == adapter.SeriesUBPR {
		// The UBPR endpoint is XBRL-only and takes neither the series nor
		// the format header.
		path = pathUBPRFacsimile
		delete(params, "dataSeries")
		delete(params, "facsimileFormat")
	}

	resp, err := c.get(ctx, path, params)
	if err != nil {
		return nil, err
	}

	// A JSON content type means the XBRL arrived base64-wrapped in a JSON
	// string; anything else is the raw document.
	if strings.Contains(resp.Headers.Get("Content-Type"), "json") {
		return decodeWrappedFacsimile(resp.Body)
	}
	return resp.Body, nil
}

func decodeWrappedFacsimile(body []byte) ([]byte, error) {
	s := strings.TrimSpace(string(body))
	s = strings.Trim(s, `"`)
	decoded, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, ffiecerr.Parse(fmt.Errorf("base64 facsimile: %w", err), body)
	}
	return decoded, nil
}

func snippet(body []byte) string {
	const limit = 200
	if len(body) > limit {
		body = body[:limit]
	}
	return string(body)
}
