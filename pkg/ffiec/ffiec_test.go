package ffiec

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/regdata/ffiec-connect/internal/config"
	"github.com/regdata/ffiec-connect/internal/ffiecerr"
)

const testToken = "eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiJ0In0."

func facsimileFor(rssd string) string {
	return fmt.Sprintf(`<xbrl xmlns:cc="http://www.cdr.ffiec.gov/xbrl/concepts/cc">
  <cc:RCFD2170 contextRef="CI_%s_2022-03-31" unitRef="USD">1500000</cc:RCFD2170>
  <cc:UBPR7402 contextRef="CI_%s_2022-03-31" unitRef="PURE">1.25</cc:UBPR7402>
  <cc:TEXT9999 contextRef="CI_%s_2022-03-31">narrative</cc:TEXT9999>
</xbrl>`, rssd, rssd, rssd)
}

// newTestClient builds a modern-protocol client pointed at srv.
func newTestClient(t *testing.T, srv *httptest.Server, cfg *Config) *Client {
	t.Helper()
	cred, err := NewModernCredentials("analyst", testToken, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Settings == nil {
		cfg.Settings = &config.ClientConfig{
			RESTBaseURL:     srv.URL,
			RESTRatePerHour: 3600000,
			RateBurst:       100,
			MaxConcurrent:   4,
			TimeoutSecs:     5,
			MaxRetries:      1,
		}
	}
	c, err := NewClient(cred, cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func facsimileServer(t *testing.T, failRSSD string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		rssd := r.Header.Get("fiID")
		if rssd == failRSSD {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/xml")
		fmt.Fprint(w, facsimileFor(rssd))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestCollectDataDecodesRecords(t *testing.T) {
	srv, _ := facsimileServer(t, "")
	c := newTestClient(t, srv, nil)

	recs, err := c.CollectData(context.Background(), "3/31/2022", "480228")
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d records", len(recs))
	}
	for _, r := range recs {
		if r.RSSD != "480228" {
			t.Errorf("record RSSD = %q", r.RSSD)
		}
	}
}

func TestCollectBatchIsolatesFailures(t *testing.T) {
	srv, _ := facsimileServer(t, "666")
	c := newTestClient(t, srv, nil)

	ids := []string{"1", "2", "666", "4", "5"}
	result, err := c.CollectBatch(context.Background(), "03/31/2022", ids)
	if err != nil {
		t.Fatal(err)
	}
	if result.RunID == "" {
		t.Error("batch must carry a run id")
	}
	if len(result.Results) != len(ids) {
		t.Fatalf("got %d entries, want %d", len(result.Results), len(ids))
	}
	if result.Succeeded() != len(ids)-1 {
		t.Errorf("succeeded = %d, want %d", result.Succeeded(), len(ids)-1)
	}
	if item := result.Results["666"]; !ffiecerr.IsNoData(item.Err) {
		t.Errorf("failed item error = %v, want no-data", item.Err)
	}
	if item := result.Results["4"]; item.Err != nil || len(item.Records) == 0 {
		t.Errorf("sibling item poisoned: %+v", item)
	}
}

func TestCollectBatchBadIDBecomesItemEntry(t *testing.T) {
	srv, calls := facsimileServer(t, "")
	c := newTestClient(t, srv, nil)

	result, err := c.CollectBatch(context.Background(), "03/31/2022", []string{"1", "2", "not-a-number"})
	if err != nil {
		t.Fatalf("a malformed id must not abort the batch: %v", err)
	}
	if result.Succeeded() != 2 {
		t.Errorf("succeeded = %d, want 2", result.Succeeded())
	}
	if item := result.Results["not-a-number"]; !ffiecerr.IsValidation(item.Err) {
		t.Errorf("bad id entry = %+v, want validation error", item)
	}
	if calls.Load() != 2 {
		t.Errorf("server saw %d requests, want 2 (bad id never reaches the wire)", calls.Load())
	}
}

func TestCollectTimeSeriesBadPeriodBecomesItemEntry(t *testing.T) {
	srv, calls := facsimileServer(t, "")
	c := newTestClient(t, srv, nil)

	result, err := c.CollectTimeSeries(context.Background(), "480228", []any{"3/31/2022", "not-a-date"})
	if err != nil {
		t.Fatalf("an unparseable period must not abort the run: %v", err)
	}
	if item, ok := result.Results["20220331"]; !ok || item.Err != nil {
		t.Errorf("valid period entry = %+v (present=%v)", item, ok)
	}
	if item := result.Results["not-a-date"]; !ffiecerr.IsValidation(item.Err) {
		t.Errorf("bad period entry = %+v, want validation error keyed by raw input", item)
	}
	if calls.Load() != 1 {
		t.Errorf("server saw %d requests, want 1", calls.Load())
	}
}

func TestCollectTimeSeriesKeyedByPeriod(t *testing.T) {
	srv, _ := facsimileServer(t, "")
	c := newTestClient(t, srv, nil)

	result, err := c.CollectTimeSeries(context.Background(), "480228", []any{"3/31/2022", "2Q2022", "20220930"})
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"20220331", "20220630", "20220930"} {
		item, ok := result.Results[key]
		if !ok || item.Err != nil {
			t.Errorf("period %s: %+v (present=%v)", key, item, ok)
		}
	}
}

func TestConcurrencyBound(t *testing.T) {
	var inFlight, peak atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		inFlight.Add(-1)
		w.Header().Set("Content-Type", "text/xml")
		fmt.Fprint(w, facsimileFor(r.Header.Get("fiID")))
	}))
	t.Cleanup(srv.Close)

	cfg := &Config{Settings: &config.ClientConfig{
		RESTBaseURL:     srv.URL,
		RESTRatePerHour: 3600000,
		RateBurst:       100,
		MaxConcurrent:   2,
		TimeoutSecs:     5,
		MaxRetries:      1,
	}}
	c := newTestClient(t, srv, cfg)

	ids := []string{"1", "2", "3", "4", "5", "6", "7", "8"}
	if _, err := c.CollectBatch(context.Background(), "3/31/2022", ids); err != nil {
		t.Fatal(err)
	}
	if p := peak.Load(); p > 2 {
		t.Errorf("peak in-flight = %d, want <= 2", p)
	}
}

func TestOutputFormats(t *testing.T) {
	srv, _ := facsimileServer(t, "")
	c := newTestClient(t, srv, nil)

	recs, err := c.CollectData(context.Background(), "3/31/2022", "480228")
	if err != nil {
		t.Fatal(err)
	}

	maps, err := c.FormatRecords(recs)
	if err != nil {
		t.Fatal(err)
	}
	if len(maps) != len(recs) {
		t.Errorf("maps = %d", len(maps))
	}
	// Modern protocol defaults to the preserving policy.
	foundInt := false
	for _, m := range maps {
		if v, ok := m["int_data"].(int64); ok && v == 1500 {
			foundInt = true
		}
	}
	if !foundInt {
		t.Error("preserving policy must keep int64 1500 (1500000 USD in thousands)")
	}

	table, err := c.BuildTable(recs)
	if err != nil {
		t.Fatal(err)
	}
	if table.Len() != len(recs) {
		t.Errorf("table rows = %d", table.Len())
	}

	pq, err := c.WriteParquet(recs)
	if err != nil {
		t.Fatal(err)
	}
	// Parquet files start with the PAR1 magic.
	if len(pq) < 8 || string(pq[:4]) != "PAR1" {
		t.Errorf("parquet output missing magic, got %d bytes", len(pq))
	}

	if _, err := c.Output(recs, Format("csv")); !ffiecerr.IsValidation(err) {
		t.Errorf("unknown format must be a validation error, got %v", err)
	}
}

func TestWideningOverrideOnModernClient(t *testing.T) {
	srv, _ := facsimileServer(t, "")
	c := newTestClient(t, srv, &Config{NullPolicy: PolicyWidening, Settings: &config.ClientConfig{
		RESTBaseURL:     srv.URL,
		RESTRatePerHour: 3600000,
		RateBurst:       100,
		MaxConcurrent:   4,
		TimeoutSecs:     5,
		MaxRetries:      1,
	}})

	recs, err := c.CollectData(context.Background(), "3/31/2022", "480228")
	if err != nil {
		t.Fatal(err)
	}
	maps, err := c.FormatRecords(recs)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, m := range maps {
		if v, ok := m["int_data"].(float64); ok && v == 1500.0 {
			found = true
		}
	}
	if !found {
		t.Error("explicit widening must render ints as float64")
	}
}

func TestLegacyErrorModeCollapses(t *testing.T) {
	srv, _ := facsimileServer(t, "")
	c := newTestClient(t, srv, &Config{LegacyErrors: true, Settings: &config.ClientConfig{
		RESTBaseURL:     srv.URL,
		RESTRatePerHour: 3600000,
		RateBurst:       100,
		MaxConcurrent:   4,
		TimeoutSecs:     5,
		MaxRetries:      1,
	}})

	_, err := c.CollectData(context.Background(), "not-a-date", "480228")
	if err == nil {
		t.Fatal("expected an error")
	}
	var fe *ffiecerr.Error
	if errors.As(err, &fe) {
		t.Errorf("legacy mode must strip the typed wrapper, got %T", err)
	}

	// A second client without the toggle keeps typed errors.
	c2 := newTestClient(t, srv, nil)
	_, err = c2.CollectData(context.Background(), "not-a-date", "480228")
	if !ffiecerr.IsValidation(err) {
		t.Errorf("non-legacy client must keep typed errors, got %v", err)
	}
}

func TestAdapterReuseAcrossCalls(t *testing.T) {
	srv, _ := facsimileServer(t, "")
	c := newTestClient(t, srv, nil)

	a1, err := c.getAdapter()
	if err != nil {
		t.Fatal(err)
	}
	a2, err := c.getAdapter()
	if err != nil {
		t.Fatal(err)
	}
	if a1 != a2 {
		t.Error("repeated collections must reuse the cached adapter")
	}
}

func TestNonQuarterEndPeriodRejected(t *testing.T) {
	srv, calls := facsimileServer(t, "")
	c := newTestClient(t, srv, nil)

	if _, err := c.CollectData(context.Background(), "02/28/2022", "480228"); !ffiecerr.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if calls.Load() != 0 {
		t.Error("invalid period must not reach the wire")
	}
}
