package soap

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/regdata/ffiec-connect/internal/adapter"
	"github.com/regdata/ffiec-connect/internal/config"
	"github.com/regdata/ffiec-connect/internal/creds"
	"github.com/regdata/ffiec-connect/internal/dates"
	"github.com/regdata/ffiec-connect/internal/ffiecerr"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cred, err := creds.NewLegacy("analyst", "s3cret")
	if err != nil {
		t.Fatal(err)
	}
	cfg := &config.ClientConfig{
		SOAPEndpoint:    srv.URL,
		SOAPRatePerHour: 3600000,
		RateBurst:       100,
		TimeoutSecs:     5,
		MaxRetries:      1,
	}
	c, err := New(cred, adapter.Options{Config: cfg})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func envelope(inner string) string {
	return `<?xml version="1.0"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
  <soap:Body>` + inner + `</soap:Body>
</soap:Envelope>`
}

func TestEnvelopeCarriesSecurityAndParams(t *testing.T) {
	var gotBody string
	var gotAction string
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		gotAction = r.Header.Get("SOAPAction")
		io.WriteString(w, envelope(`<RetrieveReportingPeriodsResponse><RetrieveReportingPeriodsResult><string>3/31/2022</string></RetrieveReportingPeriodsResult></RetrieveReportingPeriodsResponse>`))
	}))

	if _, err := c.ReportingPeriods(context.Background(), adapter.SeriesCall); err != nil {
		t.Fatal(err)
	}

	for _, want := range []string{
		"<wsse:Username>analyst</wsse:Username>",
		"<wsse:Password",
		">s3cret</wsse:Password>",
		"<dataSeries>Call</dataSeries>",
		"<RetrieveReportingPeriods",
	} {
		if !strings.Contains(gotBody, want) {
			t.Errorf("envelope missing %q:\n%s", want, gotBody)
		}
	}
	if gotAction != `"http://cdr.ffiec.gov/public/services/RetrieveReportingPeriods"` {
		t.Errorf("SOAPAction = %s", gotAction)
	}
}

func TestCredentialsAreXMLEscaped(t *testing.T) {
	var gotBody string
	cred, err := creds.NewLegacy("ana<list>", `p&ss"word`)
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		io.WriteString(w, envelope(`<RetrieveReportingPeriodsResponse><RetrieveReportingPeriodsResult></RetrieveReportingPeriodsResult></RetrieveReportingPeriodsResponse>`))
	}))
	defer srv.Close()

	cfg := &config.ClientConfig{SOAPEndpoint: srv.URL, SOAPRatePerHour: 3600000, RateBurst: 10, TimeoutSecs: 5, MaxRetries: 1}
	c, err := New(cred, adapter.Options{Config: cfg})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if _, err := c.ReportingPeriods(context.Background(), adapter.SeriesCall); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(gotBody, "ana<list>") || strings.Contains(gotBody, `p&ss"`) {
		t.Errorf("credentials not escaped:\n%s", gotBody)
	}
	if !strings.Contains(gotBody, "ana&lt;list&gt;") {
		t.Errorf("expected escaped username:\n%s", gotBody)
	}
}

func TestReportingPeriodsSorted(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, envelope(`<RetrieveReportingPeriodsResponse><RetrieveReportingPeriodsResult>
			<string>6/30/2023</string><string>12/31/2019</string><string>3/31/2021</string>
		</RetrieveReportingPeriodsResult></RetrieveReportingPeriodsResponse>`))
	}))

	periods, err := c.ReportingPeriods(context.Background(), adapter.SeriesCall)
	if err != nil {
		t.Fatal(err)
	}
	if len(periods) != 3 {
		t.Fatalf("got %d periods", len(periods))
	}
	for i := 1; i < len(periods); i++ {
		if periods[i].Before(periods[i-1]) {
			t.Fatalf("not ascending: %v", periods)
		}
	}
}

func TestAuthFaultMapsToCredentialError(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, envelope(`<soap:Fault><faultcode>soap:Client</faultcode><faultstring>Security token validation failed</faultstring></soap:Fault>`))
	}))

	_, err := c.ReportingPeriods(context.Background(), adapter.SeriesCall)
	if !ffiecerr.IsCredential(err) {
		t.Errorf("expected credential error for auth fault, got %v", err)
	}
}

func TestNonAuthFaultMapsToConnectionError(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, envelope(`<soap:Fault><faultcode>soap:Server</faultcode><faultstring>database unavailable</faultstring></soap:Fault>`))
	}))

	_, err := c.ReportingPeriods(context.Background(), adapter.SeriesCall)
	if !ffiecerr.IsConnection(err) {
		t.Errorf("expected connection error, got %v", err)
	}
}

func TestPanelNormalization(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, envelope(`<RetrievePanelOfReportersResponse><RetrievePanelOfReportersResult>
			<ReportingFinancialInstitution>
				<ID_RSSD>480228</ID_RSSD>
				<FDICCertNumber>0</FDICCertNumber>
				<OCCChartNumber>1461</OCCChartNumber>
				<Name>Test Bank</Name>
				<State>RI</State>
				<ZIP>2886</ZIP>
				<HasFiledForReportingPeriod>true</HasFiledForReportingPeriod>
			</ReportingFinancialInstitution>
		</RetrievePanelOfReportersResult></RetrievePanelOfReportersResponse>`))
	}))

	period := time.Date(2022, 3, 31, 0, 0, 0, 0, time.UTC)
	panel, err := c.PanelOfReporters(context.Background(), period)
	if err != nil {
		t.Fatal(err)
	}
	if len(panel) != 1 {
		t.Fatalf("got %d institutions", len(panel))
	}
	inst := panel[0]
	if inst.IDRSSD != "480228" || inst.ZIP != "02886" || inst.FDICCertNumber != "" {
		t.Errorf("normalization failed: %+v", inst)
	}
}

func TestFilersSubmissionDateTimeEastern(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, envelope(`<RetrieveFilersSubmissionDateTimeResponse><RetrieveFilersSubmissionDateTimeResult>
			<FilerSubmissionDateTime><ID_RSSD>37</ID_RSSD><DateTime>3/4/2021 9:14:32 AM</DateTime></FilerSubmissionDateTime>
		</RetrieveFilersSubmissionDateTimeResult></RetrieveFilersSubmissionDateTimeResponse>`))
	}))

	period := time.Date(2021, 3, 31, 0, 0, 0, 0, time.UTC)
	subs, err := c.FilersSubmissionDateTime(context.Background(), period, period.AddDate(0, 0, -90))
	if err != nil {
		t.Fatal(err)
	}
	if len(subs) != 1 || subs[0].RSSD != "37" {
		t.Fatalf("subs = %+v", subs)
	}
	if subs[0].SubmittedAt.Location() != dates.Eastern() {
		t.Errorf("submission time zone = %v", subs[0].SubmittedAt.Location())
	}
}

func TestFacsimileBase64Decode(t *testing.T) {
	xbrl := `<xbrl xmlns:cc="cc"><cc:RCFD2170 contextRef="CI_1_2022-03-31" unitRef="USD">7000</cc:RCFD2170></xbrl>`
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, envelope(`<RetrieveFacsimileResponse><RetrieveFacsimileResult>`+
			base64.StdEncoding.EncodeToString([]byte(xbrl))+
			`</RetrieveFacsimileResult></RetrieveFacsimileResponse>`))
	}))

	period := time.Date(2022, 3, 31, 0, 0, 0, 0, time.UTC)
	got, err := c.Facsimile(context.Background(), adapter.SeriesCall, period, "480228")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != xbrl {
		t.Errorf("facsimile = %q", got)
	}
}

func TestEmptyFacsimileIsNoData(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, envelope(`<RetrieveFacsimileResponse><RetrieveFacsimileResult></RetrieveFacsimileResult></RetrieveFacsimileResponse>`))
	}))

	period := time.Date(2022, 3, 31, 0, 0, 0, 0, time.UTC)
	if _, err := c.Facsimile(context.Background(), adapter.SeriesCall, period, "480228"); !ffiecerr.IsNoData(err) {
		t.Errorf("expected no-data error, got %v", err)
	}
}
