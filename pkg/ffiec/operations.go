package ffiec

import (
	"context"
	"errors"
	"time"

	"github.com/regdata/ffiec-connect/internal/adapter"
	"github.com/regdata/ffiec-connect/internal/dates"
	"github.com/regdata/ffiec-connect/internal/ffiecerr"
	"github.com/regdata/ffiec-connect/internal/xbrl"
)

// =============================================================================
// ENUMERATION OPERATIONS
// =============================================================================

// ReportingPeriods lists available call-report quarter ends, oldest first.
func (c *Client) ReportingPeriods(ctx context.Context) ([]time.Time, error) {
	a, err := c.getAdapter()
	if err != nil {
		return nil, c.err(err)
	}
	periods, err := a.ReportingPeriods(ctx, SeriesCall)
	if err != nil {
		return nil, c.err(err)
	}
	return periods, nil
}

// UBPRReportingPeriods lists available UBPR quarter ends, oldest first.
func (c *Client) UBPRReportingPeriods(ctx context.Context) ([]time.Time, error) {
	a, err := c.getAdapter()
	if err != nil {
		return nil, c.err(err)
	}
	periods, err := a.ReportingPeriods(ctx, SeriesUBPR)
	if err != nil {
		return nil, c.err(err)
	}
	return periods, nil
}

// RenderPeriods formats parsed periods per the client's date format. With
// DateFormatStructured the time.Time values come back unchanged.
func (c *Client) RenderPeriods(periods []time.Time) ([]any, error) {
	out := make([]any, 0, len(periods))
	for _, p := range periods {
		v, err := dates.Render(p, c.dateFormat)
		if err != nil {
			return nil, c.err(err)
		}
		out = append(out, v)
	}
	return out, nil
}

// =============================================================================
// PANEL AND FILER OPERATIONS
// =============================================================================

// PanelOfReporters lists every institution required to file for the
// period. The period accepts mm/dd/yyyy, yyyy-mm-dd, yyyymmdd, #Qyyyy, or
// time.Time and must be a quarter end.
func (c *Client) PanelOfReporters(ctx context.Context, period any) ([]Institution, error) {
	p, err := dates.ParseQuarterEnd(period)
	if err != nil {
		return nil, c.err(err)
	}
	a, err := c.getAdapter()
	if err != nil {
		return nil, c.err(err)
	}
	panel, err := a.PanelOfReporters(ctx, p)
	if err != nil {
		return nil, c.err(err)
	}
	return panel, nil
}

// FilersSinceDate lists RSSD ids of institutions whose filings for the
// period arrived after since.
func (c *Client) FilersSinceDate(ctx context.Context, period, since any) ([]string, error) {
	p, err := dates.ParseQuarterEnd(period)
	if err != nil {
		return nil, c.err(err)
	}
	s, err := dates.Parse(since)
	if err != nil {
		return nil, c.err(err)
	}
	a, err := c.getAdapter()
	if err != nil {
		return nil, c.err(err)
	}
	ids, err := a.FilersSinceDate(ctx, p, s)
	if err != nil {
		return nil, c.err(err)
	}
	return ids, nil
}

// FilersSubmissionDateTime lists filers with their submission timestamps,
// qualified to America/New_York.
func (c *Client) FilersSubmissionDateTime(ctx context.Context, period, since any) ([]Submission, error) {
	p, err := dates.ParseQuarterEnd(period)
	if err != nil {
		return nil, c.err(err)
	}
	s, err := dates.Parse(since)
	if err != nil {
		return nil, c.err(err)
	}
	a, err := c.getAdapter()
	if err != nil {
		return nil, c.err(err)
	}
	subs, err := a.FilersSubmissionDateTime(ctx, p, s)
	if err != nil {
		return nil, c.err(err)
	}
	return subs, nil
}

// =============================================================================
// DATA COLLECTION OPERATIONS
// =============================================================================

// CollectData retrieves one institution's call report for the period and
// decodes it into records.
func (c *Client) CollectData(ctx context.Context, period any, rssd string) ([]Record, error) {
	return c.collect(ctx, SeriesCall, period, rssd)
}

// CollectUBPRData retrieves one institution's UBPR facsimile for the
// period and decodes it into records.
func (c *Client) CollectUBPRData(ctx context.Context, period any, rssd string) ([]Record, error) {
	return c.collect(ctx, SeriesUBPR, period, rssd)
}

func (c *Client) collect(ctx context.Context, series Series, period any, rssd string) ([]Record, error) {
	raw, err := c.RawFacsimile(ctx, series, period, rssd)
	if err != nil {
		return nil, err
	}
	recs, err := xbrl.Decode(raw)
	if err != nil {
		return nil, c.err(err)
	}
	return recs, nil
}

// RawFacsimile retrieves the undecoded XBRL document for callers that want
// the markup itself.
func (c *Client) RawFacsimile(ctx context.Context, series Series, period any, rssd string) ([]byte, error) {
	if err := adapter.ValidateSeries(series); err != nil {
		return nil, c.err(err)
	}
	if err := adapter.ValidateRSSD(rssd); err != nil {
		return nil, c.err(err)
	}
	p, err := dates.ParseQuarterEnd(period)
	if err != nil {
		return nil, c.err(err)
	}
	a, err := c.getAdapter()
	if err != nil {
		return nil, c.err(err)
	}
	raw, err := a.Facsimile(ctx, series, p, rssd)
	if err != nil {
		return nil, c.err(err)
	}
	if len(raw) == 0 {
		return nil, c.err(ffiecerr.NoData(errors.New("facsimile response was empty")))
	}
	return raw, nil
}

// FormatSubmissions renders submissions as maps carrying both rssd and
// id_rssd, with the timestamp rendered per the client's date format.
func (c *Client) FormatSubmissions(subs []Submission) []map[string]any {
	out := make([]map[string]any, 0, len(subs))
	for _, s := range subs {
		var ts any
		switch c.dateFormat {
		case DateFormatStructured:
			ts = s.SubmittedAt
		default:
			ts = s.SubmittedAt.Format("1/2/2006 3:04:05 PM")
		}
		out = append(out, map[string]any{
			"rssd":                s.RSSD,
			"id_rssd":             s.RSSD,
			"submission_datetime": ts,
		})
	}
	return out
}
