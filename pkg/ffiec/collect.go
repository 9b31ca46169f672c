package ffiec

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/regdata/ffiec-connect/internal/adapter"
	"github.com/regdata/ffiec-connect/internal/dates"
	"github.com/regdata/ffiec-connect/internal/ffiecerr"
	"github.com/regdata/ffiec-connect/internal/xbrl"
)

// ItemResult is the outcome of one item in a batch or time-series run.
// Exactly one of Records and Err is meaningful.
type ItemResult struct {
	Records []Record
	Err     error
}

// BatchResult holds a batch collection keyed by RSSD id. Every requested
// id has an entry; failed items carry their error instead of aborting the
// run.
type BatchResult struct {
	RunID   string
	Period  time.Time
	Results map[string]ItemResult
}

// Succeeded counts items that produced records.
func (r *BatchResult) Succeeded() int {
	n := 0
	for _, item := range r.Results {
		if item.Err == nil {
			n++
		}
	}
	return n
}

// TimeSeriesResult holds a time-series collection for one institution,
// keyed by period in yyyymmdd form.
type TimeSeriesResult struct {
	RunID   string
	RSSD    string
	Results map[string]ItemResult
}

// CollectBatch collects call reports for many institutions in one period.
// In-flight work is bounded by the configured concurrency and every
// dispatch shares the client's rate limiter, so parallelism never exceeds
// the upstream ceiling. One item's failure, a malformed id included,
// becomes its result entry and never aborts the run; only the shared
// period is rejected at the batch level.
func (c *Client) CollectBatch(ctx context.Context, period any, rssdIDs []string) (*BatchResult, error) {
	p, err := dates.ParseQuarterEnd(period)
	if err != nil {
		return nil, c.err(err)
	}

	result := &BatchResult{
		RunID:   uuid.NewString(),
		Period:  p,
		Results: make(map[string]ItemResult, len(rssdIDs)),
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, rssd := range rssdIDs {
		if err := adapter.ValidateRSSD(rssd); err != nil {
			mu.Lock()
			result.Results[rssd] = ItemResult{Err: c.err(err)}
			mu.Unlock()
			continue
		}
		if err := c.sem.Acquire(ctx, 1); err != nil {
			// Context gone: record the remaining items as cancelled.
			mu.Lock()
			result.Results[rssd] = ItemResult{Err: c.err(ffiecerr.Connection(err))}
			mu.Unlock()
			continue
		}
		wg.Add(1)
		go func(rssd string) {
			defer wg.Done()
			defer c.sem.Release(1)

			recs, err := c.collectItem(ctx, SeriesCall, p, rssd)
			mu.Lock()
			result.Results[rssd] = ItemResult{Records: recs, Err: err}
			mu.Unlock()
		}(rssd)
	}
	wg.Wait()

	return result, nil
}

// CollectTimeSeries collects one institution's call reports across many
// periods, with the same bounding and error isolation as CollectBatch: an
// unparseable period becomes that item's result entry, keyed by the raw
// input, and the remaining periods proceed. The shared rssd id is
// rejected up front.
func (c *Client) CollectTimeSeries(ctx context.Context, rssd string, periods []any) (*TimeSeriesResult, error) {
	if err := adapter.ValidateRSSD(rssd); err != nil {
		return nil, c.err(err)
	}

	result := &TimeSeriesResult{
		RunID:   uuid.NewString(),
		RSSD:    rssd,
		Results: make(map[string]ItemResult, len(periods)),
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, period := range periods {
		p, err := dates.ParseQuarterEnd(period)
		if err != nil {
			mu.Lock()
			result.Results[fmt.Sprint(period)] = ItemResult{Err: c.err(err)}
			mu.Unlock()
			continue
		}
		key := p.Format("20060102")
		if err := c.sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			result.Results[key] = ItemResult{Err: c.err(ffiecerr.Connection(err))}
			mu.Unlock()
			continue
		}
		wg.Add(1)
		go func(p time.Time, key string) {
			defer wg.Done()
			defer c.sem.Release(1)

			recs, err := c.collectItem(ctx, SeriesCall, p, rssd)
			mu.Lock()
			result.Results[key] = ItemResult{Records: recs, Err: err}
			mu.Unlock()
		}(p, key)
	}
	wg.Wait()

	return result, nil
}

// collectItem runs one bounded collection with the optional per-item
// deadline. The deadline abandons the local wait only; the upstream
// request may still complete.
func (c *Client) collectItem(ctx context.Context, series Series, period time.Time, rssd string) ([]Record, error) {
	if c.itemTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.itemTimeout)
		defer cancel()
	}

	a, err := c.getAdapter()
	if err != nil {
		return nil, c.err(err)
	}
	raw, err := a.Facsimile(ctx, series, period, rssd)
	if err != nil {
		return nil, c.err(err)
	}
	recs, err := xbrl.Decode(raw)
	if err != nil {
		return nil, c.err(err)
	}
	return recs, nil
}
