// Package adapter defines the protocol-neutral surface both FFIEC transport
// generations implement, and the registry that selects between them. The
// concrete credential type is the only thing that picks a protocol.
package adapter

import (
	"context"
	"time"

	"github.com/regdata/ffiec-connect/internal/ffiecerr"
	"github.com/regdata/ffiec-connect/internal/normalize"
)

// Series names a data series offered by the webservice.
type Series string

const (
	SeriesCall Series = "Call"
	SeriesUBPR Series = "UBPR"
)

// Submission pairs a filer with the moment its filing arrived.
type Submission struct {
	RSSD        string
	SubmittedAt time.Time
}

// Adapter is the protocol-neutral retrieval surface. Both generations
// implement identical semantics; callers never see protocol details.
type Adapter interface {
	// Legacy reports whether this adapter speaks the legacy protocol,
	// which drives the default null-sentinel policy.
	Legacy() bool

	// ReportingPeriods lists available quarter-end periods for the series,
	// oldest first.
	ReportingPeriods(ctx context.Context, series Series) ([]time.Time, error)

	// PanelOfReporters lists every institution required to file for the
	// period.
	PanelOfReporters(ctx context.Context, period time.Time) ([]normalize.Institution, error)

	// FilersSinceDate lists RSSD ids of filers whose submissions arrived
	// after since.
	FilersSinceDate(ctx context.Context, period, since time.Time) ([]string, error)

	// FilersSubmissionDateTime lists filers with their submission moments,
	// qualified to America/New_York.
	FilersSubmissionDateTime(ctx context.Context, period, since time.Time) ([]Submission, error)

	// Facsimile fetches the raw XBRL facsimile for one institution.
	Facsimile(ctx context.Context, series Series, period time.Time, rssd string) ([]byte, error)

	// Close releases the adapter's transport resources.
	Close() error
}

// ValidateRSSD enforces the id grammar: a numeric string from 1 to 8
// digits, no leading sign, value at least 1.
func ValidateRSSD(rssd string) error {
	if len(rssd) == 0 || len(rssd) > 8 {
		return ffiecerr.Validation("rssd_id", rssd, "numeric string of 1-8 digits")
	}
	nonzero := false
	for _, r := range rssd {
		if r < '0' || r > '9' {
			return ffiecerr.Validation("rssd_id", rssd, "numeric string of 1-8 digits")
		}
		if r != '0' {
			nonzero = true
		}
	}
	if !nonzero {
		return ffiecerr.Validation("rssd_id", rssd, "a positive institution id")
	}
	return nil
}

// ValidateSeries rejects unknown data series.
func ValidateSeries(series Series) error {
	if series != SeriesCall && series != SeriesUBPR {
		return ffiecerr.Validation("series", string(series), "Call or UBPR")
	}
	return nil
}
