// Package ffiec is the public API for collecting FFIEC regulatory filings.
//
// A Client speaks either the legacy SOAP webservice or the modern REST API;
// the credential type picks the protocol and nothing else does. All
// protocol quirks (header-borne parameters, deviant status codes, envelope
// faults, base64-wrapped facsimiles) are absorbed below this package, and
// every operation yields the same shapes regardless of protocol.
package ffiec

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/regdata/ffiec-connect/internal/adapter"
	"github.com/regdata/ffiec-connect/internal/config"
	"github.com/regdata/ffiec-connect/internal/creds"
	"github.com/regdata/ffiec-connect/internal/dates"
	"github.com/regdata/ffiec-connect/internal/ffiecerr"
	"github.com/regdata/ffiec-connect/internal/normalize"
	"github.com/regdata/ffiec-connect/internal/records"
	"github.com/regdata/ffiec-connect/internal/session"

	// Protocol adapters register themselves on import.
	_ "github.com/regdata/ffiec-connect/internal/adapter/rest"
	_ "github.com/regdata/ffiec-connect/internal/adapter/soap"
)

// =============================================================================
// RE-EXPORTED TYPES
// =============================================================================

type (
	// Credential is either LegacyCredentials or ModernCredentials.
	Credential = creds.Credential

	// LegacyCredentials authenticate against the SOAP webservice.
	LegacyCredentials = creds.Legacy

	// ModernCredentials authenticate against the REST API.
	ModernCredentials = creds.Modern

	// Record is one normalized financial datum.
	Record = records.Record

	// NullPolicy selects null-sentinel behavior in rendered output.
	NullPolicy = records.NullPolicy

	// DateFormat selects how reporting periods render.
	DateFormat = dates.OutputFormat

	// Institution is one filer from the panel of reporters.
	Institution = normalize.Institution

	// Submission pairs a filer with its submission moment.
	Submission = adapter.Submission

	// Series names a data series (Call or UBPR).
	Series = adapter.Series
)

const (
	PolicyDefault    = records.PolicyDefault
	PolicyWidening   = records.PolicyWidening
	PolicyPreserving = records.PolicyPreserving

	DateFormatOriginal   = dates.FormatOriginal
	DateFormatCompact    = dates.FormatCompact
	DateFormatStructured = dates.FormatStructured

	SeriesCall = adapter.SeriesCall
	SeriesUBPR = adapter.SeriesUBPR
)

// NewLegacyCredentials builds SOAP credentials, falling back to the
// FFIEC_USERNAME / FFIEC_PASSWORD environment variables.
func NewLegacyCredentials(username, password string) (LegacyCredentials, error) {
	return creds.NewLegacy(username, password)
}

// NewModernCredentials builds REST credentials from a PWS bearer token.
func NewModernCredentials(username, token string, expires time.Time) (ModernCredentials, error) {
	return creds.NewModern(username, token, expires)
}

// =============================================================================
// CLIENT
// =============================================================================

// Config tunes a Client. The zero value is usable: settings come from the
// environment and output defaults follow the protocol.
type Config struct {
	// Settings overrides the environment-derived connection settings.
	Settings *config.ClientConfig

	// NullPolicy overrides the protocol default (legacy widens, modern
	// preserves).
	NullPolicy NullPolicy

	// DateFormat selects period rendering in record maps (default:
	// the webservice's own m/d/yyyy).
	DateFormat DateFormat

	// ItemTimeout bounds each item of a batch or time-series collection.
	// The local call is abandoned at the deadline; the remote request may
	// still complete upstream.
	ItemTimeout time.Duration

	// LegacyErrors collapses typed errors into plain generic errors for
	// callers written against the original single-error surface. Scoped
	// to this client only.
	LegacyErrors bool

	// Transport stubs the wire for tests.
	Transport http.RoundTripper
}

// Client coordinates collections against one set of credentials: shared
// rate limiter, cached protocol clients, and bounded batch concurrency.
type Client struct {
	cred     creds.Credential
	settings *config.ClientConfig
	protocol string

	limiter *rate.Limiter
	cache   *session.Cache
	sem     *semaphore.Weighted

	nullPolicy  NullPolicy
	dateFormat  DateFormat
	itemTimeout time.Duration
	legacyMode  bool
	transport   http.RoundTripper
}

// NewClient builds a client for the given credentials.
func NewClient(cred Credential, cfg *Config) (*Client, error) {
	if cfg == nil {
		cfg = &Config{}
	}

	protocol, err := adapter.ProtocolFor(cred)
	if err != nil {
		return nil, maybeLegacy(err, cfg.LegacyErrors)
	}
	if err := cred.Validate(); err != nil {
		return nil, maybeLegacy(err, cfg.LegacyErrors)
	}

	settings := cfg.Settings
	if settings == nil {
		settings = config.Load()
	}

	perHour := settings.RESTRatePerHour
	if protocol == "soap" {
		perHour = settings.SOAPRatePerHour
	}

	dateFormat := cfg.DateFormat
	if dateFormat == "" {
		dateFormat = DateFormatOriginal
	}

	maxConcurrent := settings.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	return &Client{
		cred:        cred,
		settings:    settings,
		protocol:    protocol,
		limiter:     rate.NewLimiter(rate.Limit(float64(perHour)/3600.0), settings.RateBurst),
		cache:       session.NewCache(),
		sem:         semaphore.NewWeighted(int64(maxConcurrent)),
		nullPolicy:  cfg.NullPolicy,
		dateFormat:  dateFormat,
		itemTimeout: cfg.ItemTimeout,
		legacyMode:  cfg.LegacyErrors || settings.UseLegacyErrors,
		transport:   cfg.Transport,
	}, nil
}

// Close shuts down every cached protocol client.
func (c *Client) Close() error {
	return c.cache.Shutdown()
}

// Legacy reports whether this client speaks the legacy protocol.
func (c *Client) Legacy() bool { return c.protocol == "soap" }

// policy resolves the effective null policy for this client.
func (c *Client) policy() NullPolicy {
	return c.nullPolicy.Resolve(c.Legacy())
}

func (c *Client) endpoint() string {
	if c.protocol == "soap" {
		return c.settings.SOAPEndpoint
	}
	return c.settings.RESTBaseURL
}

// getAdapter fetches the cached protocol client, constructing it on first
// use. Every concurrent collection shares the one client per key.
func (c *Client) getAdapter() (adapter.Adapter, error) {
	key := session.Key{
		Protocol:    c.protocol,
		Endpoint:    c.endpoint(),
		Fingerprint: c.cred.Fingerprint(),
		Proxy:       c.settings.Proxy,
	}
	entry, err := c.cache.Get(key, func() (io.Closer, error) {
		return adapter.New(adapter.Options{
			Credential: c.cred,
			Config:     c.settings,
			Limiter:    c.limiter,
			Transport:  c.transport,
		})
	})
	if err != nil {
		return nil, err
	}
	a, ok := entry.(adapter.Adapter)
	if !ok {
		return nil, ffiecerr.Session(fmt.Errorf("cached entry for %s is not an adapter", key))
	}
	return a, nil
}

// err applies the legacy collapse toggle at the public boundary.
func (c *Client) err(e error) error {
	return maybeLegacy(e, c.legacyMode)
}

func maybeLegacy(e error, legacy bool) error {
	if legacy {
		return ffiecerr.Legacy(e)
	}
	return e
}
