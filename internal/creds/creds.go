// Package creds models the two credential generations the FFIEC webservice
// accepts: the legacy username/password pair for the SOAP service, and the
// modern username/bearer-token pair for the REST API.
package creds

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/regdata/ffiec-connect/internal/ffiecerr"
)

// Environment variables consulted when legacy constructor arguments are
// empty.
const (
	EnvUsername = "FFIEC_USERNAME"
	EnvPassword = "FFIEC_PASSWORD"
)

// tokenExpiryWarning treats tokens expiring within a day as already
// unusable, so long batch runs do not die halfway through.
const tokenExpiryWarning = 24 * time.Hour

// Credential is the discriminated union over credential generations. The
// concrete type selects the protocol adapter.
type Credential interface {
	// Username identifies the account.
	Username() string

	// Fingerprint is a stable derivation over the credential material,
	// safe to use in cache keys. Never the raw secret.
	Fingerprint() string

	// Validate rechecks the credential's shape.
	Validate() error
}

// =============================================================================
// LEGACY (SOAP)
// =============================================================================

// Legacy holds a username/password pair for the SOAP webservice.
type Legacy struct {
	username string
	password string
}

// NewLegacy builds legacy credentials. Explicit arguments win; when either
// is empty, FFIEC_USERNAME / FFIEC_PASSWORD are consulted as a pair.
func NewLegacy(username, password string) (Legacy, error) {
	if username != "" && password != "" {
		return Legacy{username: username, password: password}, nil
	}

	envUser, envPass := os.Getenv(EnvUsername), os.Getenv(EnvPassword)
	if envUser != "" && envPass != "" {
		return Legacy{username: envUser, password: envPass}, nil
	}

	var missing []string
	if username == "" && envUser == "" {
		missing = append(missing, "username (argument or "+EnvUsername+")")
	}
	if password == "" && envPass == "" {
		missing = append(missing, "password (argument or "+EnvPassword+")")
	}
	return Legacy{}, ffiecerr.Credential(fmt.Errorf("missing credentials: %s", strings.Join(missing, ", ")))
}

func (c Legacy) Username() string { return c.username }

// Password exposes the secret for WS-Security header construction only.
func (c Legacy) Password() string { return c.password }

func (c Legacy) Fingerprint() string {
	return fingerprint("legacy", c.username, c.password)
}

func (c Legacy) Validate() error {
	if c.username == "" || c.password == "" {
		return ffiecerr.Credential(errors.New("legacy credentials are unset"))
	}
	return nil
}

func (c Legacy) String() string {
	return fmt.Sprintf("Legacy(username=%s)", mask(c.username))
}

// =============================================================================
// MODERN (REST)
// =============================================================================

// Modern holds a username and a 90-day bearer token for the REST API.
type Modern struct {
	username string
	token    string
	expires  time.Time
}

// NewModern builds modern credentials. expires may be zero when the caller
// does not track the token lifecycle.
func NewModern(username, token string, expires time.Time) (Modern, error) {
	username = strings.TrimSpace(username)
	token = strings.TrimSpace(token)
	if username == "" {
		return Modern{}, ffiecerr.Credential(errors.New("username is required"))
	}
	if token == "" {
		return Modern{}, ffiecerr.Credential(errors.New("bearer token is required"))
	}
	if !validTokenShape(token) {
		return Modern{}, ffiecerr.Credential(errors.New("bearer token appears invalid: must start with \"ey\", end with \".\", and be longer than 16 characters"))
	}
	return Modern{username: username, token: token, expires: expires}, nil
}

// validTokenShape checks the PWS token format without decoding it.
func validTokenShape(token string) bool {
	return strings.HasPrefix(token, "ey") && strings.HasSuffix(token, ".") && len(token) > 16
}

func (c Modern) Username() string { return c.username }

// Token exposes the bearer token for the Authentication header only.
func (c Modern) Token() string { return c.token }

// Expires returns the token expiry, zero when untracked.
func (c Modern) Expires() time.Time { return c.expires }

// Expired reports whether the token is expired or expires within 24 hours.
// Untracked expiry is assumed valid.
func (c Modern) Expired() bool {
	if c.expires.IsZero() {
		return false
	}
	return !c.expires.After(time.Now().Add(tokenExpiryWarning))
}

func (c Modern) Fingerprint() string {
	return fingerprint("modern", c.username, c.token)
}

func (c Modern) Validate() error {
	if c.username == "" || !validTokenShape(c.token) {
		return ffiecerr.Credential(errors.New("modern credentials are unset or malformed"))
	}
	if c.Expired() {
		return ffiecerr.Credential(errors.New("bearer token is expired or expires within 24 hours"))
	}
	return nil
}

func (c Modern) String() string {
	return fmt.Sprintf("Modern(username=%s, token=%s)", mask(c.username), mask(c.token))
}

// =============================================================================
// HELPERS
// =============================================================================

// fingerprint derives a cache-safe identifier from credential material,
// salted with the username so identical secrets under different accounts
// key separately.
func fingerprint(kind, username, secret string) string {
	h := sha256.New()
	h.Write([]byte("ffiec-" + kind + "-" + username))
	h.Write([]byte{0})
	h.Write([]byte(secret))
	return hex.EncodeToString(h.Sum(nil)[:16])
}

// mask shows only the first and last character of sensitive strings.
func mask(s string) string {
	if len(s) <= 2 {
		return "***"
	}
	return s[:1] + strings.Repeat("*", len(s)-2) + s[len(s)-1:]
}
