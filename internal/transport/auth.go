package transport

import "net/http"

// AuthConfig applies authentication to outbound requests.
type AuthConfig interface {
	Apply(req *http.Request)
}

// NoAuth performs no request-level authentication. The SOAP path uses it:
// its credentials travel inside the envelope, not in HTTP headers.
type NoAuth struct{}

func (NoAuth) Apply(_ *http.Request) {}

// HeaderTokenAuth authenticates the way the modern FFIEC API expects: the
// account id in a UserID header and the bearer token in a header literally
// named "Authentication" (not Authorization; the API is non-standard).
//
// The API matches header names case-sensitively, so the map is written
// directly: Header.Set would canonicalize UserID to Userid.
type HeaderTokenAuth struct {
	UserID string
	Token  string
}

func (a HeaderTokenAuth) Apply(req *http.Request) {
	req.Header["UserID"] = []string{a.UserID}
	req.Header["Authentication"] = []string{"Bearer " + a.Token}
}
