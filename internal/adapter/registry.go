package adapter

import (
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/time/rate"

	"github.com/regdata/ffiec-connect/internal/config"
	"github.com/regdata/ffiec-connect/internal/creds"
	"github.com/regdata/ffiec-connect/internal/ffiecerr"
)

// Options carries everything an adapter factory needs to construct a
// protocol client.
type Options struct {
	Credential creds.Credential
	Config     *config.ClientConfig

	// Limiter, when set, is shared across every adapter of one coordinator.
	Limiter *rate.Limiter

	// Transport allows tests to stub the wire.
	Transport http.RoundTripper
}

// Factory constructs an adapter from options.
type Factory func(opts Options) (Adapter, error)

// Registry maps protocol names to adapter factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under the given protocol name.
func (r *Registry) Register(protocol string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[protocol] = factory
}

// Create selects the protocol from the credential's concrete type and
// builds the adapter.
func (r *Registry) Create(opts Options) (Adapter, error) {
	protocol, err := ProtocolFor(opts.Credential)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	factory, ok := r.factories[protocol]
	r.mu.RUnlock()
	if !ok {
		return nil, ffiecerr.Session(fmt.Errorf("no adapter registered for protocol %q", protocol))
	}
	return factory(opts)
}

// Protocols lists registered protocol names.
func (r *Registry) Protocols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	return out
}

// ProtocolFor maps a credential generation onto its protocol name.
func ProtocolFor(cred creds.Credential) (string, error) {
	switch cred.(type) {
	case creds.Legacy:
		return "soap", nil
	case creds.Modern:
		return "rest", nil
	case nil:
		return "", ffiecerr.Credential(fmt.Errorf("credential is required"))
	default:
		return "", ffiecerr.Credential(fmt.Errorf("unsupported credential type %T", cred))
	}
}

// DefaultRegistry is the process-wide registry the protocol packages
// register into.
var DefaultRegistry = NewRegistry()

// Register adds a factory to the default registry.
func Register(protocol string, factory Factory) {
	DefaultRegistry.Register(protocol, factory)
}

// New builds an adapter from the default registry.
func New(opts Options) (Adapter, error) {
	return DefaultRegistry.Create(opts)
}
