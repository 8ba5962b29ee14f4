package sessionstore

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/sessionwallet/provisioning-backend/interfaces"
)

// Factory creates session stores from location URIs.
//
// Supported schemes:
//   - memory:// - process memory, lost on restart
//   - file:///var/lib/gateway/sessions - encrypted files, one per origin
//   - redis://localhost:6379/0 - Redis keys, one per origin
type Factory struct {
	log    *slog.Logger
	secret []byte
}

// NewFactory creates a session store factory. secret is required for the
// file backend's at-rest encryption and ignored by the others.
func NewFactory(log *slog.Logger, secret []byte) *Factory {
	return &Factory{log: log, secret: secret}
}

// StoreFor creates the session store described by the location URI.
func (f *Factory) StoreFor(ctx context.Context, locationURI string) (interfaces.SessionStore, error) {
	u, err := url.Parse(locationURI)
	if err != nil {
		return nil, fmt.Errorf("invalid session store URI: %w", err)
	}

	switch strings.ToLower(u.Scheme) {
	case "memory":
		return NewMemoryStore(), nil
	case "file":
		return NewFileStore(u.Path, f.secret, f.log)
	case "redis", "rediss":
		return NewRedisStore(ctx, locationURI)
	default:
		return nil, fmt.Errorf("unsupported session store scheme: %s", u.Scheme)
	}
}
