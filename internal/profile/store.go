// Package profile persists exported speaker profiles as opaque blobs.
package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/loqalabs/loqa-voiceid/internal/config"
	"github.com/nats-io/nats.go"
)

// ErrInvalidName reports a profile name that cannot be stored.
var ErrInvalidName = errors.New("invalid profile name")

// Profile is one stored speaker profile.
type Profile struct {
	Name string
	Data []byte
}

// Store saves and loads profiles. List returns profiles ordered by name;
// that order is the order identification scores are reported in.
type Store interface {
	Save(ctx context.Context, name string, data []byte) error
	List(ctx context.Context) ([]Profile, error)
	Close() error
}

// Decode returns the profile bytes exactly as stored: a fresh slice whose
// length and content match raw, with no capacity beyond it.
func Decode(raw []byte) []byte {
	out := make([]byte, len(raw))
	copy(out, raw)
	return out
}

// ValidateName rejects names that are empty or would escape a directory.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if name == "." || name == ".." || strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Open builds the backend selected by cfg.Backend. js is only used by the
// nats backend and may be nil otherwise.
func Open(ctx context.Context, cfg config.ProfilesConfig, js nats.JetStreamContext, log *slog.Logger) (Store, error) {
	switch cfg.Backend {
	case "dir":
		return NewDirStore(cfg.Directory), nil
	case "sqlite":
		return OpenSQLite(ctx, cfg.SQLitePath, log)
	case "nats":
		if js == nil {
			return nil, errors.New("nats profile backend requires a bus connection")
		}
		return OpenObjectStore(js, cfg.Bucket, log)
	default:
		return nil, fmt.Errorf("unsupported profile backend %q", cfg.Backend)
	}
}
