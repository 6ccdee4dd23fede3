package variables

import (
	"context"
	"errors"
	"fmt"

	"dounotify/internal/config"
)

// ErrNotFound reports a variable missing from the configured store.
var ErrNotFound = errors.New("variable not found")

// ErrReadOnly is returned by Set when the selected backend cannot store values.
var ErrReadOnly = errors.New("variables backend is read-only")

// Store resolves named variables used by `from_airflow_variable` terms.
// Params: context and variable name.
// Returns: raw variable value or lookup error.
type Store interface {
	Lookup(ctx context.Context, name string) (string, error)
	Close() error
}

// Writer is implemented by stores that accept new values.
type Writer interface {
	Put(ctx context.Context, name, value string) (uint64, error)
}

// Set stores value when the backend is writable.
// Params: context, store, variable name, and raw value.
// Returns: revision or ErrReadOnly / backend error.
func Set(ctx context.Context, store Store, name, value string) (uint64, error) {
	writer, ok := store.(Writer)
	if !ok {
		return 0, ErrReadOnly
	}
	return writer.Put(ctx, name, value)
}

// New opens the store selected by `variables.backend`.
// Params: context for connectivity checks and variables config after defaults.
// Returns: ready store or connection error.
func New(ctx context.Context, cfg config.VariablesConfig) (Store, error) {
	switch cfg.Backend {
	case config.VariablesBackendStatic, "":
		return NewStaticStore(cfg.Static), nil
	case config.VariablesBackendEnv:
		return NewEnvStore(cfg.EnvFiles...)
	case config.VariablesBackendRedis:
		return NewRedisStore(ctx, cfg.Redis)
	case config.VariablesBackendNATS:
		return NewNATSStore(cfg.NATS)
	default:
		return nil, fmt.Errorf("unsupported variables backend %q", cfg.Backend)
	}
}

// StaticStore serves variables from an in-memory map.
type StaticStore struct {
	values map[string]string
}

// NewStaticStore copies values into a read-only store.
func NewStaticStore(values map[string]string) *StaticStore {
	copied := make(map[string]string, len(values))
	for name, value := range values {
		copied[name] = value
	}
	return &StaticStore{values: copied}
}

// Lookup returns one variable value.
func (s *StaticStore) Lookup(_ context.Context, name string) (string, error) {
	value, ok := s.values[name]
	if !ok {
		return "", notFound(name)
	}
	return value, nil
}

// Close is a no-op.
func (s *StaticStore) Close() error {
	return nil
}

func notFound(name string) error {
	return fmt.Errorf("variable %q: %w", name, ErrNotFound)
}
