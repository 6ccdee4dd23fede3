package variables

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"dounotify/internal/config"

	"github.com/nats-io/nats.go"
)

// NATSStore resolves variables from a JetStream KV bucket.
// Params: NATS connection and KV bucket handle.
// Returns: KV-backed variable store.
type NATSStore struct {
	nc *nats.Conn
	kv nats.KeyValue
}

// NewNATSStore opens (or creates) the variables bucket.
// Params: NATS URLs, bucket name, and create flag.
// Returns: initialized store or setup error.
func NewNATSStore(settings config.NATSVariables) (*NATSStore, error) {
	nc, err := nats.Connect(strings.Join(settings.URL, ","))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	kv, err := js.KeyValue(settings.Bucket)
	if err != nil {
		if !settings.AllowCreateBuckets {
			nc.Close()
			return nil, fmt.Errorf("open variables bucket %q: %w", settings.Bucket, err)
		}
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket:      settings.Bucket,
			Description: "dounotify term variables",
		})
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("create variables bucket %q: %w", settings.Bucket, err)
		}
	}
	return &NATSStore{nc: nc, kv: kv}, nil
}

// Lookup returns the latest value stored under name.
func (s *NATSStore) Lookup(_ context.Context, name string) (string, error) {
	entry, err := s.kv.Get(name)
	if errors.Is(err, nats.ErrKeyNotFound) {
		return "", notFound(name)
	}
	if err != nil {
		return "", fmt.Errorf("kv get variable %q: %w", name, err)
	}
	return string(entry.Value()), nil
}

// Put stores one variable value.
// Params: context, variable name, and raw value.
// Returns: KV revision or publish error.
func (s *NATSStore) Put(_ context.Context, name, value string) (uint64, error) {
	rev, err := s.kv.PutString(name, value)
	if err != nil {
		return 0, fmt.Errorf("kv put variable %q: %w", name, err)
	}
	return rev, nil
}

// Close closes underlying NATS connection.
func (s *NATSStore) Close() error {
	s.nc.Close()
	return nil
}
