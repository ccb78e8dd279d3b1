package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATS stores entries in a JetStream key/value bucket, so several machines
// can share one cache.
type NATS struct {
	nc *nats.Conn
	kv jetstream.KeyValue
}

// NewNATS connects to url and opens the bucket, creating it when missing.
func NewNATS(ctx context.Context, url, bucket string) (*NATS, error) {
	nc, err := nats.Connect(url, nats.Name("semguard-cache"))
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	kv, err := getOrCreateBucket(ctx, js, bucket)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("open bucket %s: %w", bucket, err)
	}
	return &NATS{nc: nc, kv: kv}, nil
}

// NewNATSFromKV wraps an existing bucket. Close leaves the connection open.
func NewNATSFromKV(kv jetstream.KeyValue) *NATS {
	return &NATS{kv: kv}
}

func getOrCreateBucket(ctx context.Context, js jetstream.JetStream, name string) (jetstream.KeyValue, error) {
	kv, err := js.KeyValue(ctx, name)
	if err == nil {
		return kv, nil
	}
	// Bucket doesn't exist, create it
	return js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      name,
		Description: fmt.Sprintf("semguard %s results", strings.ToLower(name)),
		History:     1,
	})
}

// kvKey maps a file path onto the key alphabet NATS accepts.
func kvKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Get implements Store.
func (n *NATS) Get(ctx context.Context, key string) ([]byte, error) {
	entry, err := n.kv.Get(ctx, kvKey(key))
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return entry.Value(), nil
}

// Put implements Store.
func (n *NATS) Put(ctx context.Context, key string, value []byte) error {
	if _, err := n.kv.Put(ctx, kvKey(key), value); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// Delete implements Store.
func (n *NATS) Delete(ctx context.Context, key string) error {
	err := n.kv.Delete(ctx, kvKey(key))
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Close drains the connection when the store owns it.
func (n *NATS) Close() error {
	if n.nc == nil {
		return nil
	}
	return n.nc.Drain()
}
