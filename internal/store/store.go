package store

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/audit-engine/internal/config"
)

// KV is the persistence port for the registry. Values are JSON documents.
type KV interface {
	// Get returns nil, nil when key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
	// SetMany writes every entry or none.
	SetMany(ctx context.Context, entries map[string][]byte) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// GetJSON decodes the value at key into a T. found is false when the key
// is absent.
func GetJSON[T any](ctx context.Context, kv KV, key string) (value T, found bool, err error) {
	raw, err := kv.Get(ctx, key)
	if err != nil {
		return value, false, err
	}
	if raw == nil {
		return value, false, nil
	}
	if err := json.Unmarshal(raw, &value); err != nil {
		return value, false, eris.Wrapf(err, "store: decode %s", key)
	}
	return value, true, nil
}

// SetJSON encodes value and stores it at key.
func SetJSON(ctx context.Context, kv KV, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return eris.Wrapf(err, "store: encode %s", key)
	}
	return kv.Set(ctx, key, raw)
}

// Open connects to the configured backend and runs its migration.
func Open(ctx context.Context, cfg config.StoreConfig) (KV, error) {
	var (
		kv  KV
		err error
	)
	switch cfg.Driver {
	case "memory", "":
		kv = NewMemory()
	case "sqlite":
		kv, err = NewSQLite(cfg.DatabaseURL)
	case "postgres":
		kv, err = NewPostgres(ctx, cfg.DatabaseURL, nil)
	case "redis":
		kv, err = NewRedis(ctx, cfg.RedisURL)
	default:
		return nil, eris.Errorf("store: unsupported driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := kv.Migrate(ctx); err != nil {
		kv.Close() //nolint:errcheck
		return nil, err
	}
	return kv, nil
}
