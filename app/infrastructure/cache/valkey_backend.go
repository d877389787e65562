package cache

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/valkey-io/valkey-go"
)

// ValkeyBackend stores entries in Valkey.
type ValkeyBackend struct {
	client valkey.Client
}

// parseValkeyURL parses a Valkey URL and returns address, password, database, and error
func parseValkeyURL(valkeyURL string) (address, password string, database int, err error) {
	database = -1

	if !strings.Contains(valkeyURL, "://") {
		return valkeyURL, "", -1, nil
	}

	u, err := url.Parse(valkeyURL)
	if err != nil {
		return "", "", -1, fmt.Errorf("invalid URL format: %w", err)
	}

	address = u.Host
	if address == "" {
		return "", "", -1, fmt.Errorf("no host specified in URL")
	}

	if u.User != nil {
		password, _ = u.User.Password()
	}

	if dbStr := strings.TrimPrefix(u.Path, "/"); dbStr != "" {
		if db, parseErr := strconv.Atoi(dbStr); parseErr == nil {
			database = db
		}
	}

	return address, password, database, nil
}

// NewValkeyBackend dials Valkey. valkey-go connects eagerly, so an
// unreachable server is reported here.
func NewValkeyBackend(valkeyURL, password, db string) (*ValkeyBackend, error) {
	address, urlPassword, database, err := parseValkeyURL(valkeyURL)
	if err != nil {
		return nil, err
	}

	opts := valkey.ClientOption{
		InitAddress: []string{address},
		Password:    urlPassword,
	}
	if database != -1 {
		opts.SelectDB = database
	}
	if password != "" {
		opts.Password = password
	}
	if db != "" {
		n, err := strconv.Atoi(db)
		if err != nil {
			return nil, fmt.Errorf("invalid valkey db %q: %w", db, err)
		}
		opts.SelectDB = n
	}

	client, err := valkey.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}
	return &ValkeyBackend{client: client}, nil
}

// Client exposes the underlying client for pub/sub consumers.
func (v *ValkeyBackend) Client() valkey.Client {
	return v.client
}

func (v *ValkeyBackend) Name() string {
	return CacheTypeValkey
}

func (v *ValkeyBackend) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := v.client.Do(ctx, v.client.B().Get().Key(key).Build()).AsBytes()
	if valkey.IsValkeyNil(err) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get value: %w", err)
	}
	return val, nil
}

func (v *ValkeyBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return v.client.Do(ctx, v.client.B().Set().Key(key).Value(string(value)).Build()).Error()
	}
	seconds := int64(math.Ceil(ttl.Seconds()))
	return v.client.Do(ctx, v.client.B().Set().Key(key).Value(string(value)).ExSeconds(seconds).Build()).Error()
}

func (v *ValkeyBackend) Delete(ctx context.Context, key string) error {
	return v.client.Do(ctx, v.client.B().Unlink().Key(key).Build()).Error()
}

func (v *ValkeyBackend) Exists(ctx context.Context, key string) (bool, error) {
	count, err := v.client.Do(ctx, v.client.B().Exists().Key(key).Build()).AsInt64()
	if err != nil {
		return false, fmt.Errorf("failed to check key existence: %w", err)
	}
	return count > 0, nil
}

func (v *ValkeyBackend) Keys(ctx context.Context, pattern string) ([]string, error) {
	var (
		cursor uint64
		keys   []string
	)
	for {
		entry, err := v.client.Do(ctx, v.client.B().Scan().Cursor(cursor).Match(pattern).Count(scanBatchSize).Build()).AsScanEntry()
		if err != nil {
			return nil, fmt.Errorf("failed to scan keys: %w", err)
		}
		keys = append(keys, entry.Elements...)
		if entry.Cursor == 0 {
			return keys, nil
		}
		cursor = entry.Cursor
	}
}

func (v *ValkeyBackend) DeletePattern(ctx context.Context, pattern string) (int, error) {
	var (
		cursor  uint64
		removed int
	)
	for {
		entry, err := v.client.Do(ctx, v.client.B().Scan().Cursor(cursor).Match(pattern).Count(scanBatchSize).Build()).AsScanEntry()
		if err != nil {
			return removed, fmt.Errorf("failed to scan keys: %w", err)
		}
		if len(entry.Elements) > 0 {
			n, err := v.client.Do(ctx, v.client.B().Unlink().Key(entry.Elements...).Build()).AsInt64()
			if err != nil {
				return removed, fmt.Errorf("failed to unlink keys: %w", err)
			}
			removed += int(n)
		}
		if entry.Cursor == 0 {
			return removed, nil
		}
		cursor = entry.Cursor
	}
}

func (v *ValkeyBackend) Ping(ctx context.Context) error {
	return v.client.Do(ctx, v.client.B().Ping().Build()).Error()
}

func (v *ValkeyBackend) Close() error {
	v.client.Close()
	return nil
}
