// Package redis implements core.Store with one Redis hash per blob.
package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"wardroster/internal/blob/core"
)

const (
	defaultNamespace = "wardroster:blob:"

	fieldBody        = "body"
	fieldContentType = "content_type"
	fieldMetadata    = "metadata"
	fieldETag        = "etag"
	fieldModified    = "modified"
	fieldSize        = "size"
)

// Store implements core.Store on a Redis server.
type Store struct {
	client    goredis.UniversalClient
	namespace string
	nowFn     func() time.Time
}

// Config configures the Redis driver.
type Config struct {
	Addr      string
	Password  string
	DB        int
	Namespace string // key prefix, default "wardroster:blob:"
}

// ConfigFromEnv reads WARDROSTER_BLOB_REDIS_ADDR, _PASSWORD, _DB and
// _NAMESPACE.
func ConfigFromEnv() (Config, error) {
	cfg := Config{
		Addr:      os.Getenv("WARDROSTER_BLOB_REDIS_ADDR"),
		Password:  os.Getenv("WARDROSTER_BLOB_REDIS_PASSWORD"),
		Namespace: os.Getenv("WARDROSTER_BLOB_REDIS_NAMESPACE"),
	}
	if cfg.Addr == "" {
		cfg.Addr = "localhost:6379"
	}
	if raw := os.Getenv("WARDROSTER_BLOB_REDIS_DB"); raw != "" {
		db, err := strconv.Atoi(raw)
		if err != nil {
			return Config{}, fmt.Errorf("WARDROSTER_BLOB_REDIS_DB: %w", err)
		}
		cfg.DB = db
	}
	return cfg, nil
}

// Open connects to Redis and verifies the connection with PING.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return New(client, cfg.Namespace), nil
}

// New wraps an existing client.
func New(client goredis.UniversalClient, namespace string) *Store {
	if namespace == "" {
		namespace = defaultNamespace
	}
	return &Store{client: client, namespace: namespace, nowFn: func() time.Time { return time.Now().UTC() }}
}

func (s *Store) Driver() core.Driver { return core.DriverRedis }

// Close closes the underlying client.
func (s *Store) Close() error { return s.client.Close() }

func (s *Store) redisKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("empty key")
	}
	return s.namespace + key, nil
}

// Put stores a new blob; the existence check and the write run in one
// WATCH/MULTI transaction.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	rk, err := s.redisKey(key)
	if err != nil {
		return core.Info{}, err
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return core.Info{}, err
	}
	var info core.Info
	err = s.client.Watch(ctx, func(tx *goredis.Tx) error {
		n, err := tx.Exists(ctx, rk).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("blob %s: %w", key, core.ErrExists)
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			info, err = s.stage(ctx, pipe, rk, key, b, opts)
			return err
		})
		return err
	}, rk)
	if err != nil {
		return core.Info{}, err
	}
	return info, nil
}

// Replace creates or overwrites the blob at key.
func (s *Store) Replace(ctx context.Context, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	rk, err := s.redisKey(key)
	if err != nil {
		return core.Info{}, err
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return core.Info{}, err
	}
	var info core.Info
	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		info, err = s.stage(ctx, pipe, rk, key, b, opts)
		return err
	})
	if err != nil {
		return core.Info{}, fmt.Errorf("replace %s: %w", key, err)
	}
	return info, nil
}

func (s *Store) stage(ctx context.Context, pipe goredis.Pipeliner, rk, key string, body []byte, opts core.PutOptions) (core.Info, error) {
	md, err := json.Marshal(opts.Metadata)
	if err != nil {
		return core.Info{}, err
	}
	sum := sha256.Sum256(body)
	info := core.Info{
		Key:          key,
		Size:         int64(len(body)),
		ContentType:  opts.ContentType,
		ETag:         hex.EncodeToString(sum[:]),
		Metadata:     core.CloneMetadata(opts.Metadata),
		LastModified: s.nowFn(),
	}
	pipe.Del(ctx, rk)
	pipe.HSet(ctx, rk,
		fieldBody, body,
		fieldContentType, info.ContentType,
		fieldMetadata, string(md),
		fieldETag, info.ETag,
		fieldModified, strconv.FormatInt(info.LastModified.UnixNano(), 10),
		fieldSize, strconv.FormatInt(info.Size, 10),
	)
	return info, nil
}

func (s *Store) Get(ctx context.Context, key string) (core.Info, io.ReadCloser, error) {
	rk, err := s.redisKey(key)
	if err != nil {
		return core.Info{}, nil, err
	}
	fields, err := s.client.HGetAll(ctx, rk).Result()
	if err != nil {
		return core.Info{}, nil, fmt.Errorf("get %s: %w", key, err)
	}
	if len(fields) == 0 {
		return core.Info{}, nil, fmt.Errorf("blob %s: %w", key, core.ErrNotFound)
	}
	info, err := decodeInfo(key, fields)
	if err != nil {
		return core.Info{}, nil, err
	}
	return info, io.NopCloser(strings.NewReader(fields[fieldBody])), nil
}

func (s *Store) Head(ctx context.Context, key string) (core.Info, error) {
	rk, err := s.redisKey(key)
	if err != nil {
		return core.Info{}, err
	}
	names := []string{fieldContentType, fieldMetadata, fieldETag, fieldModified, fieldSize}
	vals, err := s.client.HMGet(ctx, rk, names...).Result()
	if err != nil {
		return core.Info{}, fmt.Errorf("head %s: %w", key, err)
	}
	fields := make(map[string]string, len(vals))
	for i, name := range names {
		if v, ok := vals[i].(string); ok {
			fields[name] = v
		}
	}
	if _, ok := fields[fieldModified]; !ok {
		return core.Info{}, fmt.Errorf("blob %s: %w", key, core.ErrNotFound)
	}
	if _, ok := fields[fieldSize]; !ok {
		// Hashes written without a size field carry only the body.
		body, err := s.client.HGet(ctx, rk, fieldBody).Result()
		if err != nil && !errors.Is(err, goredis.Nil) {
			return core.Info{}, fmt.Errorf("head %s: %w", key, err)
		}
		fields[fieldSize] = strconv.Itoa(len(body))
	}
	return decodeInfo(key, fields)
}

func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	rk, err := s.redisKey(key)
	if err != nil {
		return false, err
	}
	n, err := s.client.Del(ctx, rk).Result()
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", key, err)
	}
	return n > 0, nil
}

func (s *Store) List(ctx context.Context, prefix string) ([]core.Info, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, escapeGlob(s.namespace+prefix)+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), s.namespace))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	sort.Strings(keys)
	infos := make([]core.Info, 0, len(keys))
	for _, k := range keys {
		info, err := s.Head(ctx, k)
		if errors.Is(err, core.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func decodeInfo(key string, fields map[string]string) (core.Info, error) {
	nanos, err := strconv.ParseInt(fields[fieldModified], 10, 64)
	if err != nil {
		return core.Info{}, fmt.Errorf("blob %s: bad modified field: %w", key, err)
	}
	info := core.Info{
		Key:          key,
		ContentType:  fields[fieldContentType],
		ETag:         fields[fieldETag],
		LastModified: time.Unix(0, nanos).UTC(),
	}
	if raw, ok := fields[fieldSize]; ok {
		size, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return core.Info{}, fmt.Errorf("blob %s: bad size field: %w", key, err)
		}
		info.Size = size
	} else if body, ok := fields[fieldBody]; ok {
		info.Size = int64(len(body))
	}
	if raw := fields[fieldMetadata]; raw != "" && raw != "null" {
		if err := json.Unmarshal([]byte(raw), &info.Metadata); err != nil {
			return core.Info{}, fmt.Errorf("blob %s: bad metadata: %w", key, err)
		}
	}
	return info, nil
}

func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
