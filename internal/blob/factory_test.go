package blob

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func TestOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	cases := []struct {
		env  map[string]string
		want Driver
	}{
		{env: map[string]string{"WARDROSTER_BLOB_DRIVER": "", "WARDROSTER_BLOB_FS_ROOT": t.TempDir()}, want: DriverFilesystem},
		{env: map[string]string{"WARDROSTER_BLOB_DRIVER": "memory"}, want: DriverMemory},
		{env: map[string]string{"WARDROSTER_BLOB_DRIVER": "redis", "WARDROSTER_BLOB_REDIS_ADDR": mr.Addr()}, want: DriverRedis},
	}
	for _, tc := range cases {
		for k, v := range tc.env {
			t.Setenv(k, v)
		}
		s, err := Open(ctx)
		if err != nil {
			t.Fatalf("open %s: %v", tc.want, err)
		}
		if s.Driver() != tc.want {
			t.Fatalf("expected %s, got %s", tc.want, s.Driver())
		}
	}
}

func TestOpenErrors(t *testing.T) {
	ctx := context.Background()
	t.Setenv("WARDROSTER_BLOB_DRIVER", "tape")
	if _, err := Open(ctx); err == nil {
		t.Fatalf("expected unknown driver error")
	}
	t.Setenv("WARDROSTER_BLOB_DRIVER", "s3")
	t.Setenv("WARDROSTER_BLOB_S3_BUCKET", "")
	if _, err := Open(ctx); err == nil {
		t.Fatalf("expected missing bucket error")
	}
}

// Every driver honours the same create-only and not-found contract.
func TestDriversShareContract(t *testing.T) {
	ctx := context.Background()
	fsStore, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("fs: %v", err)
	}
	mr := miniredis.RunT(t)
	redisStore, err := OpenRedis(ctx, RedisConfig{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("redis: %v", err)
	}
	for _, s := range []Store{NewMemory(), fsStore, NewMockS3ForTests(), redisStore} {
		if _, err := s.Head(ctx, "k.json"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("%s head missing: %v", s.Driver(), err)
		}
		if _, err := s.Put(ctx, "k.json", bytes.NewReader([]byte("1")), PutOptions{}); err != nil {
			t.Fatalf("%s put: %v", s.Driver(), err)
		}
		if _, err := s.Put(ctx, "k.json", bytes.NewReader([]byte("2")), PutOptions{}); !errors.Is(err, ErrExists) {
			t.Fatalf("%s second put: %v", s.Driver(), err)
		}
		if _, err := s.Replace(ctx, "k.json", bytes.NewReader([]byte("22")), PutOptions{}); err != nil {
			t.Fatalf("%s replace: %v", s.Driver(), err)
		}
		info, err := s.Head(ctx, "k.json")
		if err != nil || info.Size != 2 {
			t.Fatalf("%s head: %v %+v", s.Driver(), err, info)
		}
	}
}
