package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"wardroster/internal/blob/core"
)

func TestMockS3Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMockForTests()
	if s.Driver() != core.DriverS3 {
		t.Fatalf("unexpected driver %s", s.Driver())
	}
	if _, err := s.Head(ctx, "consegne.json"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	info, err := s.Put(ctx, "consegne.json", strings.NewReader(`[]`), core.PutOptions{ContentType: "application/json", Metadata: map[string]string{"device": "PC_a"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != 2 || info.ContentType != "application/json" || info.LastModified.IsZero() {
		t.Fatalf("unexpected info %+v", info)
	}
	if info.Metadata["Device"] == "" && info.Metadata["device"] == "" {
		t.Fatalf("metadata not round-tripped: %+v", info.Metadata)
	}
	if _, err := s.Put(ctx, "consegne.json", strings.NewReader(`[]`), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}

	replaced, err := s.Replace(ctx, "consegne.json", bytes.NewReader([]byte(`{"patients":[]}`)), core.PutOptions{})
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if info.ETag == "" || replaced.ETag == "" || replaced.ETag == info.ETag {
		t.Fatalf("etag not refreshed: %+v", replaced)
	}

	_, rc, err := s.Get(ctx, "consegne.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != `{"patients":[]}` {
		t.Fatalf("unexpected body %q", body)
	}

	list, err := s.List(ctx, "")
	if err != nil || len(list) != 1 || list[0].Key != "consegne.json" {
		t.Fatalf("list: %v %+v", err, list)
	}

	if ok, err := s.Delete(ctx, "consegne.json"); err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	if ok, err := s.Delete(ctx, "consegne.json"); err != nil || ok {
		t.Fatalf("second delete: %v %v", ok, err)
	}
	if _, _, err := s.Get(ctx, "consegne.json"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error for missing bucket")
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("WARDROSTER_BLOB_S3_BUCKET", "")
	if _, err := ConfigFromEnv(); err == nil {
		t.Fatalf("expected error without bucket")
	}
	t.Setenv("WARDROSTER_BLOB_S3_BUCKET", "ward")
	t.Setenv("WARDROSTER_BLOB_S3_PATH_STYLE", "TRUE")
	t.Setenv("WARDROSTER_BLOB_S3_ENDPOINT", "http://minio:9000")
	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if cfg.Bucket != "ward" || !cfg.PathStyle || cfg.Endpoint != "http://minio:9000" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestMockHeadersAreCanonical(t *testing.T) {
	h := headers("ETag", `"etag1"`, "last-modified", "x")
	if _, ok := h["Etag"]; !ok {
		t.Fatalf("expected canonical Etag key, got %v", h)
	}
	if h.Get("Last-Modified") != "x" {
		t.Fatalf("expected canonical Last-Modified, got %v", h)
	}
}
