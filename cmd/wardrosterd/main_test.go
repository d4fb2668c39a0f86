package main

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"wardroster/internal/config"
	"wardroster/internal/localstore"
	"wardroster/internal/remote/drive"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.Storage = localstore.BackendConfig{Driver: localstore.StorageMemory}
	cfg.SyncInterval = 20 * time.Millisecond
	return cfg
}

func TestRunServesAndShutsDown(t *testing.T) {
	t.Setenv("WARDROSTER_BLOB_DRIVER", "memory")
	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan string, 1)
	errc := make(chan error, 1)
	go func() { errc <- run(ctx, testConfig(), zap.NewNop(), ready) }()

	var addr string
	select {
	case addr = <-ready:
	case err := <-errc:
		t.Fatalf("run exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not start")
	}
	base := "http://" + addr

	resp, err := http.Get(base + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status %d", resp.StatusCode)
	}

	body := `{"room":"1","name":"Rossi","age":80,"priority":"alert"}`
	resp, err = http.Post(base+"/api/patients", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d", resp.StatusCode)
	}

	resp, err = http.Get(base + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}
}

func TestRunRejectsUnknownStorage(t *testing.T) {
	cfg := testConfig()
	cfg.Storage.Driver = "tape"
	if err := run(context.Background(), cfg, zap.NewNop(), nil); err == nil {
		t.Fatal("expected unknown storage driver error")
	}
}

func TestBuildRemoteDriveUsesSession(t *testing.T) {
	cfg := testConfig()
	cfg.Remote = config.RemoteDrive
	cfg.DriveToken = "ya29.seed"
	res, authn, session, err := buildRemote(context.Background(), cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("buildRemote: %v", err)
	}
	if _, ok := res.(*drive.Client); !ok {
		t.Fatalf("expected drive client, got %T", res)
	}
	if session == nil || !authn.IsAuthenticated() {
		t.Fatal("seeded token should authenticate the session")
	}
	session.SignOut()
	if authn.IsAuthenticated() {
		t.Fatal("sign out should clear the session")
	}
}

func TestBuildRemoteBlobNeedsNoSession(t *testing.T) {
	t.Setenv("WARDROSTER_BLOB_DRIVER", "memory")
	_, authn, session, err := buildRemote(context.Background(), testConfig(), zap.NewNop())
	if err != nil {
		t.Fatalf("buildRemote: %v", err)
	}
	if session != nil {
		t.Fatal("blob remote should not expose a session")
	}
	if !authn.IsAuthenticated() {
		t.Fatal("blob remote should always be authenticated")
	}
}

func TestBuildRemoteUnknownBlobDriver(t *testing.T) {
	t.Setenv("WARDROSTER_BLOB_DRIVER", "floppy")
	if _, _, _, err := buildRemote(context.Background(), testConfig(), zap.NewNop()); err == nil {
		t.Fatal("expected error for unknown blob driver")
	}
}
