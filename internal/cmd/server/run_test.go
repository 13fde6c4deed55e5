package serverrun

import (
	"context"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	dispatchv1 "github.com/rzbill/dispatch/api/dispatch/v1"
	cfgpkg "github.com/rzbill/dispatch/internal/config"
	pebblestore "github.com/rzbill/dispatch/internal/storage/pebble"
	logpkg "github.com/rzbill/dispatch/pkg/log"
)

func TestStoreDir(t *testing.T) {
	opts := Options{DataDir: "/tmp/dispatch"}
	if got, want := opts.storeDir(), filepath.Join("/tmp/dispatch", "store"); got != want {
		t.Fatalf("storeDir = %s, want %s", got, want)
	}

	t.Setenv("DISPATCH_DATA_DIR", "/srv/dispatch")
	if got, want := (Options{}).storeDir(), filepath.Join("/srv/dispatch", "store"); got != want {
		t.Fatalf("default storeDir = %s, want %s", got, want)
	}
}

func TestNewLoggerFallsBackOnBadConfig(t *testing.T) {
	l := newLogger(logpkg.Config{Level: "warn", Format: "nope"})
	if l == nil {
		t.Fatalf("nil logger")
	}
	if l.GetLevel() != logpkg.WarnLevel {
		t.Fatalf("level = %v, want warn", l.GetLevel())
	}
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	cfg := cfgpkg.Default()
	cfg.SubscriberBuffer = 0
	err := Run(context.Background(), Options{DataDir: t.TempDir(), Config: cfg})
	if err == nil {
		t.Fatalf("expected config error")
	}
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := l.Addr().String()
	_ = l.Close()
	return addr
}

// TestRunIntegration starts both servers, publishes over gRPC, checks health
// over HTTP and shuts down by cancelling ctx.
func TestRunIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	cfg := cfgpkg.Default()
	cfg.Log.Level = "error"
	grpcAddr, httpAddr := freeAddr(t), freeAddr(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, Options{
			DataDir:  t.TempDir(),
			GRPCAddr: grpcAddr,
			HTTPAddr: httpAddr,
			Fsync:    pebblestore.FsyncModeNever,
			Config:   cfg,
		})
	}()

	deadline := time.Now().Add(5 * time.Second)
	for {
		res, err := http.Get("http://" + httpAddr + "/v1/healthz")
		if err == nil {
			_ = res.Body.Close()
			if res.StatusCode == http.StatusOK {
				break
			}
		}
		if time.Now().After(deadline) {
			cancel()
			t.Fatalf("http never became healthy: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	conn, err := grpc.NewClient(grpcAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		cancel()
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	cctx, ccancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer ccancel()
	if _, err := dispatchv1.NewClient(conn).Publish(cctx, dispatchv1.PublishRequest{Key: "k", Payload: []byte("x")}, grpc.WaitForReady(true)); err != nil {
		cancel()
		t.Fatalf("publish: %v", err)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("run did not return after cancel")
	}
}
