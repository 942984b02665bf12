package client

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/luckylubricants/rewards/internal/twin/api"
	"github.com/luckylubricants/rewards/internal/twin/store"
	"github.com/luckylubricants/rewards/pkg/admin"
	"github.com/luckylubricants/rewards/pkg/twincore"
)

func setupTwin(t *testing.T) (*AdminClient, *store.MemoryStore) {
	t.Helper()
	s := store.New()
	s.SeedDefaults()
	twin := twincore.NewWithLogger(&twincore.Config{Name: "twin-lucky-test"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	mw := twin.Middleware()
	api.NewHandler(s, mw, "test-secret").Routes(twin.Router)
	admin.NewHandler(s, mw, s.Clock).Routes(twin.Router)
	srv := httptest.NewServer(twin)
	t.Cleanup(srv.Close)
	return New(srv.URL + "/"), s
}

func TestHealth(t *testing.T) {
	c, _ := setupTwin(t)
	ok, msg := c.Health()
	if !ok || !strings.Contains(msg, `"ok"`) {
		t.Errorf("Health = %v, %q", ok, msg)
	}
}

func TestHealthUnreachable(t *testing.T) {
	c := New("http://127.0.0.1:1")
	if ok, _ := c.Health(); ok {
		t.Error("expected unreachable twin to be unhealthy")
	}
}

func TestMintVoucherAndReset(t *testing.T) {
	c, s := setupTwin(t)
	v, err := c.MintVoucher(75)
	if err != nil {
		t.Fatalf("MintVoucher: %v", err)
	}
	if v.Points != 75 || v.Code == "" {
		t.Errorf("voucher = %+v", v)
	}
	before := s.Vouchers.Count()

	if _, err := c.MintVoucher(0); err == nil {
		t.Error("expected error for zero points")
	}
	if _, err := c.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if s.Vouchers.Count() != before-1 {
		t.Errorf("vouchers after reset = %d, want %d", s.Vouchers.Count(), before-1)
	}
}

func TestSeed(t *testing.T) {
	c, s := setupTwin(t)
	path := filepath.Join(t.TempDir(), "seed.json")
	seed := `{"vouchers":{"1":{"id":1,"code":"ONLY-ONE","points":10}}}`
	if err := os.WriteFile(path, []byte(seed), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Seed(path); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if s.Vouchers.Count() != 1 {
		t.Errorf("vouchers = %d, want 1", s.Vouchers.Count())
	}

	if _, err := c.Seed(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing seed file")
	}
}

func TestAdvanceTimeAndRequests(t *testing.T) {
	c, s := setupTwin(t)
	if _, err := c.AdvanceTime(2 * time.Hour); err != nil {
		t.Fatalf("AdvanceTime: %v", err)
	}
	if s.Clock.Offset() != 2*time.Hour {
		t.Errorf("offset = %v", s.Clock.Offset())
	}

	ok, _ := c.Health()
	if !ok {
		t.Fatal("twin unhealthy")
	}
	if _, err := c.Requests(); err != nil {
		t.Fatalf("Requests: %v", err)
	}
}
