package node

import (
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Klingon-tech/inscribe/config"
	"github.com/Klingon-tech/inscribe/pkg/address"
)

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	tests := []struct {
		input string
		want  string
	}{
		{"~/foo/bar", filepath.Join(home, "foo/bar")},
		{"/abs/path", "/abs/path"},
		{"relative/path", "relative/path"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := expandHome(tt.input); got != tt.want {
			t.Errorf("expandHome(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default(address.Testnet)
	cfg.DataDir = t.TempDir()
	cfg.API.Port = 0
	cfg.API.Upstream = "http://127.0.0.1:1/api/inscriptions/create-commit"
	cfg.API.AllowedIPs = nil
	cfg.Log.Level = "error"
	return cfg
}

func TestNew_RequiresUpstream(t *testing.T) {
	cfg := testConfig(t)
	cfg.API.Upstream = ""
	if _, err := New(cfg); !errors.Is(err, ErrNoUpstream) {
		t.Fatalf("err = %v, want ErrNoUpstream", err)
	}
}

func TestNew_APIDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.API.Enabled = false
	cfg.API.Upstream = ""
	n, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := n.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if n.APIAddr() != "" {
		t.Errorf("APIAddr = %q, want empty", n.APIAddr())
	}
	n.Stop()
}

func TestNodeLifecycle(t *testing.T) {
	cfg := testConfig(t)
	n, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := n.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer n.Stop()

	if n.APIAddr() == "" {
		t.Fatal("APIAddr should not be empty")
	}

	resp, err := http.Get("http://" + n.APIAddr() + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d", resp.StatusCode)
	}

	resp, err = http.Get("http://" + n.APIAddr() + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "go_goroutines") {
		t.Error("metrics output missing Go collector")
	}

	if _, err := os.Stat(filepath.Join(cfg.LogsDir(), "inscribed.log")); err != nil {
		t.Errorf("log file not created: %v", err)
	}
}
