package main

import (
	"bytes"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/danmuck/globalbehavior/internal/host"
	"github.com/danmuck/globalbehavior/internal/server"
	"github.com/danmuck/globalbehavior/internal/testutil/testlog"
	"github.com/danmuck/globalbehavior/internal/window"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestConfigTemplateAndValidate(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "frame.toml")
	if _, err := execute(t, "config", "template", "--kind", "frame", "--out", path); err != nil {
		t.Fatalf("template: %v", err)
	}
	if _, err := execute(t, "config", "template", "--kind", "frame", "--out", path); err == nil {
		t.Fatalf("expected refusal to overwrite without --force")
	}
	out, err := execute(t, "config", "validate", "--config", path)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.Contains(out, "documents=1") {
		t.Fatalf("unexpected validate output %q", out)
	}

	normalized := filepath.Join(dir, "normalized.toml")
	if _, err := execute(t, "config", "template", "--from", path, "--out", normalized); err != nil {
		t.Fatalf("template --from: %v", err)
	}
	if _, err := execute(t, "config", "validate", "-c", normalized); err != nil {
		t.Fatalf("normalized config invalid: %v", err)
	}
}

func TestAdminCommands(t *testing.T) {
	testlog.Start(t)
	rt := host.NewRuntime()
	doc := rt.Load("stage")
	var fires atomic.Int64
	doc.On("#pulse", func(*host.Document, string) { fires.Add(1) })
	win := window.New(window.Config{Host: rt})
	defer win.Close()
	ts := httptest.NewServer(server.New("node-a", win, server.Options{Token: "tok"}).HTTPRouter())
	defer ts.Close()

	if _, err := execute(t, "--addr", ts.URL, "trigger", "pulse"); err == nil {
		t.Fatalf("expected unauthorized trigger to fail")
	}
	t.Setenv(envAdminToken, "tok")
	if _, err := execute(t, "--addr", ts.URL, "trigger", "pulse"); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if fires.Load() != 1 {
		t.Fatalf("expected one fire, got %d", fires.Load())
	}
	if _, err := execute(t, "--addr", ts.URL, "ticker", "start", "blink", "--fps", "2", "--omit-first", "--pattern", "true,false"); err != nil {
		t.Fatalf("ticker start: %v", err)
	}
	if !win.Tickers().Active("blink") {
		t.Fatalf("blink not started")
	}
	if _, err := execute(t, "--addr", ts.URL, "ticker", "start", "bad"); err == nil {
		t.Fatalf("expected missing interval flag to fail")
	}
	out, err := execute(t, "--addr", ts.URL, "status")
	if err != nil || !strings.Contains(out, `"blink"`) {
		t.Fatalf("status out=%q err=%v", out, err)
	}
	if _, err := execute(t, "--addr", ts.URL, "ticker", "stop-all"); err != nil {
		t.Fatalf("stop-all: %v", err)
	}
	if win.Tickers().Len() != 0 {
		t.Fatalf("tickers left: %v", win.Tickers().Names())
	}
}
