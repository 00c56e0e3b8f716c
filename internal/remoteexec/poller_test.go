package remoteexec

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/geocoder89/eventhub/internal/scheduler"
)

func TestPoller_Poll_ReturnsOnlyNewLogLines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"RUNNING","logLines":["a","b","c"]}`))
	}))
	defer srv.Close()

	p := NewPoller(New(Config{BaseURL: srv.URL}, nil))
	out, err := p.Poll(context.Background(), "/status/1", 1)
	if err != nil {
		t.Fatalf("Poll error: %v", err)
	}
	if out.Status != scheduler.RemoteRunning {
		t.Fatalf("expected RemoteRunning, got %v", out.Status)
	}
	if len(out.NewLogLines) != 2 || out.NewLogLines[0] != "b" || out.NewLogLines[1] != "c" {
		t.Fatalf("expected [b c], got %v", out.NewLogLines)
	}
}

func TestPoller_Poll_TranslatesTerminalStatuses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"FAILED","message":"boom"}`))
	}))
	defer srv.Close()

	p := NewPoller(New(Config{BaseURL: srv.URL}, nil))
	out, err := p.Poll(context.Background(), "/status/1", 0)
	if err != nil {
		t.Fatalf("Poll error: %v", err)
	}
	if out.Status != scheduler.RemoteFailed {
		t.Fatalf("expected RemoteFailed, got %v", out.Status)
	}
	if out.Message != "boom" {
		t.Fatalf("expected message boom, got %q", out.Message)
	}
}

func TestPoller_Stop_DelegatesToClient(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	p := NewPoller(New(Config{BaseURL: srv.URL}, nil))
	if err := p.Stop(context.Background(), "/status/1"); err != nil {
		t.Fatalf("Stop error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 DELETE call, got %d", calls)
	}
}
