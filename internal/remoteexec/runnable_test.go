package remoteexec

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/geocoder89/eventhub/internal/scheduler"
)

// fakeJobContext is a minimal scheduler.JobContext double: it records
// status/log/data writes instead of touching a real job info repository.
type fakeJobContext struct {
	context.Context
	mu        sync.Mutex
	statusMsg string
	logLines  []string
	data      map[string]string
}

func newFakeJobContext(ctx context.Context) *fakeJobContext {
	return &fakeJobContext{Context: ctx, data: map[string]string{}}
}

func (f *fakeJobContext) JobID() string   { return "job-1" }
func (f *fakeJobContext) JobName() string { return "import" }

func (f *fakeJobContext) SetStatusMessage(message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusMsg = message
}

func (f *fakeJobContext) AddLogLine(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logLines = append(f.logLines, text)
}

func (f *fakeJobContext) AddAdditionalData(key, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value
}

func (f *fakeJobContext) dataSnapshot() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]string, len(f.data))
	for k, v := range f.data {
		out[k] = v
	}
	return out
}

type fakeArchiveProvider struct {
	err error
}

func (p fakeArchiveProvider) CreateArchive(ctx context.Context, jobName string) (io.ReadCloser, error) {
	if p.err != nil {
		return nil, p.err
	}
	return io.NopCloser(strings.NewReader("archive-bytes")), nil
}

func TestRunnable_Run_StartsAndDelegatesImmediately(t *testing.T) {
	var posts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			posts++
			w.Header().Set("Location", "/status/1")
			w.WriteHeader(http.StatusCreated)
		}
	}))
	defer srv.Close()

	client := New(Config{BaseURL: srv.URL}, nil)
	runnable := NewRunnable(client, fakeArchiveProvider{})

	jc := newFakeJobContext(context.Background())
	err := runnable.Run(jc)
	if !errors.Is(err, scheduler.ErrJobDelegated) {
		t.Fatalf("expected ErrJobDelegated, got %v", err)
	}
	if posts != 1 {
		t.Fatalf("expected exactly one start POST, got %d", posts)
	}

	data := jc.dataSnapshot()
	if data[scheduler.AdditionalDataResultHash] != "/status/1" {
		t.Fatalf("expected resultHash to be the status url, got %q", data[scheduler.AdditionalDataResultHash])
	}
	if data[scheduler.AdditionalDataLogLineOffset] != "0" {
		t.Fatalf("expected logLineOffset to start at 0, got %q", data[scheduler.AdditionalDataLogLineOffset])
	}
}

func TestRunnable_Run_PropagatesStartFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := New(Config{BaseURL: srv.URL}, nil)
	runnable := NewRunnable(client, fakeArchiveProvider{})

	jc := newFakeJobContext(context.Background())
	err := runnable.Run(jc)
	if err == nil || errors.Is(err, scheduler.ErrJobDelegated) {
		t.Fatalf("expected a start error, got %v", err)
	}
}

func TestRunnable_Run_PropagatesArchiveFailure(t *testing.T) {
	client := New(Config{BaseURL: "http://127.0.0.1:0"}, nil)
	runnable := NewRunnable(client, fakeArchiveProvider{err: errors.New("disk full")})

	jc := newFakeJobContext(context.Background())
	err := runnable.Run(jc)
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected the archive error to propagate, got %v", err)
	}
}
