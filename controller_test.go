package vidget

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/drgo/vidget/testutils"
)

type fixture struct {
	backend *testutils.Backend
	client  *Client
	view    *ViewModel
	history *History
	ctrl    *Controller
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	backend := testutils.NewBackend(t)
	client, err := NewClient(backend.URL, opts...)
	if err != nil {
		t.Fatal(err)
	}
	view := NewViewModel()
	history := NewHistory(NewMemoryStorage(), view, client.Logger())
	return &fixture{
		backend: backend,
		client:  client,
		view:    view,
		history: history,
		ctrl:    NewController(client, view, history),
	}
}

func TestSubmitSuccess(t *testing.T) {
	require := testutils.NewRequire(t)
	assert := testutils.NewAssert(t)
	f := newFixture(t)
	f.backend.SetDownload(func(videoURL string) (int, any) {
		if videoURL != "https://example.com/v" {
			return http.StatusBadRequest, map[string]string{"error": "unexpected url " + videoURL}
		}
		return http.StatusOK, map[string]string{"download_url": "https://cdn/x.mp4", "title": "My Video"}
	})

	result, err := f.ctrl.Submit(context.Background(), "  https://example.com/v  ")
	require.NoError(err, "")
	assert.Equal("https://cdn/x.mp4", result.DownloadURL, "")

	kind, status := f.view.Status()
	assert.Equal(StatusSuccess, kind, "")
	assert.Equal(MsgSuccess, status, "")

	link, ok := f.view.Link()
	require.True(ok, "no link rendered")
	assert.Equal("https://cdn/x.mp4", link.URL, "")
	assert.Equal("Download My Video", link.Label, "")
	assert.Equal(ExpiryNotice, link.Notice, "")
	assert.Contains(f.view.LinkHTML(), `href="https://cdn/x.mp4"`, "")

	progress, visible := f.view.Progress()
	assert.True(visible, "progress bar should be shown")
	assert.Equal(100, progress.Percent, "")
	assert.Equal(StatusReady, progress.Status, "")

	entries := f.history.Entries()
	require.Len(entries, 1, "")
	assert.Equal("My Video", entries[0].Title, "")
	assert.Equal(StateIdle, f.ctrl.State(), "")
	assert.Equal(1, f.backend.Hits("/download"), "")
}

func TestSubmitEmptyURL(t *testing.T) {
	for _, input := range []string{"", "   ", "\t\n"} {
		f := newFixture(t)
		_, err := f.ctrl.Submit(context.Background(), input)
		if !errors.Is(err, ErrEmptyURL) {
			t.Errorf("Submit(%q): expected ErrEmptyURL, got %v", input, err)
		}
		kind, status := f.view.Status()
		if kind != StatusError || status != MsgInvalidURL {
			t.Errorf("Submit(%q): status %v %q", input, kind, status)
		}
		if hits := f.backend.Hits("/download"); hits != 0 {
			t.Errorf("Submit(%q): backend called %d times", input, hits)
		}
		if f.ctrl.State() != StateIdle {
			t.Errorf("Submit(%q): state %v, want Idle", input, f.ctrl.State())
		}
	}
}

func TestSubmitServerError(t *testing.T) {
	assert := testutils.NewAssert(t)
	f := newFixture(t)
	f.backend.SetDownload(func(string) (int, any) {
		return http.StatusForbidden, map[string]string{"error": "Invalid link"}
	})

	_, err := f.ctrl.Submit(context.Background(), "https://example.com/v")
	assert.True(errors.Is(err, ErrForbidden), "expected ErrForbidden, got %v", err)

	kind, status := f.view.Status()
	assert.Equal(StatusError, kind, "")
	assert.Equal("Invalid link", status, "")
	progress, _ := f.view.Progress()
	assert.Equal(0, progress.Percent, "")
	assert.Len(f.history.Entries(), 0, "no history on failure")
	_, hasLink := f.view.Link()
	assert.False(hasLink, "no link on failure")
	assert.Equal(StateIdle, f.ctrl.State(), "")
}

func TestSubmitErrorFallbacks(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    any
		wantMsg string
		wantErr error
	}{
		{"error without message", http.StatusInternalServerError, map[string]string{}, MsgDownloadFailed, nil},
		{"non-json error body", http.StatusBadGateway, "<html>bad gateway</html>", MsgDownloadFailed, nil},
		{"non-json success body", http.StatusOK, "<html>ok</html>", MsgGenericError, ErrMalformedResponse},
		{"missing fields", http.StatusOK, map[string]string{"title": "only a title"}, MsgGenericError, ErrMalformedResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.backend.SetDownload(func(string) (int, any) { return tt.status, tt.body })

			_, err := f.ctrl.Submit(context.Background(), "https://example.com/v")
			if err == nil {
				t.Fatal("expected an error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
			if _, status := f.view.Status(); status != tt.wantMsg {
				t.Errorf("status %q, want %q", status, tt.wantMsg)
			}
			if n := len(f.history.Entries()); n != 0 {
				t.Errorf("history has %d entries", n)
			}
		})
	}
}

func TestSubmitTimeout(t *testing.T) {
	f := newFixture(t, WithTimeout(50*time.Millisecond))
	release := make(chan struct{})
	defer close(release)
	f.backend.SetDownload(func(string) (int, any) {
		<-release
		return http.StatusOK, map[string]string{"download_url": "https://cdn/x.mp4", "title": "late"}
	})

	_, err := f.ctrl.Submit(context.Background(), "https://example.com/v")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if _, status := f.view.Status(); status != MsgGenericError {
		t.Errorf("status %q, want %q", status, MsgGenericError)
	}
	if p := f.ctrl.Progress(); p.Percent != 0 || p.State != ProgressStateFailed {
		t.Errorf("progress %+v, want failed at 0", p)
	}
	if f.ctrl.State() != StateIdle {
		t.Errorf("state %v, want Idle", f.ctrl.State())
	}
}

func TestSubmitRejectsOverlap(t *testing.T) {
	f := newFixture(t)
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	f.backend.SetDownload(func(string) (int, any) {
		once.Do(func() { close(entered) })
		<-release
		return http.StatusOK, map[string]string{"download_url": "https://cdn/x.mp4", "title": "first"}
	})

	done := make(chan error, 1)
	go func() {
		_, err := f.ctrl.Submit(context.Background(), "https://example.com/1")
		done <- err
	}()
	<-entered

	if f.ctrl.State() != StateInFlight {
		t.Fatalf("state %v, want InFlight", f.ctrl.State())
	}
	if _, err := f.ctrl.Submit(context.Background(), "https://example.com/2"); !errors.Is(err, ErrRequestInFlight) {
		t.Errorf("expected ErrRequestInFlight, got %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first request failed: %v", err)
	}
	if hits := f.backend.Hits("/download"); hits != 1 {
		t.Errorf("backend saw %d requests, want 1", hits)
	}
	if n := len(f.history.Entries()); n != 1 {
		t.Errorf("history has %d entries, want 1", n)
	}
}

// orderView records the order in which progress, link and status are
// written.
type orderView struct {
	*ViewModel
	events []string
}

func (v *orderView) SetProgress(p Progress) {
	v.events = append(v.events, fmt.Sprintf("progress %d", p.Percent))
	v.ViewModel.SetProgress(p)
}

func (v *orderView) ShowLink(link Link) {
	v.events = append(v.events, "link")
	v.ViewModel.ShowLink(link)
}

func (v *orderView) SetStatus(kind StatusKind, text string) {
	if kind != StatusNone {
		v.events = append(v.events, "status")
	}
	v.ViewModel.SetStatus(kind, text)
}

func TestSubmitProgressPrecedesResult(t *testing.T) {
	backend := testutils.NewBackend(t)
	client, err := NewClient(backend.URL)
	if err != nil {
		t.Fatal(err)
	}
	view := &orderView{ViewModel: NewViewModel()}
	ctrl := NewController(client, view, NewHistory(NewMemoryStorage(), view, nil))

	if _, err := ctrl.Submit(context.Background(), "https://example.com/v"); err != nil {
		t.Fatal(err)
	}
	want := []string{"progress 0", "progress 10", "progress 100", "link", "status"}
	if !reflect.DeepEqual(view.events, want) {
		t.Errorf("render order %v, want %v", view.events, want)
	}

	view.events = nil
	backend.SetDownload(func(string) (int, any) {
		return http.StatusForbidden, map[string]string{"error": "Invalid link"}
	})
	if _, err := ctrl.Submit(context.Background(), "https://example.com/v"); err == nil {
		t.Fatal("expected an error")
	}
	want = []string{"progress 0", "progress 10", "progress 0", "status"}
	if !reflect.DeepEqual(view.events, want) {
		t.Errorf("render order %v, want %v", view.events, want)
	}
}

// stateView captures the controller state seen while the outcome is drawn.
type stateView struct {
	*ViewModel
	ctrl *Controller
	seen []State
}

func (v *stateView) SetStatus(kind StatusKind, text string) {
	if kind != StatusNone {
		v.seen = append(v.seen, v.ctrl.State())
	}
	v.ViewModel.SetStatus(kind, text)
}

func TestSubmitTerminalStatesVisible(t *testing.T) {
	backend := testutils.NewBackend(t)
	client, err := NewClient(backend.URL)
	if err != nil {
		t.Fatal(err)
	}
	view := &stateView{ViewModel: NewViewModel()}
	view.ctrl = NewController(client, view, nil)
	ctrl := view.ctrl

	if _, err := ctrl.Submit(context.Background(), "https://example.com/v"); err != nil {
		t.Fatal(err)
	}
	_, _ = ctrl.Submit(context.Background(), "  ")
	backend.SetDownload(func(string) (int, any) { return http.StatusInternalServerError, map[string]string{} })
	_, _ = ctrl.Submit(context.Background(), "https://example.com/v")

	want := []State{StateSuccess, StateError, StateError}
	if !reflect.DeepEqual(view.seen, want) {
		t.Errorf("states while rendering %v, want %v", view.seen, want)
	}
	if ctrl.State() != StateIdle {
		t.Errorf("state after Submit %v, want Idle", ctrl.State())
	}
}

func TestStateString(t *testing.T) {
	want := map[State]string{
		StateIdle:       "Idle",
		StateValidating: "Validating",
		StateInFlight:   "InFlight",
		StateSuccess:    "Success",
		StateError:      "Error",
		State(42):       "State(42)",
	}
	for s, name := range want {
		if s.String() != name {
			t.Errorf("State(%d).String() = %q, want %q", int(s), s.String(), name)
		}
	}
}
