package api

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/voicecoach/voicecoach/internal/events"
)

func TestStreamEvents(t *testing.T) {
	bus := events.NewBus(16)
	old, _ := bus.Publish("recording.saved", map[string]string{"id": "1"})
	bus.Publish("recording.deleted", map[string]string{"id": "1"})

	srv := httptest.NewServer(http.HandlerFunc(NewEventsHandler(bus).StreamEvents))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, "GET", srv.URL+"?types=recording.*", nil)
	req.Header.Set("Last-Event-ID", old.ID)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	lines := make(chan string, 32)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	nextEvent := func() string {
		t.Helper()
		for {
			select {
			case l, ok := <-lines:
				if !ok {
					t.Fatal("stream closed")
				}
				if strings.HasPrefix(l, "event: ") {
					return strings.TrimPrefix(l, "event: ")
				}
			case <-ctx.Done():
				t.Fatal("timed out waiting for event")
			}
		}
	}

	// Replayed event after Last-Event-ID.
	if got := nextEvent(); got != "recording.deleted" {
		t.Fatalf("replayed %q, want recording.deleted", got)
	}

	// Live events; the filtered one is skipped.
	bus.Publish("library.cleared", map[string]any{})
	bus.Publish("recording.renamed", map[string]string{"id": "2"})
	if got := nextEvent(); got != "recording.renamed" {
		t.Fatalf("got %q, want recording.renamed", got)
	}
}

func TestStreamEventsUnavailable(t *testing.T) {
	rec := httptest.NewRecorder()
	NewEventsHandler(nil).StreamEvents(rec, httptest.NewRequest("GET", "/", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}
