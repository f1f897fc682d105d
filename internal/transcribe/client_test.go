package transcribe

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "test-key", 5*time.Second)
}

func TestClientUpload(t *testing.T) {
	t.Run("sends_raw_bytes_with_auth", func(t *testing.T) {
		var gotAuth, gotType, gotBody, gotPath string
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			gotType = r.Header.Get("Content-Type")
			gotPath = r.URL.Path
			b, _ := io.ReadAll(r.Body)
			gotBody = string(b)
			w.Write([]byte(`{"upload_url":"https://cdn.example/abc"}`))
		})

		ref, err := c.Upload(context.Background(), []byte("fake-audio"))
		if err != nil {
			t.Fatalf("Upload: %v", err)
		}
		if ref != "https://cdn.example/abc" {
			t.Errorf("ref = %q", ref)
		}
		if gotPath != "/upload" {
			t.Errorf("path = %q, want /upload", gotPath)
		}
		if gotAuth != "test-key" {
			t.Errorf("authorization = %q, want test-key", gotAuth)
		}
		if gotType != "application/octet-stream" {
			t.Errorf("content-type = %q", gotType)
		}
		if gotBody != "fake-audio" {
			t.Errorf("body = %q", gotBody)
		}
	})

	t.Run("non_success_status", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":"bad key"}`, http.StatusUnauthorized)
		})
		_, err := c.Upload(context.Background(), []byte("x"))
		if !errors.Is(err, ErrUpload) {
			t.Fatalf("err = %v, want ErrUpload", err)
		}
	})

	t.Run("missing_upload_url", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{}`))
		})
		_, err := c.Upload(context.Background(), []byte("x"))
		if !errors.Is(err, ErrUpload) {
			t.Fatalf("err = %v, want ErrUpload", err)
		}
	})

	t.Run("network_error", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		srv.Close()
		c := NewClient(srv.URL, "k", time.Second)
		_, err := c.Upload(context.Background(), []byte("x"))
		if !errors.Is(err, ErrUpload) {
			t.Fatalf("err = %v, want ErrUpload", err)
		}
	})
}

func TestClientSubmit(t *testing.T) {
	t.Run("requests_sentiment_and_entities", func(t *testing.T) {
		var got submitRequest
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost || r.URL.Path != "/transcript" {
				t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
			}
			json.NewDecoder(r.Body).Decode(&got)
			w.Write([]byte(`{"id":"job-1","status":"queued"}`))
		})

		job, err := c.Submit(context.Background(), "https://cdn.example/abc")
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
		if job.ID != "job-1" || job.Status != StatusQueued {
			t.Errorf("job = %+v", job)
		}
		if got.AudioURL != "https://cdn.example/abc" || !got.SentimentAnalysis || !got.EntityDetection {
			t.Errorf("request = %+v", got)
		}
	})

	t.Run("provider_failure", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})
		_, err := c.Submit(context.Background(), "u")
		if !errors.Is(err, ErrSubmission) {
			t.Fatalf("err = %v, want ErrSubmission", err)
		}
	})

	t.Run("missing_id", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"status":"queued"}`))
		})
		_, err := c.Submit(context.Background(), "u")
		if !errors.Is(err, ErrSubmission) {
			t.Fatalf("err = %v, want ErrSubmission", err)
		}
	})
}

func TestClientStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transcript/job-1" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(`{
			"id": "job-1",
			"status": "completed",
			"text": "um hello there",
			"entities": [{"entity_type": "filler", "text": "um", "start": 0, "end": 200}],
			"sentiment_analysis_results": [{"text": "hello there", "sentiment": "POSITIVE", "confidence": 0.9}],
			"words": [{"text": "um", "start": 0, "end": 200}, {"text": "hello", "start": 250, "end": 500}],
			"audio_duration": 1.5
		}`))
	})

	res, err := c.Status(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if res.Status != StatusCompleted {
		t.Errorf("status = %q", res.Status)
	}
	if len(res.Entities) != 1 || res.Entities[0].Type != EntityFiller {
		t.Errorf("entities = %+v", res.Entities)
	}
	if len(res.Sentiments) != 1 || res.Sentiments[0].Sentiment != SentimentPositive {
		t.Errorf("sentiments = %+v", res.Sentiments)
	}
	if len(res.Words) != 2 {
		t.Errorf("words = %d, want 2", len(res.Words))
	}
	if res.AudioDuration != 1.5 {
		t.Errorf("audio_duration = %v", res.AudioDuration)
	}
}

func TestJobStatusTerminal(t *testing.T) {
	tests := []struct {
		status JobStatus
		want   bool
	}{
		{StatusQueued, false},
		{StatusProcessing, false},
		{StatusCompleted, true},
		{StatusError, true},
	}
	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.want {
			t.Errorf("%q.Terminal() = %v, want %v", tt.status, got, tt.want)
		}
	}
}
