package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/voicecoach/voicecoach/internal/metrics"
)

func TestBusPublishSubscribe(t *testing.T) {
	t.Run("subscriber_receives_published_event", func(t *testing.T) {
		b := NewBus(16)
		ch, cancel := b.Subscribe(Filter{})
		defer cancel()

		if _, err := b.Publish("recording.saved", map[string]string{"id": "1"}); err != nil {
			t.Fatalf("Publish: %v", err)
		}

		select {
		case e := <-ch:
			if e.Type != "recording.saved" {
				t.Errorf("Type = %q, want recording.saved", e.Type)
			}
			if e.ID == "" {
				t.Error("expected non-empty event ID")
			}
			var payload map[string]string
			if err := json.Unmarshal(e.Data, &payload); err != nil {
				t.Fatalf("Data is not valid JSON: %v", err)
			}
			if payload["id"] != "1" {
				t.Errorf("payload id = %q, want 1", payload["id"])
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	})

	t.Run("filtered_subscriber_misses_non_matching", func(t *testing.T) {
		b := NewBus(16)
		ch, cancel := b.Subscribe(Filter{Types: []string{"library.cleared"}})
		defer cancel()

		b.Publish("recording.saved", "x")

		select {
		case e := <-ch:
			t.Fatalf("should not receive event, got %+v", e)
		case <-time.After(50 * time.Millisecond):
		}
	})

	t.Run("cancel_closes_channel", func(t *testing.T) {
		b := NewBus(16)
		ch, cancel := b.Subscribe(Filter{})
		cancel()
		cancel()

		b.Publish("recording.saved", "x")
		if _, ok := <-ch; ok {
			t.Fatal("should not receive event after cancel")
		}
		if n := b.SubscriberCount(); n != 0 {
			t.Errorf("SubscriberCount = %d, want 0", n)
		}
	})

	t.Run("unencodable_payload", func(t *testing.T) {
		b := NewBus(16)
		if _, err := b.Publish("recording.saved", make(chan int)); err == nil {
			t.Error("expected encode error")
		}
	})
}

func TestFilterMatches(t *testing.T) {
	tests := []struct {
		name  string
		types []string
		event string
		want  bool
	}{
		{"empty_matches_all", nil, "recording.saved", true},
		{"exact", []string{"recording.saved"}, "recording.saved", true},
		{"exact_miss", []string{"recording.saved"}, "recording.deleted", false},
		{"prefix", []string{"recording.*"}, "recording.deleted", true},
		{"prefix_miss", []string{"recording.*"}, "library.cleared", false},
		{"trimmed", []string{" library.cleared "}, "library.cleared", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := (Filter{Types: tt.types}).matches(tt.event); got != tt.want {
				t.Errorf("matches(%q) = %v, want %v", tt.event, got, tt.want)
			}
		})
	}
}

func TestBusReplaySince(t *testing.T) {
	b := NewBus(3)
	var ids []string
	for _, typ := range []string{"a", "b", "c", "d"} {
		e, err := b.Publish(typ, typ)
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, e.ID)
	}

	// "a" has been evicted from a ring of three.
	got := b.ReplaySince(ids[1], Filter{})
	if len(got) != 2 || got[0].Type != "c" || got[1].Type != "d" {
		t.Errorf("ReplaySince(b) = %+v, want [c d]", got)
	}
	if got := b.ReplaySince(ids[0], Filter{}); len(got) != 0 {
		t.Errorf("ReplaySince(evicted) = %d events, want 0", len(got))
	}
	if got := b.ReplaySince(ids[1], Filter{Types: []string{"d"}}); len(got) != 1 {
		t.Errorf("filtered replay = %d events, want 1", len(got))
	}
}

type captureSink struct{ got []Event }

func (c *captureSink) Send(e Event) { c.got = append(c.got, e) }

func TestPublisher(t *testing.T) {
	sink := &captureSink{}
	p := NewPublisher(NewBus(8), sink, zerolog.Nop())
	before := testutil.ToFloat64(metrics.EventsPublishedTotal.WithLabelValues("recording.renamed"))

	p.Publish("recording.renamed", map[string]string{"id": "1", "name": "x"})
	p.Publish("recording.renamed", make(chan int))

	if len(sink.got) != 1 {
		t.Fatalf("sink got %d events, want 1", len(sink.got))
	}
	after := testutil.ToFloat64(metrics.EventsPublishedTotal.WithLabelValues("recording.renamed"))
	if after-before != 1 {
		t.Errorf("events_published_total delta = %v, want 1", after-before)
	}
}

func TestTopicFor(t *testing.T) {
	tests := []struct{ prefix, event, want string }{
		{"voicecoach", "recording.saved", "voicecoach/recording/saved"},
		{"", "library.cleared", "library/cleared"},
	}
	for _, tt := range tests {
		if got := topicFor(tt.prefix, tt.event); got != tt.want {
			t.Errorf("topicFor(%q, %q) = %q, want %q", tt.prefix, tt.event, got, tt.want)
		}
	}
}
