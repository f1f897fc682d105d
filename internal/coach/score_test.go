package coach

import (
	"reflect"
	"testing"

	"github.com/voicecoach/voicecoach/internal/transcribe"
)

// buildResult fabricates a completed result with the given metrics.
func buildResult(fillers int, sentiments []string, words int, duration float64) *transcribe.Result {
	res := &transcribe.Result{Status: transcribe.StatusCompleted, Text: "sample", AudioDuration: duration}
	for i := 0; i < fillers; i++ {
		res.Entities = append(res.Entities, transcribe.Entity{Type: transcribe.EntityFiller, Text: "um"})
	}
	// non-filler entities must not count
	res.Entities = append(res.Entities, transcribe.Entity{Type: "person_name", Text: "Ada"})
	for _, s := range sentiments {
		res.Sentiments = append(res.Sentiments, transcribe.SentimentSegment{Sentiment: s})
	}
	for i := 0; i < words; i++ {
		res.Words = append(res.Words, transcribe.Word{Text: "w"})
	}
	return res
}

func TestScore(t *testing.T) {
	tests := []struct {
		name       string
		res        *transcribe.Result
		confidence int
		tips       []string
	}{
		{
			// 135 words over 60s, all positive, no fillers
			name:       "ideal",
			res:        buildResult(0, []string{"POSITIVE", "POSITIVE"}, 135, 60),
			confidence: 100,
			tips:       []string{},
		},
		{
			// 160 wpm, sentiment 0.5, 8 fillers: round(20+15+18)
			name:       "all_tips",
			res:        buildResult(8, []string{"POSITIVE", "NEGATIVE"}, 160, 60),
			confidence: 53,
			tips:       []string{TipTone, TipFillers, TipSlowDown},
		},
		{
			// no segments: sentiment term is 0
			name:       "no_segments",
			res:        buildResult(0, nil, 130, 60),
			confidence: 60,
			tips:       []string{TipTone},
		},
		{
			name:       "slow_speaker",
			res:        buildResult(2, []string{"NEUTRAL", "POSITIVE"}, 50, 60),
			confidence: round(0.4*75 + 30 + 18),
			tips:       []string{TipSpeedUp},
		},
		{
			// zero duration: rate is 0, so the speed-up tip fires
			name:       "zero_duration",
			res:        buildResult(0, []string{"POSITIVE"}, 10, 0),
			confidence: 88,
			tips:       []string{TipSpeedUp},
		},
		{
			// exactly 5 fillers: penalized but no tip
			name:       "five_fillers",
			res:        buildResult(5, []string{"POSITIVE"}, 120, 60),
			confidence: 85,
			tips:       []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(tt.res)
			if got.Confidence != tt.confidence {
				t.Errorf("Confidence = %d, want %d", got.Confidence, tt.confidence)
			}
			if !reflect.DeepEqual(got.Tips, tt.tips) {
				t.Errorf("Tips = %q, want %q", got.Tips, tt.tips)
			}
			if got.Transcript != "sample" {
				t.Errorf("Transcript = %q", got.Transcript)
			}
		})
	}
}

func round(f float64) int { return int(f + 0.5) }

func TestSentimentScore(t *testing.T) {
	tests := []struct {
		name   string
		labels []string
		want   float64
	}{
		{"empty", nil, 0},
		{"positive", []string{"POSITIVE"}, 1},
		{"neutral", []string{"NEUTRAL"}, 0.5},
		{"negative", []string{"NEGATIVE"}, 0},
		{"unknown_label_counts_zero", []string{"POSITIVE", "MIXED"}, 0.5},
		{"mixed", []string{"POSITIVE", "NEUTRAL", "NEGATIVE", "POSITIVE"}, 0.625},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var segs []transcribe.SentimentSegment
			for _, l := range tt.labels {
				segs = append(segs, transcribe.SentimentSegment{Sentiment: l})
			}
			if got := SentimentScore(segs); got != tt.want {
				t.Errorf("SentimentScore = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSpeakingRate(t *testing.T) {
	if got := SpeakingRate(100, 0); got != 0 {
		t.Errorf("zero duration = %v, want 0", got)
	}
	if got := SpeakingRate(100, -3); got != 0 {
		t.Errorf("negative duration = %v, want 0", got)
	}
	if got := SpeakingRate(65, 30); got != 130 {
		t.Errorf("SpeakingRate(65, 30) = %v, want 130", got)
	}
}

func TestConfidenceBounds(t *testing.T) {
	for _, s := range []float64{0, 0.25, 0.5, 0.75, 1, 1.5} {
		for _, f := range []int{0, 4, 5, 50} {
			for _, r := range []float64{0, 119.9, 120, 150, 150.1, 1e6} {
				c := Confidence(s, f, r)
				if c < 0 || c > 100 {
					t.Fatalf("Confidence(%v, %d, %v) = %d, out of range", s, f, r, c)
				}
			}
		}
	}
	// out-of-range sentiment is clamped rather than exceeding 100
	if c := Confidence(2, 0, 130); c != 100 {
		t.Errorf("Confidence(2, 0, 130) = %d, want 100", c)
	}
}

func TestTipsPaceExclusive(t *testing.T) {
	tips := Tips(1, 0, 200)
	if !reflect.DeepEqual(tips, []string{TipSlowDown}) {
		t.Errorf("fast: %q", tips)
	}
	tips = Tips(1, 0, 100)
	if !reflect.DeepEqual(tips, []string{TipSpeedUp}) {
		t.Errorf("slow: %q", tips)
	}
	if tips := Tips(1, 0, 120); len(tips) != 0 {
		t.Errorf("boundary 120: %q", tips)
	}
	if tips := Tips(1, 0, 150); len(tips) != 0 {
		t.Errorf("boundary 150: %q", tips)
	}
}

func TestAnalysisResponse(t *testing.T) {
	r := Analysis{Transcript: "hi", Confidence: 70}.Response()
	if r.Tips == nil {
		t.Error("Response().Tips is nil, want empty slice")
	}
	if r.Transcript != "hi" || r.Confidence != 70 {
		t.Errorf("Response() = %+v", r)
	}
}
