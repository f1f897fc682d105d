// Package coach turns a completed transcription into a confidence score and
// coaching tips.
package coach

import (
	"math"

	"github.com/voicecoach/voicecoach/internal/transcribe"
)

// Tips, in the order they are emitted.
const (
	TipTone     = "Try a more positive tone to sound confident"
	TipFillers  = `Reduce filler words (e.g., "um") for authority`
	TipSlowDown = "Slow down to improve clarity"
	TipSpeedUp  = "Speak faster for more energy"
)

// Scoring thresholds.
const (
	// IdealRateMin and IdealRateMax bound the target speaking rate in words per minute.
	IdealRateMin = 120.0
	IdealRateMax = 150.0

	// FillerPenaltyAt is the filler count at which the filler term drops to 50.
	FillerPenaltyAt = 5
	// FillerTipAbove is the filler count above which the filler tip is given.
	FillerTipAbove = 5

	// PositiveToneMin is the sentiment score below which the tone tip is given.
	PositiveToneMin = 0.7
)

// Analysis is the scored view of a transcript.
type Analysis struct {
	Transcript     string   `json:"transcript"`
	Confidence     int      `json:"confidence"`
	Tips           []string `json:"tips"`
	FillerCount    int      `json:"filler_count"`
	SentimentScore float64  `json:"sentiment_score"`
	SpeakingRate   float64  `json:"speaking_rate"`
	Duration       float64  `json:"duration"`
}

// Score computes the confidence score and tips for a completed transcription.
func Score(res *transcribe.Result) Analysis {
	fillers := FillerCount(res.Entities)
	sentiment := SentimentScore(res.Sentiments)
	rate := SpeakingRate(len(res.Words), res.AudioDuration)

	return Analysis{
		Transcript:     res.Text,
		Confidence:     Confidence(sentiment, fillers, rate),
		Tips:           Tips(sentiment, fillers, rate),
		FillerCount:    fillers,
		SentimentScore: sentiment,
		SpeakingRate:   rate,
		Duration:       res.AudioDuration,
	}
}

// FillerCount returns the number of filler entities.
func FillerCount(entities []transcribe.Entity) int {
	n := 0
	for _, e := range entities {
		if e.Type == transcribe.EntityFiller {
			n++
		}
	}
	return n
}

// SentimentScore averages segment labels (POSITIVE=1, NEUTRAL=0.5, anything
// else 0). No segments scores 0.
func SentimentScore(segments []transcribe.SentimentSegment) float64 {
	if len(segments) == 0 {
		return 0
	}
	var sum float64
	for _, s := range segments {
		switch s.Sentiment {
		case transcribe.SentimentPositive:
			sum += 1
		case transcribe.SentimentNeutral:
			sum += 0.5
		}
	}
	return sum / float64(len(segments))
}

// SpeakingRate returns words per minute, or 0 when the duration is not positive.
func SpeakingRate(words int, durationSeconds float64) float64 {
	if durationSeconds <= 0 {
		return 0
	}
	return float64(words) / (durationSeconds / 60)
}

// Confidence blends sentiment (40%), filler frequency (30%) and speaking rate
// (30%) into an integer clamped to [0,100].
func Confidence(sentiment float64, fillers int, rate float64) int {
	fillerTerm := 100.0
	if fillers >= FillerPenaltyAt {
		fillerTerm = 50
	}
	rateTerm := 60.0
	if rate >= IdealRateMin && rate <= IdealRateMax {
		rateTerm = 100
	}

	score := math.Round(0.4*sentiment*100 + 0.3*fillerTerm + 0.3*rateTerm)
	switch {
	case math.IsNaN(score) || score < 0:
		return 0
	case score > 100:
		return 100
	}
	return int(score)
}

// Tips returns coaching tips in fixed order: tone, fillers, then pace. The
// two pace tips are mutually exclusive. Never nil.
func Tips(sentiment float64, fillers int, rate float64) []string {
	tips := []string{}
	if sentiment < PositiveToneMin {
		tips = append(tips, TipTone)
	}
	if fillers > FillerTipAbove {
		tips = append(tips, TipFillers)
	}
	if rate > IdealRateMax {
		tips = append(tips, TipSlowDown)
	} else if rate < IdealRateMin {
		tips = append(tips, TipSpeedUp)
	}
	return tips
}

// Response is the client-facing subset of an Analysis.
type Response struct {
	Transcript string   `json:"transcript"`
	Confidence int      `json:"confidence"`
	Tips       []string `json:"tips"`
}

// Response returns the client-facing view of a.
func (a Analysis) Response() Response {
	tips := a.Tips
	if tips == nil {
		tips = []string{}
	}
	return Response{Transcript: a.Transcript, Confidence: a.Confidence, Tips: tips}
}
