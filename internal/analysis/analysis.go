package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	SpeakerSalesperson = "Salesperson"
	SpeakerProspect    = "Prospect"

	CoachingItemCount = 3
	TimeStepPercent   = 10
	MinEngagement     = 1
	MaxEngagement     = 10
)

var (
	// ErrMalformedResponse means the analysis result was missing required
	// fields or violated the result contract.
	ErrMalformedResponse = errors.New("malformed analysis response")

	// ErrAnalysisFailed is the single failure surfaced to callers of the coach.
	ErrAnalysisFailed = errors.New("failed to get analysis; check the transcript and try again")

	ErrEmptyTranscript = errors.New("transcript is empty")
)

type DialogueTurn struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

type EngagementPoint struct {
	Time       int     `json:"time"`
	Engagement float64 `json:"engagement"`
}

type CoachingCard struct {
	WhatWentWell        []string `json:"whatWentWell"`
	MissedOpportunities []string `json:"missedOpportunities"`
}

type Result struct {
	DiarizedTranscript []DialogueTurn    `json:"diarizedTranscript"`
	SentimentAnalysis  []EngagementPoint `json:"sentimentAnalysis"`
	CoachingCard       CoachingCard      `json:"coachingCard"`
}

// Analyzer submits a full transcript to the remote analysis service.
type Analyzer interface {
	Analyze(ctx context.Context, transcript string) (*Result, error)
}

type rawResult struct {
	DiarizedTranscript []DialogueTurn    `json:"diarizedTranscript"`
	SentimentAnalysis  []EngagementPoint `json:"sentimentAnalysis"`
	CoachingCard       *struct {
		WhatWentWell        []string `json:"whatWentWell"`
		MissedOpportunities []string `json:"missedOpportunities"`
	} `json:"coachingCard"`
}

// ParseResult decodes and validates a raw analysis response. Responses that
// arrive wrapped in a markdown code fence are accepted.
func ParseResult(data []byte) (*Result, error) {
	body := stripCodeFence(strings.TrimSpace(string(data)))
	if body == "" {
		return nil, fmt.Errorf("%w: empty body", ErrMalformedResponse)
	}

	var raw rawResult
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if raw.DiarizedTranscript == nil {
		return nil, fmt.Errorf("%w: diarizedTranscript is missing", ErrMalformedResponse)
	}
	if raw.SentimentAnalysis == nil {
		return nil, fmt.Errorf("%w: sentimentAnalysis is missing", ErrMalformedResponse)
	}
	if raw.CoachingCard == nil {
		return nil, fmt.Errorf("%w: coachingCard is missing", ErrMalformedResponse)
	}

	res := &Result{
		DiarizedTranscript: raw.DiarizedTranscript,
		SentimentAnalysis:  raw.SentimentAnalysis,
		CoachingCard: CoachingCard{
			WhatWentWell:        raw.CoachingCard.WhatWentWell,
			MissedOpportunities: raw.CoachingCard.MissedOpportunities,
		},
	}
	if err := res.Validate(); err != nil {
		return nil, err
	}
	return res, nil
}

func (r *Result) Validate() error {
	if len(r.DiarizedTranscript) == 0 {
		return fmt.Errorf("%w: diarizedTranscript is empty", ErrMalformedResponse)
	}
	for i, turn := range r.DiarizedTranscript {
		if turn.Speaker != SpeakerSalesperson && turn.Speaker != SpeakerProspect {
			return fmt.Errorf("%w: turn %d has unknown speaker %q", ErrMalformedResponse, i, turn.Speaker)
		}
	}

	for i, p := range r.SentimentAnalysis {
		if p.Time < 0 || p.Time > 100 || p.Time%TimeStepPercent != 0 {
			return fmt.Errorf("%w: point %d has time %d outside 0..100 step %d", ErrMalformedResponse, i, p.Time, TimeStepPercent)
		}
		if p.Engagement < MinEngagement || p.Engagement > MaxEngagement {
			return fmt.Errorf("%w: point %d has engagement %v outside %d..%d", ErrMalformedResponse, i, p.Engagement, MinEngagement, MaxEngagement)
		}
		if i > 0 && p.Time <= r.SentimentAnalysis[i-1].Time {
			return fmt.Errorf("%w: point %d is out of order", ErrMalformedResponse, i)
		}
	}

	if n := len(r.CoachingCard.WhatWentWell); n != CoachingItemCount {
		return fmt.Errorf("%w: whatWentWell has %d items, want %d", ErrMalformedResponse, n, CoachingItemCount)
	}
	if n := len(r.CoachingCard.MissedOpportunities); n != CoachingItemCount {
		return fmt.Errorf("%w: missedOpportunities has %d items, want %d", ErrMalformedResponse, n, CoachingItemCount)
	}
	return nil
}

func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
