package report

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/foxseedlab/salescoach/internal/analysis"
	"github.com/foxseedlab/salescoach/internal/coach"
)

const (
	reportTimeLayout = "2006-01-02 15:04:05"
	barWidth         = 20
)

// Build renders a coaching report as plain text for the terminal.
func Build(r *coach.Report, loc *time.Location) string {
	lines := []string{
		fmt.Sprintf("Report: %s", r.ID),
		fmt.Sprintf("Source: %s", r.Source),
		fmt.Sprintf("Generated: %s", r.GeneratedAt.In(safeLocation(loc)).Format(reportTimeLayout)),
		"",
	}
	if r.Result == nil {
		return strings.Join(lines, "\n")
	}

	lines = append(lines, sectionDialogue)
	for _, turn := range r.Result.DiarizedTranscript {
		lines = append(lines, fmt.Sprintf("%-*s %s", speakerColumnWidth, turn.Speaker+":", turn.Text))
	}
	lines = append(lines, "", sectionEngagement)
	for _, p := range r.Result.SentimentAnalysis {
		lines = append(lines, formatEngagementPoint(p))
	}
	lines = append(lines, "", sectionWentWell)
	lines = append(lines, numbered(r.Result.CoachingCard.WhatWentWell)...)
	lines = append(lines, "", sectionMissed)
	lines = append(lines, numbered(r.Result.CoachingCard.MissedOpportunities)...)
	return strings.Join(lines, "\n")
}

const speakerColumnWidth = len(analysis.SpeakerSalesperson) + 1

func formatEngagementPoint(p analysis.EngagementPoint) string {
	return fmt.Sprintf("%3d%% |%-*s| %4.1f", p.Time, barWidth, engagementBar(p.Engagement), p.Engagement)
}

func engagementBar(score float64) string {
	ratio := score / analysis.MaxEngagement
	ratio = math.Max(0, math.Min(1, ratio))
	return strings.Repeat("#", int(math.Round(ratio*barWidth)))
}

func numbered(items []string) []string {
	out := make([]string, 0, len(items))
	for i, item := range items {
		out = append(out, fmt.Sprintf("%d. %s", i+1, item))
	}
	return out
}

func safeLocation(loc *time.Location) *time.Location {
	if loc == nil {
		return time.Local
	}
	return loc
}
