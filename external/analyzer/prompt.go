package analyzer

import (
	"fmt"

	"github.com/foxseedlab/salescoach/internal/analysis"
	"github.com/sashabaranov/go-openai/jsonschema"
)

const systemPrompt = "You are a world-class sales coach. You analyze sales call transcripts and reply with JSON only."

func buildPrompt(transcript string) string {
	return fmt.Sprintf(`Analyze the following sales call transcript.
Your task is to provide a detailed analysis in JSON format.
Identify the two speakers and label them consistently as '%s' and '%s'.
Rate the prospect's engagement from %d (low) to %d (high) at every %d%% of the call, from 0 to 100.
List exactly %d things the salesperson did well and exactly %d missed opportunities.

Transcript:
---
%s
---`,
		analysis.SpeakerSalesperson, analysis.SpeakerProspect,
		analysis.MinEngagement, analysis.MaxEngagement, analysis.TimeStepPercent,
		analysis.CoachingItemCount, analysis.CoachingItemCount,
		transcript)
}

func resultSchema() jsonschema.Definition {
	return jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"diarizedTranscript": {
				Type:        jsonschema.Array,
				Description: "The transcript of the conversation, with each part attributed to 'Salesperson' or 'Prospect'.",
				Items: &jsonschema.Definition{
					Type: jsonschema.Object,
					Properties: map[string]jsonschema.Definition{
						"speaker": {
							Type:        jsonschema.String,
							Description: "The speaker, either 'Salesperson' or 'Prospect'.",
							Enum:        []string{analysis.SpeakerSalesperson, analysis.SpeakerProspect},
						},
						"text": {Type: jsonschema.String, Description: "The spoken text."},
					},
					Required: []string{"speaker", "text"},
				},
			},
			"sentimentAnalysis": {
				Type:        jsonschema.Array,
				Description: "The prospect's engagement level throughout the call, one data point for every 10% of the call's duration.",
				Items: &jsonschema.Definition{
					Type: jsonschema.Object,
					Properties: map[string]jsonschema.Definition{
						"time":       {Type: jsonschema.Integer, Description: "The point in the call as a percentage (0, 10, 20, ..., 100)."},
						"engagement": {Type: jsonschema.Number, Description: "The prospect's engagement score from 1 (low) to 10 (high)."},
					},
					Required: []string{"time", "engagement"},
				},
			},
			"coachingCard": {
				Type:        jsonschema.Object,
				Description: "Actionable feedback for the salesperson.",
				Properties: map[string]jsonschema.Definition{
					"whatWentWell": {
						Type:        jsonschema.Array,
						Description: "Exactly 3 things the salesperson did well.",
						Items:       &jsonschema.Definition{Type: jsonschema.String},
					},
					"missedOpportunities": {
						Type:        jsonschema.Array,
						Description: "Exactly 3 areas for improvement or missed opportunities.",
						Items:       &jsonschema.Definition{Type: jsonschema.String},
					},
				},
				Required: []string{"whatWentWell", "missedOpportunities"},
			},
		},
		Required: []string{"diarizedTranscript", "sentimentAnalysis", "coachingCard"},
	}
}
