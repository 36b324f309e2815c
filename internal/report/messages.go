package report

const (
	sectionDialogue   = "== Dialogue =="
	sectionEngagement = "== Prospect engagement =="
	sectionWentWell   = "== What went well =="
	sectionMissed     = "== Missed opportunities =="

	MessageRecordingStarted = "Recording. Press ENTER to stop."
	MessageRecordingStopped = "Recording stopped."
	MessageEmptyTranscript  = "Nothing was transcribed; skipping analysis."
	MessageAnalyzing        = "Analyzing transcript..."
	MessageStartFailed      = "Could not start recording: %v"
	MessageAnalysisFailed   = "Analysis failed: %v"
)
