package actionable

import (
	"fmt"

	"voice-notes-go/internal/aggregator"
)

// Advisory is an operator hint derived from recent job history.
type Advisory struct {
	Insight string `json:"insight"`
	Action  string `json:"action"`
	Impact  string `json:"impact"`
}

const (
	minSample        = 5
	errorThreshold   = 0.25
	retryThreshold   = 0.35
	restartThreshold = 0.2
)

// Generate returns the most pressing advisory; rules are checked worst first.
func Generate(st aggregator.Stats) Advisory {
	if st.Finished() < minSample {
		return Advisory{
			Insight: fmt.Sprintf("Only %d finished jobs", st.Finished()),
			Action:  "Monitor and collect more data",
			Impact:  "Low immediate intervention",
		}
	}
	if st.ErrorRate >= errorThreshold {
		insight := fmt.Sprintf("%.0f%% of jobs failed", st.ErrorRate*100)
		if len(st.TopErrors) > 0 {
			insight += fmt.Sprintf(", most often %q", st.TopErrors[0].Message)
		}
		return Advisory{
			Insight: insight,
			Action:  "Check transcoder input formats and provider endpoints in settings",
			Impact:  "Users lose notes until fixed",
		}
	}
	if st.PipelineRetryRate >= restartThreshold {
		return Advisory{
			Insight: fmt.Sprintf("%.0f%% of jobs needed a full pipeline restart", st.PipelineRetryRate*100),
			Action:  "Verify settings storage and category lookups are reachable",
			Impact:  "Doubles transcoding work per affected job",
		}
	}
	if st.STTRetryRate >= retryThreshold {
		return Advisory{
			Insight: fmt.Sprintf("Transcription retried in %.0f%% of jobs", st.STTRetryRate*100),
			Action:  "Check speech-to-text provider latency or raise its capacity",
			Impact:  "Slower notes and higher provider cost",
		}
	}
	if st.LLMRetryRate >= retryThreshold {
		return Advisory{
			Insight: fmt.Sprintf("Summarization retried in %.0f%% of jobs", st.LLMRetryRate*100),
			Action:  "Check the LLM gateway or switch the summary model",
			Impact:  "Slower notes and higher provider cost",
		}
	}
	return Advisory{
		Insight: "Pipeline healthy",
		Action:  "No action needed",
		Impact:  "None",
	}
}
