package aggregator

import (
	"sort"

	"voice-notes-go/internal/types"
)

// Stats summarizes a set of job snapshots.
type Stats struct {
	Total               int                     `json:"total"`
	ByStatus            map[types.JobStatus]int `json:"by_status"`
	ByLanguage          map[string]int          `json:"by_language"`
	STTRetryRate        float64                 `json:"stt_retry_rate"`
	LLMRetryRate        float64                 `json:"llm_retry_rate"`
	PipelineRetryRate   float64                 `json:"pipeline_retry_rate"`
	ErrorRate           float64                 `json:"error_rate"`
	MeanDurationSeconds float64                 `json:"mean_duration_seconds"`
	TopErrors           []ErrorCount            `json:"top_errors,omitempty"`
}

type ErrorCount struct {
	Message string `json:"message"`
	Count   int    `json:"count"`
}

const topErrorLimit = 3

// Aggregate computes rates over finished jobs; queued and processing jobs only
// count toward Total and ByStatus.
func Aggregate(snaps []types.JobSnapshot) Stats {
	st := Stats{
		Total:      len(snaps),
		ByStatus:   map[types.JobStatus]int{},
		ByLanguage: map[string]int{},
	}
	var (
		finished, sttRetried, llmRetried, restarted, failed int
		durSum                                              float64
		durN                                                int
	)
	errs := map[string]int{}
	for _, s := range snaps {
		st.ByStatus[s.Status]++
		lang := s.Language
		if lang == "" {
			lang = "auto"
		}
		st.ByLanguage[lang]++
		if !s.Status.Terminal() {
			continue
		}
		finished++
		if s.STTRetries > 0 {
			sttRetried++
		}
		if s.LLMRetries > 0 {
			llmRetried++
		}
		if s.FullRetries > 0 {
			restarted++
		}
		if s.Status == types.StatusError {
			failed++
			if s.Error != "" {
				errs[s.Error]++
			}
		}
		if !s.StartedAt.IsZero() && s.FinishedAt.After(s.StartedAt) {
			durSum += s.FinishedAt.Sub(s.StartedAt).Seconds()
			durN++
		}
	}
	if finished > 0 {
		st.STTRetryRate = float64(sttRetried) / float64(finished)
		st.LLMRetryRate = float64(llmRetried) / float64(finished)
		st.PipelineRetryRate = float64(restarted) / float64(finished)
		st.ErrorRate = float64(failed) / float64(finished)
	}
	if durN > 0 {
		st.MeanDurationSeconds = durSum / float64(durN)
	}

	for msg, c := range errs {
		st.TopErrors = append(st.TopErrors, ErrorCount{Message: msg, Count: c})
	}
	sort.Slice(st.TopErrors, func(i, j int) bool {
		if st.TopErrors[i].Count != st.TopErrors[j].Count {
			return st.TopErrors[i].Count > st.TopErrors[j].Count
		}
		return st.TopErrors[i].Message < st.TopErrors[j].Message
	})
	if len(st.TopErrors) > topErrorLimit {
		st.TopErrors = st.TopErrors[:topErrorLimit]
	}
	return st
}

// Finished is the number of jobs in a terminal status.
func (s Stats) Finished() int {
	return s.ByStatus[types.StatusCompleted] + s.ByStatus[types.StatusError]
}
