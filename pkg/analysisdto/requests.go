package analysisdto

import (
	"time"

	"github.com/SKUDURRRRR/chessanalytics-sub001/internal/domain"
)

type AnalyzeRequest struct {
	UserID   string `json:"user_id"`
	Platform string `json:"platform"`
	Limit    int    `json:"limit,omitempty"`
}

type AnalyzeResponse struct {
	JobID string `json:"job_id"`
	// Existing is true when the request deduplicated onto a live job.
	Existing bool             `json:"existing"`
	Status   domain.JobStatus `json:"status"`
}

type JobStatusResponse struct {
	JobID     string           `json:"job_id"`
	UserID    string           `json:"user_id"`
	Platform  string           `json:"platform"`
	Status    domain.JobStatus `json:"status"`
	Total     int              `json:"total"`
	Completed int              `json:"completed"`
	Succeeded int              `json:"succeeded"`
	Failed    int              `json:"failed"`
	Error     string           `json:"error,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	StartedAt *time.Time       `json:"started_at,omitempty"`
	EndedAt   *time.Time       `json:"ended_at,omitempty"`
}

type GameResultResponse struct {
	Result *domain.GameAnalysisResult `json:"result"`
}

type TraitProfileResponse struct {
	UserID        string              `json:"user_id"`
	Platform      string              `json:"platform"`
	Profile       domain.TraitProfile `json:"profile"`
	GamesAnalyzed int                 `json:"games_analyzed"`
}

// JobStatusFromJob flattens the internal job record for transport.
func JobStatusFromJob(job domain.AnalysisJob) JobStatusResponse {
	resp := JobStatusResponse{
		JobID:     job.ID,
		UserID:    job.Subject.UserID,
		Platform:  job.Subject.Platform,
		Status:    job.Status,
		Total:     job.Total,
		Completed: job.Completed,
		Succeeded: job.Succeeded,
		Failed:    job.Failed,
		Error:     job.Error,
		CreatedAt: job.CreatedAt,
	}
	if !job.StartedAt.IsZero() {
		t := job.StartedAt
		resp.StartedAt = &t
	}
	if !job.EndedAt.IsZero() {
		t := job.EndedAt
		resp.EndedAt = &t
	}
	return resp
}
