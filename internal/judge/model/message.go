package model

// Verdict message statuses.
const (
	VerdictCompleted = "completed"
	VerdictRejected  = "rejected"
)

// VerdictMessage is the queue payload published for every consumed submission.
type VerdictMessage struct {
	SubmissionID string           `json:"submission_id"`
	Status       string           `json:"status"`
	Verdict      *VerdictResponse `json:"verdict,omitempty"`
	ErrorCode    int              `json:"error_code,omitempty"`
	Error        string           `json:"error,omitempty"`
}
