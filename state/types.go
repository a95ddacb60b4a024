package state

import (
	"time"

	"github.com/AnkitD0811/cloud-security-scanner/report"
	"github.com/AnkitD0811/cloud-security-scanner/types"
)

const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

type RunRecord struct {
	RunID         string          `json:"runId"`
	Provider      string          `json:"provider"`
	Status        string          `json:"status"`
	Input         string          `json:"input"`
	InputDigest   string          `json:"inputDigest,omitempty"`
	ReportName    string          `json:"reportName,omitempty"`
	ReportPath    string          `json:"reportPath,omitempty"`
	Iterations    int             `json:"iterations"`
	BoundExceeded bool            `json:"boundExceeded,omitempty"`
	Summary       *report.Summary `json:"summary,omitempty"`
	Degraded      []string        `json:"degraded,omitempty"`
	Usage         *types.Usage    `json:"usage,omitempty"`
	Error         string          `json:"error,omitempty"`
	CreatedAt     *time.Time      `json:"createdAt,omitempty"`
	UpdatedAt     *time.Time      `json:"updatedAt,omitempty"`
	CompletedAt   *time.Time      `json:"completedAt,omitempty"`
}

// StepRecord is the snapshot taken when the loop enters a state.
type StepRecord struct {
	RunID        string    `json:"runId"`
	Seq          int       `json:"seq"`
	State        string    `json:"state"`
	Iteration    int       `json:"iteration"`
	Messages     int       `json:"messages"`
	Observations int       `json:"observations"`
	Note         string    `json:"note,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}
