package api

import "time"

// SubmitRequest is the payload for creating a task.
type SubmitRequest struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
	// Start submits and begins the pipeline in one call.
	Start bool `json:"start,omitempty"`
}

// ArtifactView describes an artifact without necessarily carrying its content.
type ArtifactView struct {
	Name      string `json:"name"`
	Path      string `json:"path,omitempty"`
	SizeBytes int64  `json:"size_bytes"`
	Content   string `json:"content,omitempty"`
}

// StageView is the wire form of one stage record.
type StageView struct {
	Name       string     `json:"name"`
	Status     string     `json:"status"`
	Attempt    int        `json:"attempt"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Report     string     `json:"report,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// TaskView is the wire form of a task snapshot.
type TaskView struct {
	ID           string        `json:"id"`
	Status       string        `json:"status"`
	Input        ArtifactView  `json:"input"`
	Stages       []StageView   `json:"stages"`
	Output       *ArtifactView `json:"output,omitempty"`
	QualityScore int           `json:"quality_score,omitempty"`
	Error        string        `json:"error,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// TaskListResponse wraps task listings.
type TaskListResponse struct {
	Tasks []TaskView `json:"tasks"`
}

// StageHealthView is the wire form of a stage health check.
type StageHealthView struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// StatusResponse summarizes daemon health.
type StatusResponse struct {
	Healthy    bool              `json:"healthy"`
	Stages     []StageHealthView `json:"stages"`
	TaskCounts map[string]int    `json:"task_counts"`
}

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}
