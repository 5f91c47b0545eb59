package model

import "time"

// Stage is the pipeline phase of an upload task. The backend reports the
// authoritative stage; until it does, the tracker derives one from the fake
// progress curve.
type Stage string

const (
	StageQueued    Stage = "queued"
	StageOCR       Stage = "ocr"
	StageIndex     Stage = "index"
	StageExtract   Stage = "extract"
	StageCMSUpload Stage = "cms_upload"
	StageReady     Stage = "ready"
	StageDone      Stage = "done"
	StageError     Stage = "error"
)

// Terminal reports whether a task in this stage will never change again.
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageError
}

// UploadTask is one in-flight file processing job.
type UploadTask struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Stage    Stage     `json:"stage"`
	Progress float64   `json:"progress"` // always in [0,1]
	Done     bool      `json:"done"`
	StartAt  time.Time `json:"start_at"`
	CMSLink  string    `json:"cms_link,omitempty"`
	UUID     string    `json:"uuid,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// TaskUpdate is a partial update merged into a tracked task. Nil fields are
// left untouched.
type TaskUpdate struct {
	Stage    *Stage   `json:"stage,omitempty"`
	Progress *float64 `json:"progress,omitempty"`
	Name     *string  `json:"name,omitempty"`
	CMSLink  *string  `json:"cms_link,omitempty"`
	UUID     *string  `json:"uuid,omitempty"`
	Error    *string  `json:"error,omitempty"`
}
