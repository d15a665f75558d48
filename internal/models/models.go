package models

import (
	"time"

	"gorm.io/gorm"
)

// Job statuses. FOUND jobs come from the search stage; the rest follow the
// application through the mailbox watcher.
const (
	JobStatusFound     = "FOUND"
	JobStatusApplied   = "APPLIED"
	JobStatusInterview = "INTERVIEW"
	JobStatusOffer     = "OFFER"
	JobStatusRejected  = "REJECTED"
)

// Job event types.
const (
	EventDiscovered  = "DISCOVERED"
	EventApplied     = "APPLIED"
	EventEmailUpdate = "EMAIL_UPDATE"
)

// User holds the mailbox sync bookmark.
type User struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Email         string `gorm:"uniqueIndex;not null" json:"email"`
	LastHistoryID uint64 `json:"last_history_id"`
}

type Company struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Name string `gorm:"uniqueIndex;not null" json:"company_name"`

	// 'omitempty' prevents infinite loops when fetching a Job -> Company -> Jobs -> ...
	Jobs []Job `json:"jobs,omitempty"`
}

type Job struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	CompanyID uint `json:"company_id"`
	// Association: GORM needs Preload() to fill this
	Company Company `json:"company"`

	Title       string `gorm:"not null" json:"title"`
	Description string `gorm:"type:text" json:"description"`
	JobLink     string `gorm:"index" json:"job_link"`
	Location    string `json:"location"`
	SalaryRange string `json:"salary_range"`
	TechStack   string `json:"tech_stack"`
	MatchScore  int    `json:"match_score"`
	Status      string `gorm:"default:'APPLIED'" json:"status"`
	ResumeLink  string `json:"resume_link"`

	// Set when the job was found or applied to by a pipeline run.
	RunID         string `gorm:"index" json:"run_id,omitempty"`
	ApplicationID string `json:"application_id,omitempty"`
	Platform      string `json:"platform,omitempty"`
}

type JobEvent struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	JobID     uint      `json:"job_id"`
	EventType string    `json:"event_type"`
	Details   string    `gorm:"type:text" json:"details"`
}

type ProcessedEmail struct {
	ID        string `gorm:"primaryKey"`
	CreatedAt time.Time
}

// PipelineRun is the stored summary of one resume pipeline run.
type PipelineRun struct {
	ID        string    `gorm:"primaryKey" json:"run_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	DocumentPath string `json:"document_path"`
	JobKeywords  string `json:"job_keywords"`
	Location     string `json:"location"`
	State        string `gorm:"index" json:"state"`
	FailedStage  string `json:"failed_stage,omitempty"`
	ErrorKind    string `json:"error_kind,omitempty"`
	Error        string `gorm:"type:text" json:"error,omitempty"`

	Stages []StageRecord `gorm:"foreignKey:RunID" json:"stages,omitempty"`
}

// StageRecord stores one stage output of a run.
type StageRecord struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	RunID      string    `gorm:"index;not null" json:"run_id"`
	Position   int       `json:"position"`
	Name       string    `json:"name"`
	Status     string    `json:"status"`
	Method     string    `json:"method,omitempty"`
	Attempts   int       `json:"attempts"`
	DurationMS int64     `json:"duration_ms"`
	Output     string    `gorm:"type:text" json:"output"`
}

// All lists every model for migrations.
func All() []any {
	return []any{
		&Company{}, &Job{}, &JobEvent{}, &User{}, &ProcessedEmail{},
		&PipelineRun{}, &StageRecord{},
	}
}
