package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Domain models matching the database schema in db/migrations.

type Status string

const (
	StatusNew        Status = "NEW"
	StatusAccepted   Status = "ACCEPTED"
	StatusRejected   Status = "REJECTED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusAccepted, StatusRejected, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

// Rank orders priorities from LOW (1) to URGENT (4). Unknown values rank 0.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 1
	case PriorityMedium:
		return 2
	case PriorityHigh:
		return 3
	case PriorityUrgent:
		return 4
	}
	return 0
}

func (p Priority) Valid() bool { return p.Rank() > 0 }

type Category struct {
	ID   int64  `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

type Project struct {
	ID           int64            `json:"id" db:"id"`
	Title        string           `json:"title" db:"title"`
	Description  string           `json:"description" db:"description"`
	Budget       *decimal.Decimal `json:"budget" db:"budget_cents"`
	Deadline     Date             `json:"deadline" db:"deadline"`
	StartDate    *Date            `json:"start_date" db:"start_date"`
	EndDate      *Date            `json:"end_date" db:"end_date"`
	SenderName   string           `json:"sender_name" db:"sender_name"`
	ContactEmail string           `json:"contact_email" db:"contact_email"`
	CategoryID   *int64           `json:"-" db:"category_id"`
	Category     *Category        `json:"category"`
	Status       Status           `json:"status" db:"status"`
	Priority     Priority         `json:"priority" db:"priority"`
	AcceptedBy   *int64           `json:"accepted_by" db:"accepted_by"`
	StartedBy    *int64           `json:"started_by" db:"started_by"`
	CompletedBy  *int64           `json:"completed_by" db:"completed_by"`
	CreatedAt    time.Time        `json:"created_at" db:"created"`
	UpdatedAt    time.Time        `json:"updated_at" db:"updated"`

	Attachments []Attachment `json:"attachments,omitempty"`
	Comments    []Comment    `json:"comments,omitempty"`
}

type Attachment struct {
	ID          int64     `json:"id" db:"id"`
	ProjectID   int64     `json:"project" db:"project_id"`
	StorageKey  string    `json:"-" db:"storage_key"`
	Filename    string    `json:"filename" db:"filename"`
	ContentType string    `json:"content_type" db:"content_type"`
	Size        int64     `json:"size" db:"size"`
	UploadedAt  time.Time `json:"uploaded_at" db:"uploaded"`
}

type Comment struct {
	ID          int64     `json:"id" db:"id"`
	ProjectID   int64     `json:"project" db:"project_id"`
	CommentText string    `json:"comment_text" db:"comment_text"`
	AuthorName  string    `json:"author_name" db:"author_name"`
	CreatedAt   time.Time `json:"created_at" db:"created"`
}

type LogLevel string

const (
	LevelDebug   LogLevel = "DEBUG"
	LevelInfo    LogLevel = "INFO"
	LevelWarning LogLevel = "WARNING"
	LevelError   LogLevel = "ERROR"
)

type ApplicationLog struct {
	ID           int64     `json:"id" db:"id"`
	Level        LogLevel  `json:"level" db:"level"`
	LoggerName   string    `json:"logger_name" db:"logger_name"`
	Message      string    `json:"message" db:"message"`
	InteractedBy *string   `json:"interacted_by" db:"interacted_by"`
	CreatedAt    time.Time `json:"created_at" db:"created"`
}

type Reviewer struct {
	ID           int64     `json:"id" db:"id"`
	Username     string    `json:"username" db:"username"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	IsSuperuser  bool      `json:"is_superuser" db:"is_superuser"`
	CreatedAt    time.Time `json:"created_at" db:"created"`
}
