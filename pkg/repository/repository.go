package repository

import (
	"context"

	"github.com/garnizeh/intake/pkg/models"
)

// Repository interfaces for domain entities. These are the public contracts
// consumers should depend on; concrete implementations live under internal/.
// Single-row reads return (nil, nil) when the row does not exist.

type CategoryRepo interface {
	CreateCategory(ctx context.Context, name string) (int64, error)
	GetCategory(ctx context.Context, id int64) (*models.Category, error)
	ListCategories(ctx context.Context) ([]models.Category, error)
	DeleteCategory(ctx context.Context, id int64) error
}

type ProjectRepo interface {
	CreateProject(ctx context.Context, p *models.Project) (int64, error)
	GetProject(ctx context.Context, id int64) (*models.Project, error)
	ListProjects(ctx context.Context, f ProjectFilter) ([]models.Project, error)
	CountProjects(ctx context.Context, f ProjectFilter) (int64, error)
	// TransitionStatus moves a project to `to` only if its current status is
	// one of `from`. It reports false when no row matched.
	TransitionStatus(ctx context.Context, id int64, from []models.Status, to models.Status, actor Actor) (bool, error)
}

type AttachmentRepo interface {
	CreateAttachment(ctx context.Context, a *models.Attachment) (int64, error)
	GetAttachment(ctx context.Context, id int64) (*models.Attachment, error)
	ListAttachments(ctx context.Context, projectID int64) ([]models.Attachment, error)
	DeleteAttachment(ctx context.Context, id int64) error
}

type CommentRepo interface {
	CreateComment(ctx context.Context, c *models.Comment) (int64, error)
	GetComment(ctx context.Context, id int64) (*models.Comment, error)
	ListComments(ctx context.Context, projectID int64) ([]models.Comment, error)
}

type LogRepo interface {
	CreateLog(ctx context.Context, l *models.ApplicationLog) (int64, error)
	ListLogs(ctx context.Context, f LogFilter) ([]models.ApplicationLog, error)
	CountLogs(ctx context.Context, f LogFilter) (int64, error)
}

type ReviewerRepo interface {
	CreateReviewer(ctx context.Context, r *models.Reviewer) (int64, error)
	GetReviewer(ctx context.Context, id int64) (*models.Reviewer, error)
	GetReviewerByUsername(ctx context.Context, username string) (*models.Reviewer, error)
}

// Actor identifies the reviewer performing a transition. Field selects which
// reviewer column is stamped (accepted_by, started_by, completed_by); empty
// means none.
type Actor struct {
	ReviewerID int64
	Field      string
}

// Repository groups the domain repositories for callers that need several.
type Repository struct {
	Category   CategoryRepo
	Project    ProjectRepo
	Attachment AttachmentRepo
	Comment    CommentRepo
	Log        LogRepo
	Reviewer   ReviewerRepo
}
