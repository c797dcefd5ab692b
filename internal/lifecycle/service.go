// Package lifecycle implements the project state machine and the side effects
// that accompany every transition.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/garnizeh/intake/internal/audit"
	"github.com/garnizeh/intake/internal/errs"
	"github.com/garnizeh/intake/internal/notify"
	"github.com/garnizeh/intake/pkg/models"
	"github.com/garnizeh/intake/pkg/repository"
)

const (
	maxTitleLen  = 200
	maxSenderLen = 150

	// DefaultAuthor signs transition comments made without a reviewer name.
	DefaultAuthor = "Admin"
	// AnonymousAuthor signs direct comments made without an author.
	AnonymousAuthor = "Anonymous"
)

var maxBudget = decimal.RequireFromString("9999999999.99")

// Actor is the reviewer performing an operation. The zero value is anonymous.
type Actor struct {
	ReviewerID int64
	Username   string
}

func (a Actor) name(fallback string) string {
	if a.Username != "" {
		return a.Username
	}
	return fallback
}

// Outcome reports the side effects of an operation.
type Outcome struct {
	Notification notify.Delivery
}

// TransitionResult is returned by a successful transition.
type TransitionResult struct {
	Project      *models.Project
	Status       models.Status
	CommentText  string
	Notification notify.Delivery
}

// CreateInput carries a new proposal.
type CreateInput struct {
	Title        string
	Description  string
	Budget       *decimal.Decimal
	Deadline     models.Date
	StartDate    *models.Date
	EndDate      *models.Date
	SenderName   string
	ContactEmail string
	CategoryID   *int64
	Priority     models.Priority
}

// CommentInput carries a direct comment on a project.
type CommentInput struct {
	ProjectID  int64
	Text       string
	AuthorName string
}

type Service struct {
	repos    *repository.Repository
	sink     audit.Sink
	notifier notify.Dispatcher
	guard    Guard
	now      func() time.Time
	logger   *slog.Logger
}

// Option tunes a Service.
type Option func(*Service)

// WithGuard selects the accept/reject guard policy.
func WithGuard(g Guard) Option {
	return func(s *Service) {
		if g.Valid() {
			s.guard = g
		}
	}
}

// WithClock replaces time.Now, used to decide what "today" is.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewService(repos *repository.Repository, sink audit.Sink, notifier notify.Dispatcher, opts ...Option) *Service {
	s := &Service{
		repos:    repos,
		sink:     sink,
		notifier: notifier,
		guard:    GuardStrict,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Guard returns the active guard policy.
func (s *Service) Guard() Guard { return s.guard }

// Create validates and stores a new proposal, then confirms it to the sender.
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.Project, Outcome, error) {
	if err := s.validate(ctx, &in); err != nil {
		return nil, Outcome{}, err
	}

	body, err := notify.RenderTemplate(notify.ConfirmationTemplate, in)
	if err != nil {
		return nil, Outcome{}, fmt.Errorf("render confirmation: %w", err)
	}

	p := &models.Project{
		Title:        in.Title,
		Description:  in.Description,
		Budget:       in.Budget,
		Deadline:     in.Deadline,
		StartDate:    in.StartDate,
		EndDate:      in.EndDate,
		SenderName:   in.SenderName,
		ContactEmail: in.ContactEmail,
		CategoryID:   in.CategoryID,
		Status:       models.StatusNew,
		Priority:     in.Priority,
	}
	if _, err := s.repos.Project.CreateProject(ctx, p); err != nil {
		return nil, Outcome{}, fmt.Errorf("create project: %w", err)
	}

	created, err := s.repos.Project.GetProject(ctx, p.ID)
	if err != nil {
		return nil, Outcome{}, fmt.Errorf("reload project: %w", err)
	}
	if created != nil {
		p = created
	}

	delivery := s.notifier.Dispatch(ctx, notify.Message{
		To:       []string{p.ContactEmail},
		Subject:  "Thank you for your project proposal",
		Body:     body,
		Category: "Create project",
	})

	s.record(ctx, audit.Entry{
		Category: "Create project",
		Message:  fmt.Sprintf("Project '%s' created by %s.", p.Title, p.SenderName),
	})
	return p, Outcome{Notification: delivery}, nil
}

func (s *Service) validate(ctx context.Context, in *CreateInput) error {
	ve := &errs.ValidationError{}

	in.Title = strings.TrimSpace(in.Title)
	switch {
	case in.Title == "":
		ve.Add("title", "this field is required")
	case len([]rune(in.Title)) > maxTitleLen:
		ve.Add("title", fmt.Sprintf("ensure this field has no more than %d characters", maxTitleLen))
	}

	if strings.TrimSpace(in.Description) == "" {
		ve.Add("description", "this field is required")
	}

	in.SenderName = strings.TrimSpace(in.SenderName)
	switch {
	case in.SenderName == "":
		ve.Add("sender_name", "this field is required")
	case len([]rune(in.SenderName)) > maxSenderLen:
		ve.Add("sender_name", fmt.Sprintf("ensure this field has no more than %d characters", maxSenderLen))
	}

	in.ContactEmail = strings.TrimSpace(in.ContactEmail)
	if addr, err := mail.ParseAddress(in.ContactEmail); err != nil || addr.Address != in.ContactEmail {
		ve.Add("contact_email", "enter a valid email address")
	}

	if in.Budget != nil {
		b := *in.Budget
		switch {
		case b.IsNegative():
			ve.Add("budget", "ensure this value is greater than or equal to 0")
		case !b.Round(2).Equal(b):
			ve.Add("budget", "ensure that there are no more than 2 decimal places")
		case b.GreaterThan(maxBudget):
			ve.Add("budget", "ensure that there are no more than 12 digits in total")
		}
	}

	today := models.NewDate(s.now())
	switch {
	case in.Deadline.IsZero():
		ve.Add("deadline", "this field is required")
	case in.Deadline.Before(today):
		ve.Add("deadline", "deadline cannot be in the past")
	}
	if in.StartDate != nil && in.EndDate != nil && in.EndDate.Before(*in.StartDate) {
		ve.Add("end_date", "end date cannot be before start date")
	}

	if in.Priority == "" {
		in.Priority = models.PriorityMedium
	} else if !in.Priority.Valid() {
		ve.Add("priority", fmt.Sprintf("%q is not a valid choice", in.Priority))
	}

	if in.CategoryID != nil {
		c, err := s.repos.Category.GetCategory(ctx, *in.CategoryID)
		if err != nil {
			return fmt.Errorf("look up category: %w", err)
		}
		if c == nil {
			ve.Add("category", fmt.Sprintf("invalid pk %d, object does not exist", *in.CategoryID))
		}
	}

	return ve.OrNil()
}

func (s *Service) Accept(ctx context.Context, id int64, actor Actor, comment string) (*TransitionResult, error) {
	return s.Transition(ctx, ActionAccept, id, actor, comment)
}

func (s *Service) Reject(ctx context.Context, id int64, actor Actor, comment string) (*TransitionResult, error) {
	return s.Transition(ctx, ActionReject, id, actor, comment)
}

func (s *Service) Start(ctx context.Context, id int64, actor Actor, comment string) (*TransitionResult, error) {
	return s.Transition(ctx, ActionStart, id, actor, comment)
}

func (s *Service) Complete(ctx context.Context, id int64, actor Actor, comment string) (*TransitionResult, error) {
	return s.Transition(ctx, ActionComplete, id, actor, comment)
}

// Transition runs action on project id. An illegal move returns
// errs.ErrInvalidTransition and changes nothing.
func (s *Service) Transition(ctx context.Context, action Action, id int64, actor Actor, comment string) (*TransitionResult, error) {
	t, ok := table[action]
	if !ok {
		return nil, fmt.Errorf("unknown lifecycle action %q", action)
	}

	p, err := s.repos.Project.GetProject(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get project %d: %w", id, err)
	}
	if p == nil {
		return nil, errs.NotFound("project", id)
	}

	from := Sources(action, s.guard)
	if !Allowed(action, p.Status, s.guard) {
		return nil, errs.Transition(string(action), string(p.Status))
	}

	ra := repository.Actor{}
	if t.field != "" && actor.ReviewerID != 0 {
		ra = repository.Actor{ReviewerID: actor.ReviewerID, Field: t.field}
	}
	moved, err := s.repos.Project.TransitionStatus(ctx, id, from, t.to, ra)
	if err != nil {
		return nil, err
	}
	if !moved {
		// lost a race with a concurrent transition
		current := p.Status
		if fresh, gerr := s.repos.Project.GetProject(ctx, id); gerr == nil && fresh != nil {
			current = fresh.Status
		}
		return nil, errs.Transition(string(action), string(current))
	}

	text := strings.TrimSpace(comment)
	if text == "" {
		text = t.defaultComment(p.Title)
	}
	c := &models.Comment{ProjectID: id, CommentText: text, AuthorName: actor.name(DefaultAuthor)}
	if _, err := s.repos.Comment.CreateComment(ctx, c); err != nil {
		// the status change already committed; leave a trace of the half-done step
		s.record(ctx, audit.Entry{
			Level:    models.LevelError,
			Category: t.audit,
			Message:  fmt.Sprintf("Project '%s' %s by %s, but its comment was not saved: %v", p.Title, t.past, actor.name(DefaultAuthor), err),
			Actor:    actor.Username,
		})
		return nil, fmt.Errorf("record transition comment: %w", err)
	}

	if fresh, err := s.repos.Project.GetProject(ctx, id); err == nil && fresh != nil {
		p = fresh
	} else {
		p.Status = t.to
	}

	delivery := s.notifier.Dispatch(ctx, notify.Message{
		To:       []string{p.ContactEmail},
		Subject:  t.subject(p.Title),
		Body:     text,
		Category: t.audit,
	})

	s.record(ctx, audit.Entry{
		Category: t.audit,
		Message:  fmt.Sprintf("Project '%s' %s by %s.", p.Title, t.past, actor.name(DefaultAuthor)),
		Actor:    actor.Username,
	})

	s.logger.InfoContext(ctx, "project transition", "project_id", id, "action", action, "status", t.to, "notification", delivery)
	return &TransitionResult{Project: p, Status: t.to, CommentText: text, Notification: delivery}, nil
}

// Comment appends a comment to a project and notifies its sender.
func (s *Service) Comment(ctx context.Context, in CommentInput, actor Actor) (*models.Comment, Outcome, error) {
	ve := &errs.ValidationError{}
	in.Text = strings.TrimSpace(in.Text)
	if in.Text == "" {
		ve.Add("comment_text", "this field is required")
	}
	if in.ProjectID == 0 {
		ve.Add("project", "this field is required")
	}
	if err := ve.OrNil(); err != nil {
		return nil, Outcome{}, err
	}

	p, err := s.repos.Project.GetProject(ctx, in.ProjectID)
	if err != nil {
		return nil, Outcome{}, fmt.Errorf("get project %d: %w", in.ProjectID, err)
	}
	if p == nil {
		return nil, Outcome{}, errs.Invalid("project", fmt.Sprintf("invalid pk %d, object does not exist", in.ProjectID))
	}

	author := strings.TrimSpace(in.AuthorName)
	if author == "" {
		author = AnonymousAuthor
	}
	c := &models.Comment{ProjectID: p.ID, CommentText: in.Text, AuthorName: author}
	if _, err := s.repos.Comment.CreateComment(ctx, c); err != nil {
		return nil, Outcome{}, fmt.Errorf("create comment: %w", err)
	}

	delivery := s.notifier.Dispatch(ctx, notify.Message{
		To:       []string{p.ContactEmail},
		Subject:  "New Comment",
		Body:     c.CommentText,
		Category: "Create comment to project",
	})
	s.record(ctx, audit.Entry{
		Category: "Create comment to project",
		Message:  fmt.Sprintf("Comment to project '%s' created by %s.", p.Title, author),
		Actor:    actor.Username,
	})
	return c, Outcome{Notification: delivery}, nil
}

func (s *Service) record(ctx context.Context, e audit.Entry) {
	if s.sink == nil {
		return
	}
	if err := s.sink.Record(ctx, e); err != nil {
		s.logger.ErrorContext(ctx, "audit", "category", e.Category, "err", err)
	}
}
