package lifecycle

import (
	"fmt"
	"slices"

	"github.com/garnizeh/intake/pkg/models"
)

// Guard selects how strictly accept and reject are guarded.
type Guard string

const (
	// GuardStrict allows accept and reject only from NEW.
	GuardStrict Guard = "strict"
	// GuardPermissive also allows re-deciding an ACCEPTED or REJECTED project.
	GuardPermissive Guard = "permissive"
)

func (g Guard) Valid() bool { return g == GuardStrict || g == GuardPermissive }

// Action names a lifecycle transition.
type Action string

const (
	ActionAccept   Action = "accept"
	ActionReject   Action = "reject"
	ActionStart    Action = "start"
	ActionComplete Action = "complete"
)

type transition struct {
	to    models.Status
	from  []models.Status
	field string // reviewer column stamped, empty for none
	past  string // accepted, rejected, ...
	title string // Accepted, Rejected, ...
	audit string // audit category label
}

var table = map[Action]transition{
	ActionAccept: {
		to: models.StatusAccepted, from: []models.Status{models.StatusNew},
		field: "accepted_by", past: "accepted", title: "Accepted", audit: "Accept project",
	},
	ActionReject: {
		to: models.StatusRejected, from: []models.Status{models.StatusNew},
		past: "rejected", title: "Rejected", audit: "Reject project",
	},
	ActionStart: {
		to: models.StatusInProgress, from: []models.Status{models.StatusAccepted},
		field: "started_by", past: "started", title: "Started", audit: "Start project",
	},
	ActionComplete: {
		to: models.StatusCompleted, from: []models.Status{models.StatusInProgress},
		field: "completed_by", past: "completed", title: "Completed", audit: "Complete project",
	},
}

// Sources returns the statuses action may start from under guard g.
func Sources(a Action, g Guard) []models.Status {
	t, ok := table[a]
	if !ok {
		return nil
	}
	from := slices.Clone(t.from)
	if g == GuardPermissive && (a == ActionAccept || a == ActionReject) {
		from = append(from, models.StatusAccepted, models.StatusRejected)
	}
	return from
}

// Allowed reports whether action may run on a project in status s.
func Allowed(a Action, s models.Status, g Guard) bool {
	return slices.Contains(Sources(a, g), s)
}

// Target returns the status action moves to.
func Target(a Action) (models.Status, error) {
	t, ok := table[a]
	if !ok {
		return "", fmt.Errorf("unknown lifecycle action %q", a)
	}
	return t.to, nil
}

func (t transition) defaultComment(title string) string {
	return fmt.Sprintf("Project '%s' was %s.", title, t.past)
}

func (t transition) subject(title string) string {
	return fmt.Sprintf("Project '%s' %s", title, t.title)
}

// Detail is the short confirmation returned to clients ("Project accepted").
func Detail(a Action) string {
	t, ok := table[a]
	if !ok {
		return ""
	}
	return "Project " + t.past
}
