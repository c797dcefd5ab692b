package api

import (
	"fmt"
	"net/http"

	"github.com/garnizeh/intake/internal/errs"
)

// Capability is what a caller must hold to run an action.
type Capability string

const (
	CapPublic    Capability = "public"
	CapReviewer  Capability = "reviewer"
	CapSuperuser Capability = "superuser"
)

// Action keys. Each route is registered under exactly one key.
const (
	ActAuthSignin          = "auth.signin"
	ActProjectsCreate      = "projects.create"
	ActProjectsList        = "projects.list"
	ActProjectsMine        = "projects.mine"
	ActProjectsGet         = "projects.get"
	ActProjectsAccept      = "projects.accept"
	ActProjectsReject      = "projects.reject"
	ActProjectsStart       = "projects.start"
	ActProjectsComplete    = "projects.complete"
	ActCategoriesList      = "categories.list"
	ActCategoriesCreate    = "categories.create"
	ActCategoriesDelete    = "categories.delete"
	ActAttachmentsList     = "attachments.list"
	ActAttachmentsCreate   = "attachments.create"
	ActAttachmentsGet      = "attachments.get"
	ActAttachmentsDelete   = "attachments.delete"
	ActAttachmentsDownload = "attachments.download"
	ActCommentsList        = "comments.list"
	ActCommentsCreate      = "comments.create"
	ActCommentsGet         = "comments.get"
	ActLogsList            = "logs.list"
)

var defaultPolicy = map[string]Capability{
	ActAuthSignin:          CapPublic,
	ActProjectsCreate:      CapPublic,
	ActProjectsList:        CapReviewer,
	ActProjectsMine:        CapReviewer,
	ActProjectsGet:         CapReviewer,
	ActProjectsAccept:      CapReviewer,
	ActProjectsReject:      CapReviewer,
	ActProjectsStart:       CapReviewer,
	ActProjectsComplete:    CapReviewer,
	ActCategoriesList:      CapPublic,
	ActCategoriesCreate:    CapSuperuser,
	ActCategoriesDelete:    CapSuperuser,
	ActAttachmentsList:     CapReviewer,
	ActAttachmentsCreate:   CapReviewer,
	ActAttachmentsGet:      CapReviewer,
	ActAttachmentsDelete:   CapReviewer,
	ActAttachmentsDownload: CapReviewer,
	ActCommentsList:        CapReviewer,
	ActCommentsCreate:      CapReviewer,
	ActCommentsGet:         CapReviewer,
	ActLogsList:            CapReviewer,
}

// Policy maps action keys to the capability they require.
type Policy struct {
	caps map[string]Capability
}

// NewPolicy starts from the default table and applies overrides.
func NewPolicy(overrides map[string]string) (*Policy, error) {
	caps := make(map[string]Capability, len(defaultPolicy))
	for k, v := range defaultPolicy {
		caps[k] = v
	}
	for action, c := range overrides {
		if _, ok := caps[action]; !ok {
			return nil, fmt.Errorf("policy: unknown action %q", action)
		}
		switch cp := Capability(c); cp {
		case CapPublic, CapReviewer, CapSuperuser:
			caps[action] = cp
		default:
			return nil, fmt.Errorf("policy: unknown capability %q for %s", c, action)
		}
	}
	return &Policy{caps: caps}, nil
}

// Capability returns what action requires. Unknown actions require superuser.
func (p *Policy) Capability(action string) Capability {
	if c, ok := p.caps[action]; ok {
		return c
	}
	return CapSuperuser
}

// Allow checks caller against action.
func (p *Policy) Allow(action string, caller Principal) error {
	switch p.Capability(action) {
	case CapPublic:
		return nil
	case CapReviewer:
		if !caller.Authenticated() {
			return fmt.Errorf("%w: %s requires a signed-in reviewer", errs.ErrUnauthorized, action)
		}
		return nil
	default:
		if !caller.Authenticated() {
			return fmt.Errorf("%w: %s requires a signed-in reviewer", errs.ErrUnauthorized, action)
		}
		if !caller.Superuser {
			return fmt.Errorf("%w: %s requires a superuser", errs.ErrForbidden, action)
		}
		return nil
	}
}

// Require wraps h so it only runs when the caller may perform action.
func (p *Policy) Require(action string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := p.Allow(action, PrincipalFrom(r.Context())); err != nil {
			writeError(w, err)
			return
		}
		h(w, r)
	}
}
