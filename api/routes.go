package api

import (
	"fmt"

	"github.com/gorilla/mux"

	"github.com/garnizeh/intake/internal/audit"
	"github.com/garnizeh/intake/internal/config"
	"github.com/garnizeh/intake/internal/lifecycle"
	"github.com/garnizeh/intake/internal/storage"
	"github.com/garnizeh/intake/pkg/repository"
)

// Deps carries what the handlers need beyond configuration.
type Deps struct {
	Repos   *repository.Repository
	Service *lifecycle.Service
	Sink    audit.Sink
	Store   storage.Store
	Policy  *Policy
}

func SetupRoutes(cfg *config.Config, version, buildTime string, deps Deps) (*mux.Router, error) {
	if deps.Repos == nil || deps.Service == nil || deps.Store == nil {
		return nil, fmt.Errorf("routes: repository, service and store are required")
	}
	pol := deps.Policy
	if pol == nil {
		var err error
		if pol, err = NewPolicy(nil); err != nil {
			return nil, err
		}
	}

	r := mux.NewRouter()

	// Middleware chain
	r.Use(LoggingMiddleware)
	r.Use(CORSMiddleware)
	r.Use(RecoveryMiddleware)

	systemHandler := &SystemHandler{}
	authHandler := NewAuthHandler(deps.Repos.Reviewer, cfg.JWTSecret, cfg.TokenDuration)
	projectsHandler, err := NewProjectsHandler(deps.Repos, deps.Service)
	if err != nil {
		return nil, err
	}
	categoriesHandler := NewCategoriesHandler(deps.Repos.Category, deps.Sink)
	attachmentsHandler := NewAttachmentsHandler(deps.Repos, deps.Store, deps.Sink, cfg.Storage.Download)
	commentsHandler := NewCommentsHandler(deps.Repos.Comment, deps.Service)
	logsHandler := NewLogsHandler(deps.Repos.Log)

	// Open endpoints
	r.HandleFunc("/version", systemHandler.VersionHandler(version, buildTime)).Methods("GET")
	r.HandleFunc("/health", systemHandler.HealthHandler).Methods("GET")

	// API v1: every route is checked against the policy table
	v1 := r.PathPrefix("/v1").Subrouter()
	v1.Use(AuthMiddlewareWithSecret(cfg.JWTSecret))

	v1.HandleFunc("/auth/signin", pol.Require(ActAuthSignin, authHandler.Signin)).Methods("POST")

	v1.HandleFunc("/projects", pol.Require(ActProjectsCreate, projectsHandler.Create)).Methods("POST")
	v1.HandleFunc("/projects", pol.Require(ActProjectsList, projectsHandler.List)).Methods("GET")
	v1.HandleFunc("/projects/my-projects", pol.Require(ActProjectsMine, projectsHandler.Mine)).Methods("GET")
	v1.HandleFunc("/projects/{id:[0-9]+}", pol.Require(ActProjectsGet, projectsHandler.Get)).Methods("GET")
	v1.HandleFunc("/projects/{id:[0-9]+}/accept",
		pol.Require(ActProjectsAccept, projectsHandler.Transition(lifecycle.ActionAccept))).Methods("POST")
	v1.HandleFunc("/projects/{id:[0-9]+}/reject",
		pol.Require(ActProjectsReject, projectsHandler.Transition(lifecycle.ActionReject))).Methods("POST")
	v1.HandleFunc("/projects/{id:[0-9]+}/start",
		pol.Require(ActProjectsStart, projectsHandler.Transition(lifecycle.ActionStart))).Methods("POST")
	v1.HandleFunc("/projects/{id:[0-9]+}/completed",
		pol.Require(ActProjectsComplete, projectsHandler.Transition(lifecycle.ActionComplete))).Methods("POST")

	v1.HandleFunc("/categories", pol.Require(ActCategoriesList, categoriesHandler.List)).Methods("GET")
	v1.HandleFunc("/categories", pol.Require(ActCategoriesCreate, categoriesHandler.Create)).Methods("POST")
	v1.HandleFunc("/categories/{id:[0-9]+}", pol.Require(ActCategoriesDelete, categoriesHandler.Delete)).Methods("DELETE")

	v1.HandleFunc("/attachments", pol.Require(ActAttachmentsList, attachmentsHandler.List)).Methods("GET")
	v1.HandleFunc("/attachments", pol.Require(ActAttachmentsCreate, attachmentsHandler.Create)).Methods("POST")
	v1.HandleFunc("/attachments/{id:[0-9]+}", pol.Require(ActAttachmentsGet, attachmentsHandler.Get)).Methods("GET")
	v1.HandleFunc("/attachments/{id:[0-9]+}", pol.Require(ActAttachmentsDelete, attachmentsHandler.Delete)).Methods("DELETE")
	v1.HandleFunc("/attachments/{id:[0-9]+}/download",
		pol.Require(ActAttachmentsDownload, attachmentsHandler.Download)).Methods("GET")

	v1.HandleFunc("/comments", pol.Require(ActCommentsList, commentsHandler.List)).Methods("GET")
	v1.HandleFunc("/comments", pol.Require(ActCommentsCreate, commentsHandler.Create)).Methods("POST")
	v1.HandleFunc("/comments/{id:[0-9]+}", pol.Require(ActCommentsGet, commentsHandler.Get)).Methods("GET")

	v1.HandleFunc("/logs", pol.Require(ActLogsList, logsHandler.List)).Methods("GET")

	return r, nil
}
