package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/emiliopalmerini/elabgate/internal/config"
	"github.com/emiliopalmerini/elabgate/internal/domain"
	"github.com/emiliopalmerini/elabgate/internal/elab"
	"github.com/emiliopalmerini/elabgate/internal/logging"
	"github.com/emiliopalmerini/elabgate/internal/relay"
	"github.com/emiliopalmerini/elabgate/internal/results"
	"github.com/emiliopalmerini/elabgate/internal/shared/middleware"
)

//go:embed static/*
var staticFiles embed.FS

// Relay is the set of relay operations exposed over HTTP.
type Relay interface {
	TestConnection(ctx context.Context) (bool, error)
	EnsureEnvironment(ctx context.Context) (elab.Environment, error)
	Login(ctx context.Context, name, password string) (*domain.Account, error)
	Account(ctx context.Context, id int64) (*domain.Account, error)
	CreateAccount(ctx context.Context, actor *domain.Account, name, password, role string) (*domain.Account, error)
	RegisterPatient(ctx context.Context, name string) (*domain.Patient, error)
	ListPatients(ctx context.Context) ([]*domain.Patient, error)
	CreateExperiment(ctx context.Context, actor *domain.Account, req relay.CreateExperimentRequest) (*relay.CreatedExperiment, error)
	Experiment(ctx context.Context, actor *domain.Account, expID int64) (*domain.Experiment, error)
	ListExperiments(ctx context.Context, actor *domain.Account, limit int) ([]*domain.Experiment, error)
	ListExperimentStatuses(ctx context.Context, actor *domain.Account, limit int) ([]relay.ExperimentStatus, error)
	GetStatus(ctx context.Context, actor *domain.Account, expID int64) (elab.Status, error)
	ExportPDF(ctx context.Context, actor *domain.Account, expID int64, changelog bool) ([]byte, error)
	ExperimentFields(ctx context.Context, actor *domain.Account, expID int64) (*relay.ExperimentBody, error)
	UpdateResults(ctx context.Context, actor *domain.Account, expID int64, values map[string]string) (results.FillReport, error)
	SetStatus(ctx context.Context, actor *domain.Account, expID int64, status any) error
	TemplateFields(ctx context.Context, sampleType string) ([]results.Field, error)
}

type Server struct {
	bind        string
	apiToken    string
	elabURL     string
	sampleTypes []string
	relay       Relay
	logger      *slog.Logger
	router      *http.ServeMux
	sessions    *sessions
}

func NewServer(cfg *config.Config, r Relay, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("web: config is required")
	}
	if r == nil {
		return nil, errors.New("web: relay is required")
	}
	if err := cfg.ValidateServer(); err != nil {
		return nil, err
	}
	sess, err := newSessions(cfg.Server.SessionSecret, false)
	if err != nil {
		return nil, err
	}
	logger = logging.NewComponentLogger(logger, "web")
	if cfg.Server.SessionSecret == "" {
		logger.Warn("no session secret configured; sessions end when the server restarts")
	}

	sampleTypes := make([]string, 0, len(cfg.Elab.SampleTemplates))
	for st := range cfg.Elab.SampleTemplates {
		sampleTypes = append(sampleTypes, st)
	}
	sort.Strings(sampleTypes)

	s := &Server{
		bind:        cfg.Server.Bind,
		apiToken:    cfg.Server.APIToken,
		elabURL:     cfg.Elab.URL,
		sampleTypes: sampleTypes,
		relay:       r,
		logger:      logger,
		router:      http.NewServeMux(),
		sessions:    sess,
	}
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(fmt.Sprintf("failed to create static filesystem: %v", err))
	}
	s.router.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))))

	s.router.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// Pages
	s.router.HandleFunc("GET /login", s.handleLoginPage)
	s.router.HandleFunc("POST /login", s.handleLogin)
	s.router.HandleFunc("POST /logout", s.handleLogout)
	s.router.HandleFunc("GET /{$}", s.page(s.handleHome))
	s.router.HandleFunc("POST /ui/connection", s.page(s.handleUIConnection))
	s.router.HandleFunc("POST /ui/environment", s.page(s.handleUIEnvironment))
	s.router.HandleFunc("GET /ui/template-fields", s.page(s.handleUITemplateFields))
	s.router.HandleFunc("GET /patients", s.page(s.handlePatients))
	s.router.HandleFunc("POST /patients", s.page(s.handleRegisterPatient))
	s.router.HandleFunc("GET /experiments", s.page(s.handleExperiments))
	s.router.HandleFunc("POST /experiments", s.page(s.handleCreateExperiment))
	s.router.HandleFunc("GET /experiments/{id}", s.page(s.handleExperimentDetail))
	s.router.HandleFunc("POST /experiments/{id}/status", s.page(s.handleSetStatus))
	s.router.HandleFunc("POST /experiments/{id}/results", s.page(s.handleSaveResults))
	s.router.HandleFunc("GET /experiments/{id}/pdf", s.page(s.handleDownloadPDF))

	// JSON API
	s.router.Handle("POST /api/connection/test", s.api(s.handleAPIConnection))
	s.router.Handle("POST /api/login", s.api(s.handleAPILogin))
	s.router.Handle("POST /api/environment", s.api(s.withActor(s.handleAPIEnvironment)))
	s.router.Handle("POST /api/accounts", s.api(s.withActor(s.handleAPICreateAccount)))
	s.router.Handle("GET /api/patients", s.api(s.withActor(s.handleAPIListPatients)))
	s.router.Handle("POST /api/patients", s.api(s.withActor(s.handleAPIRegisterPatient)))
	s.router.Handle("GET /api/experiments", s.api(s.withActor(s.handleAPIListExperiments)))
	s.router.Handle("POST /api/experiments", s.api(s.withActor(s.handleAPICreateExperiment)))
	s.router.Handle("GET /api/experiments/{id}/status", s.api(s.withActor(s.handleAPIStatus)))
	s.router.Handle("POST /api/experiments/{id}/status", s.api(s.withActor(s.handleAPISetStatus)))
	s.router.Handle("GET /api/experiments/{id}/pdf", s.api(s.withActor(s.handleAPIExportPDF)))
	s.router.Handle("GET /api/experiments/{id}/body", s.api(s.withActor(s.handleAPIBody)))
	s.router.Handle("PATCH /api/experiments/{id}/results", s.api(s.withActor(s.handleAPIUpdateResults)))
	s.router.Handle("GET /api/templates", s.api(s.withActor(s.handleAPITemplateFields)))
}

// Handler returns the router wrapped with the request middlewares.
func (s *Server) Handler() http.Handler {
	return middleware.Chain(s.router,
		middleware.RequestID,
		middleware.Logging(s.logger),
		middleware.HTMX,
	)
}

func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.bind, err)
	}
	return s.Serve(ctx, listener)
}

// Serve answers requests on listener until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      2 * time.Minute, // PDF exports can be slow
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("server listening", logging.String("address", "http://"+listener.Addr().String()))

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("server shutdown error", logging.Error(err))
		}
	}()

	err := server.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

type actorHandler func(w http.ResponseWriter, r *http.Request, actor *domain.Account)

// api guards a JSON route with the optional bearer token.
func (s *Server) api(h http.HandlerFunc) http.Handler {
	denied := func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, fmt.Errorf("%w: invalid or missing bearer token", relay.ErrUnauthorized))
	}
	return middleware.BearerAuth(s.apiToken, denied)(h)
}

// withActor resolves the account from the signed X-Account-Token header
// issued by POST /api/login.
func (s *Server) withActor(h actorHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimSpace(r.Header.Get(accountHeader))
		if token == "" {
			s.writeError(w, r, fmt.Errorf("%w: %s header is required", relay.ErrUnauthorized, accountHeader))
			return
		}
		id, ok := s.sessions.decode(token)
		if !ok {
			s.writeError(w, r, fmt.Errorf("%w: invalid or expired %s", relay.ErrUnauthorized, accountHeader))
			return
		}
		actor, err := s.relay.Account(r.Context(), id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		ctx := logging.WithAccountID(r.Context(), actor.ID)
		h(w, r.WithContext(ctx), actor)
	}
}

const accountHeader = "X-Account-Token"

// page requires a signed-in browser session.
func (s *Server) page(h actorHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := s.sessions.accountID(r)
		var actor *domain.Account
		if ok {
			var err error
			actor, err = s.relay.Account(r.Context(), id)
			if err != nil {
				if relay.ErrorKind(err) != "unauthorized" {
					s.logger.ErrorContext(r.Context(), "session lookup failed", logging.Error(err))
				}
				actor = nil
			}
		}
		if actor == nil {
			s.sessions.clear(w)
			middleware.Redirect(w, r, "/login", http.StatusUnauthorized)
			return
		}
		ctx := logging.WithAccountID(r.Context(), actor.ID)
		h(w, r.WithContext(ctx), actor)
	}
}
