package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/taskhub/pkg/apierr"
	"github.com/platinummonkey/taskhub/pkg/audit"
	"github.com/platinummonkey/taskhub/pkg/auth"
	"github.com/platinummonkey/taskhub/pkg/config"
	"github.com/platinummonkey/taskhub/pkg/contextkeys"
	"github.com/platinummonkey/taskhub/pkg/httputil"
	"github.com/platinummonkey/taskhub/pkg/middleware"
	"github.com/platinummonkey/taskhub/pkg/notes"
	"github.com/platinummonkey/taskhub/pkg/observability"
	"github.com/platinummonkey/taskhub/pkg/projects"
	"github.com/platinummonkey/taskhub/pkg/rbac"
	"github.com/platinummonkey/taskhub/pkg/storage"
	"github.com/platinummonkey/taskhub/pkg/tasks"
	"github.com/platinummonkey/taskhub/pkg/validation"
)

// Notifier sends account emails. Implementations must not block the caller
// on delivery.
type Notifier interface {
	SendVerification(ctx context.Context, email, username, token string)
	SendPasswordReset(ctx context.Context, email, username, token string)
}

type nopNotifier struct{}

func (nopNotifier) SendVerification(context.Context, string, string, string)  {}
func (nopNotifier) SendPasswordReset(context.Context, string, string, string) {}

// TaskService manages tasks, subtasks and attachments of a project
type TaskService interface {
	ListTasks(ctx context.Context, projectID int64) ([]*tasks.Task, error)
	GetTask(ctx context.Context, projectID, taskID int64) (*tasks.Task, error)
	CreateTask(ctx context.Context, projectID int64, in tasks.CreateTaskInput, uploads []tasks.Upload) (*tasks.Task, error)
	UpdateTask(ctx context.Context, projectID, taskID int64, in tasks.UpdateTaskInput) (*tasks.Task, error)
	DeleteTask(ctx context.Context, projectID, taskID int64) error
	AddAttachments(ctx context.Context, projectID, taskID int64, uploads []tasks.Upload) ([]*tasks.Attachment, error)
	DeleteAttachment(ctx context.Context, projectID, attachmentID int64) error
	CreateSubtask(ctx context.Context, projectID, taskID int64, title string, createdBy int64) (*tasks.Subtask, error)
	UpdateSubtask(ctx context.Context, projectID, subtaskID int64, in tasks.UpdateSubtaskInput) (*tasks.Subtask, error)
	DeleteSubtask(ctx context.Context, projectID, subtaskID int64) error
	Release(ctx context.Context, keys []string)
}

// Dependencies are the collaborators of the API server. cmd/taskhub builds
// them once at startup.
type Dependencies struct {
	Config      *config.Config
	Logger      *logrus.Logger
	Metrics     *observability.Metrics
	Credentials *auth.CredentialService
	Projects    projects.Service
	Tasks       TaskService
	Notes       notes.Service
	Uploader    storage.Uploader
	Mailer      Notifier
	Audit       *audit.Recorder

	// LoginLimiter and EmailLimiter default to in-process token buckets
	// when rate limiting is enabled
	LoginLimiter middleware.Limiter
	EmailLimiter middleware.Limiter
}

// Server is the HTTP API
type Server struct {
	config      *config.Config
	logger      *logrus.Logger
	metrics     *observability.Metrics
	credentials *auth.CredentialService
	projects    projects.Service
	tasks       TaskService
	notes       notes.Service
	uploader    storage.Uploader
	mailer      Notifier
	audit       *audit.Recorder

	router     *mux.Router
	authn      *middleware.AuthMiddleware
	authz      *rbac.Authorizer
	validator  *validation.Validator
	cookies    httputil.CookieOptions
	loginLimit func(http.Handler) http.Handler
	emailLimit func(http.Handler) http.Handler
	handler    http.Handler
}

// NewServer creates the API server and registers its routes
func NewServer(deps Dependencies) *Server {
	if deps.Config == nil {
		deps.Config = config.Default()
	}
	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}
	if deps.Mailer == nil {
		deps.Mailer = nopNotifier{}
	}

	s := &Server{
		config:      deps.Config,
		logger:      deps.Logger,
		metrics:     deps.Metrics,
		credentials: deps.Credentials,
		projects:    deps.Projects,
		tasks:       deps.Tasks,
		notes:       deps.Notes,
		uploader:    deps.Uploader,
		mailer:      deps.Mailer,
		audit:       deps.Audit,
		router:      mux.NewRouter(),
		validator:   validation.NewValidator(nil),
		cookies: httputil.CookieOptions{
			MaxAge: deps.Config.Auth.CookieMaxAge,
			Domain: deps.Config.Auth.CookieDomain,
		},
	}

	s.authn = middleware.NewAuthMiddleware(deps.Credentials.Issuer(), deps.Logger)
	s.authz = rbac.NewAuthorizer(deps.Projects, deps.Logger, deps.Metrics, deps.Audit)

	loginConfig, emailConfig := LimitConfigs(deps.Config)
	s.loginLimit = s.limit(deps.LoginLimiter, loginConfig)
	s.emailLimit = s.limit(deps.EmailLimiter, emailConfig)

	proxies, err := httputil.ParseTrustedProxies(deps.Config.Server.TrustedProxies)
	if err != nil {
		// Validate rejects these; trust no proxy rather than a partial list
		s.logger.WithError(err).Error("ignoring trusted proxies")
		proxies = &httputil.TrustedProxies{}
	}

	s.setupRoutes()
	s.handler = httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.ClientIPMiddleware(proxies),
		httputil.RecoveryMiddleware(s.logger),
		httputil.LoggingMiddleware(s.logger),
		httputil.CORSMiddleware(s.config.Server.AllowedOrigins),
		httputil.MaxBytesMiddleware(s.bodyLimit()),
	)(s.router)
	return s
}

// LimitConfigs returns the login and email limiter settings from cfg
func LimitConfigs(cfg *config.Config) (login, email *middleware.RateLimitConfig) {
	login = middleware.LoginRateLimitConfig()
	email = middleware.EmailRateLimitConfig()
	if cfg.RateLimit.LoginRequests > 0 {
		login.RequestsPerWindow = cfg.RateLimit.LoginRequests
	}
	if cfg.RateLimit.LoginWindow > 0 {
		login.WindowDuration = cfg.RateLimit.LoginWindow
	}
	if cfg.RateLimit.EmailRequests > 0 {
		email.RequestsPerWindow = cfg.RateLimit.EmailRequests
	}
	if cfg.RateLimit.EmailWindow > 0 {
		email.WindowDuration = cfg.RateLimit.EmailWindow
	}
	return login, email
}

func (s *Server) limit(limiter middleware.Limiter, cfg *middleware.RateLimitConfig) func(http.Handler) http.Handler {
	if !s.config.RateLimit.Enabled {
		return func(next http.Handler) http.Handler { return next }
	}
	if limiter == nil {
		limiter = middleware.NewRateLimiter(cfg)
	}
	return middleware.NewRateLimitMiddleware(limiter, cfg, s.logger, s.metrics).Handler
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()
	if s.metrics != nil {
		api.Use(observability.HTTPMetricsMiddleware(s.metrics))
	}
	api.HandleFunc("/healthcheck", s.healthcheck).Methods(http.MethodGet)

	s.registerAuthRoutes(api.PathPrefix("/auth").Subrouter())

	projectRouter := api.PathPrefix("/projects").Subrouter()
	projectRouter.Use(s.authn.Handler)
	s.registerProjectRoutes(projectRouter)
	s.registerTaskRoutes(projectRouter)
	s.registerNoteRoutes(projectRouter)
}

// gate registers h behind the project authorizer for action
func (s *Server) gate(r *mux.Router, method, path string, action rbac.Action, h http.HandlerFunc) {
	r.Handle(path, s.authz.Require(action)(h)).Methods(method)
}

// Router returns the underlying router
func (s *Server) Router() *mux.Router {
	return s.router
}

// Handler returns the router wrapped in the server-wide middleware
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// bodyLimit caps any request body. Multipart uploads may carry a full set
// of attachments; each file is checked against MaxUploadBytes separately.
func (s *Server) bodyLimit() int64 {
	limits := s.config.Limits
	max := limits.MaxBodyBytes
	files := int64(limits.MaxAttachments)
	if files < 1 {
		files = 1
	}
	if upload := limits.MaxUploadBytes*files + 1<<20; upload > max {
		max = upload
	}
	return max
}

// healthcheck handles GET /api/v1/healthcheck
func (s *Server) healthcheck(w http.ResponseWriter, r *http.Request) {
	httputil.WriteOK(w, "Server is running", nil)
}

// fail renders err and logs the ones clients cannot act on
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch apierr.KindOf(err) {
	case apierr.KindInternal, apierr.KindUploadFailed:
		s.logger.WithError(err).WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"request_id": contextkeys.GetRequestID(r.Context()),
		}).Error("request failed")
	}
	httputil.WriteError(w, err)
}

// decode parses a JSON body, answering the request on failure
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	if err := httputil.ParseJSON(r, dest); err != nil {
		s.fail(w, r, err)
		return false
	}
	return true
}

// caller returns the authenticated identity. Routes using it sit behind the
// auth middleware.
func (s *Server) caller(r *http.Request) *auth.Identity {
	return middleware.GetIdentity(r)
}

// projectID returns the project authorized by the rbac middleware
func projectID(r *http.Request) int64 {
	id, _ := rbac.ProjectIDFromContext(r.Context())
	return id
}

func (s *Server) record(r *http.Request, event *audit.Event) {
	event.IPAddress = httputil.ClientIP(r)
	s.audit.Record(r.Context(), event)
}
