package rbac

import (
	"context"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/taskhub/pkg/apierr"
	"github.com/platinummonkey/taskhub/pkg/audit"
	"github.com/platinummonkey/taskhub/pkg/auth"
	"github.com/platinummonkey/taskhub/pkg/contextkeys"
	"github.com/platinummonkey/taskhub/pkg/httputil"
	"github.com/platinummonkey/taskhub/pkg/middleware"
	"github.com/platinummonkey/taskhub/pkg/observability"
)

// ProjectIDVar is the route variable holding the project ID
const ProjectIDVar = "projectID"

// accessDeniedMessage is shared by non-members and under-privileged members
// so the response does not reveal membership.
const accessDeniedMessage = "access denied"

// RoleResolver looks up a user's role in a project. ok is false when the
// user is not a member.
type RoleResolver interface {
	RoleOf(ctx context.Context, userID, projectID int64) (role Role, ok bool, err error)
}

// Authorizer gates project-scoped routes on the caller's role
type Authorizer struct {
	resolver RoleResolver
	logger   *logrus.Logger
	metrics  *observability.Metrics
	audit    *audit.Recorder
}

// NewAuthorizer creates an authorizer. metrics and recorder may be nil.
func NewAuthorizer(resolver RoleResolver, logger *logrus.Logger, metrics *observability.Metrics, recorder *audit.Recorder) *Authorizer {
	return &Authorizer{
		resolver: resolver,
		logger:   logger,
		metrics:  metrics,
		audit:    recorder,
	}
}

// Authorize decides whether identity may perform action on the project
// named by rawProjectID. It returns the caller's role and the parsed project
// ID on success.
func (a *Authorizer) Authorize(ctx context.Context, identity *auth.Identity, rawProjectID string, action Action) (Role, int64, error) {
	if identity == nil {
		return "", 0, apierr.Unauthorized("Unauthorized request")
	}

	projectID, err := strconv.ParseInt(rawProjectID, 10, 64)
	if err != nil || projectID <= 0 {
		return "", 0, apierr.BadRequest("invalid project ID")
	}

	role, ok, err := a.resolver.RoleOf(ctx, identity.UserID, projectID)
	if err != nil {
		return "", projectID, apierr.Internal("failed to resolve project role", err)
	}
	if !ok || !CanPerform(role, action) {
		return role, projectID, apierr.Forbidden(accessDeniedMessage)
	}
	return role, projectID, nil
}

// Require creates middleware that admits only project members whose role
// grants action. The project is taken from the {projectID} route variable.
func (a *Authorizer) Require(action Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			identity := middleware.GetIdentity(r)
			rawProjectID, _ := httputil.ParsePathString(r, ProjectIDVar)

			role, projectID, err := a.Authorize(ctx, identity, rawProjectID, action)
			if err != nil {
				a.reject(r, identity, projectID, action, err)
				httputil.WriteError(w, err)
				return
			}

			a.metrics.RecordAuthz(string(action), "allow")
			ctx = contextkeys.WithProjectRole(ctx, role)
			ctx = contextkeys.WithProjectID(ctx, projectID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (a *Authorizer) reject(r *http.Request, identity *auth.Identity, projectID int64, action Action, err error) {
	ctx := r.Context()

	switch apierr.KindOf(err) {
	case apierr.KindForbidden:
		a.metrics.RecordAuthz(string(action), "deny")
		event := audit.NewEvent(ctx, audit.EventTypeAccessDenied, audit.EventStatusDenied).
			WithUser(identity.UserID).
			WithProject(projectID).
			WithResource(audit.ResourceTypeProject, strconv.FormatInt(projectID, 10))
		event.IPAddress = httputil.ClientIP(r)
		event.Message = "access denied"
		event.Metadata["action"] = string(action)
		a.audit.Record(ctx, event)
	case apierr.KindInternal:
		a.metrics.RecordAuthz(string(action), "error")
		if a.logger != nil {
			a.logger.WithError(err).WithFields(logrus.Fields{
				"action":     action,
				"project_id": projectID,
				"request_id": contextkeys.GetRequestID(ctx),
			}).Error("authorization failed")
		}
	default:
		a.metrics.RecordAuthz(string(action), "reject")
	}
}

// RoleFromContext returns the caller's project role set by Require
func RoleFromContext(ctx context.Context) (Role, bool) {
	role, ok := ctx.Value(contextkeys.ProjectRoleKey).(Role)
	return role, ok
}

// ProjectIDFromContext returns the project ID authorized by Require
func ProjectIDFromContext(ctx context.Context) (int64, bool) {
	return contextkeys.GetProjectID(ctx)
}
