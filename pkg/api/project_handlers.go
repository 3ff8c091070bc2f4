package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/taskhub/pkg/apierr"
	"github.com/platinummonkey/taskhub/pkg/async"
	"github.com/platinummonkey/taskhub/pkg/audit"
	"github.com/platinummonkey/taskhub/pkg/httputil"
	"github.com/platinummonkey/taskhub/pkg/projects"
	"github.com/platinummonkey/taskhub/pkg/rbac"
	"github.com/platinummonkey/taskhub/pkg/validation"
)

// registerProjectRoutes registers project and membership routes. r already
// requires authentication.
func (s *Server) registerProjectRoutes(r *mux.Router) {
	r.HandleFunc("", s.createProject).Methods(http.MethodPost)
	r.HandleFunc("", s.listProjects).Methods(http.MethodGet)

	s.gate(r, http.MethodGet, "/{projectID}", rbac.ActionViewProject, s.getProject)
	s.gate(r, http.MethodPut, "/{projectID}", rbac.ActionUpdateProject, s.updateProject)
	s.gate(r, http.MethodDelete, "/{projectID}", rbac.ActionDeleteProject, s.deleteProject)

	s.gate(r, http.MethodGet, "/{projectID}/members", rbac.ActionViewProject, s.listMembers)
	s.gate(r, http.MethodPost, "/{projectID}/members", rbac.ActionAddMembers, s.addMember)
	s.gate(r, http.MethodDelete, "/{projectID}/members/{memberID}", rbac.ActionRemoveMembers, s.removeMember)
	s.gate(r, http.MethodPut, "/{projectID}/members/{memberID}/role", rbac.ActionUpdateRole, s.changeRole)
}

// createProject handles POST /api/v1/projects. Any authenticated user may
// create a project and becomes its admin.
func (s *Server) createProject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := s.caller(r)

	var req projects.CreateProjectRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.validator.Name("name", req.Name, "Project name is required"); err != nil {
		s.fail(w, r, err)
		return
	}

	project, err := s.projects.CreateProjectWithOwner(ctx, identity.UserID,
		strings.TrimSpace(req.Name), strings.TrimSpace(req.Description))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	s.record(r, audit.NewEvent(ctx, audit.EventTypeProjectCreate, audit.EventStatusSuccess).
		WithUser(identity.UserID).
		WithProject(project.ID).
		WithResource(audit.ResourceTypeProject, strconv.FormatInt(project.ID, 10)))
	httputil.WriteCreated(w, "Project created successfully", project)
}

// listProjects handles GET /api/v1/projects
func (s *Server) listProjects(w http.ResponseWriter, r *http.Request) {
	list, err := s.projects.ListProjects(r.Context(), s.caller(r).UserID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteOK(w, "Projects fetched successfully", list)
}

// getProject handles GET /api/v1/projects/{projectID}
func (s *Server) getProject(w http.ResponseWriter, r *http.Request) {
	project, err := s.projects.GetProject(r.Context(), projectID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteOK(w, "Project fetched successfully", project)
}

// updateProject handles PUT /api/v1/projects/{projectID}
func (s *Server) updateProject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pid := projectID(r)

	var req projects.UpdateProjectRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Name == nil && req.Description == nil {
		s.fail(w, r, apierr.BadRequest("At least one field is required to update"))
		return
	}
	if req.Name != nil {
		if err := s.validator.Name("name", *req.Name, "Project name is required"); err != nil {
			s.fail(w, r, err)
			return
		}
		name := strings.TrimSpace(*req.Name)
		req.Name = &name
	}

	project, err := s.projects.UpdateProject(ctx, pid, &req)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	s.record(r, audit.NewEvent(ctx, audit.EventTypeProjectUpdate, audit.EventStatusSuccess).
		WithUser(s.caller(r).UserID).
		WithProject(pid))
	httputil.WriteOK(w, "Project updated successfully", project)
}

// deleteProject handles DELETE /api/v1/projects/{projectID}. Stored
// attachments are released after the rows are gone.
func (s *Server) deleteProject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pid := projectID(r)

	keys, err := s.projects.DeleteProject(ctx, pid)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	if len(keys) > 0 {
		async.SafeGo(ctx, s.logger, 5*time.Minute, "release project attachments", func(ctx context.Context) error {
			s.tasks.Release(ctx, keys)
			return nil
		})
	}

	s.record(r, audit.NewEvent(ctx, audit.EventTypeProjectDelete, audit.EventStatusSuccess).
		WithUser(s.caller(r).UserID).
		WithProject(pid).
		WithResource(audit.ResourceTypeProject, strconv.FormatInt(pid, 10)))
	httputil.WriteOK(w, "Project deleted successfully", nil)
}

// listMembers handles GET /api/v1/projects/{projectID}/members
func (s *Server) listMembers(w http.ResponseWriter, r *http.Request) {
	members, err := s.projects.ListMembers(r.Context(), projectID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteOK(w, "Project members fetched successfully", members)
}

// addMember handles POST /api/v1/projects/{projectID}/members
func (s *Server) addMember(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pid := projectID(r)

	var req projects.AddMemberRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.validator.Email("email", req.Email); err != nil {
		s.fail(w, r, err)
		return
	}
	role, err := s.validator.MemberRole(req.Role)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	member, err := s.projects.AddMember(ctx, pid, validation.NormalizeEmail(req.Email), role)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	event := audit.NewEvent(ctx, audit.EventTypeMemberAdd, audit.EventStatusSuccess).
		WithUser(s.caller(r).UserID).
		WithProject(pid).
		WithResource(audit.ResourceTypeMember, strconv.FormatInt(member.ID, 10))
	event.Metadata["role"] = string(member.Role)
	s.record(r, event)
	httputil.WriteCreated(w, "Member added successfully", member)
}

// removeMember handles DELETE /api/v1/projects/{projectID}/members/{memberID}
func (s *Server) removeMember(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pid := projectID(r)
	memberID, err := httputil.ParsePathInt64(r, "memberID")
	if err != nil {
		s.fail(w, r, err)
		return
	}

	if err := s.projects.RemoveMember(ctx, pid, memberID); err != nil {
		s.fail(w, r, err)
		return
	}

	s.record(r, audit.NewEvent(ctx, audit.EventTypeMemberRemove, audit.EventStatusSuccess).
		WithUser(s.caller(r).UserID).
		WithProject(pid).
		WithResource(audit.ResourceTypeMember, strconv.FormatInt(memberID, 10)))
	httputil.WriteOK(w, "Member removed successfully", nil)
}

// changeRole handles PUT /api/v1/projects/{projectID}/members/{memberID}/role
func (s *Server) changeRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pid := projectID(r)
	memberID, err := httputil.ParsePathInt64(r, "memberID")
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var req projects.UpdateRoleRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.validator.Required("role", req.Role, "Role is required"); err != nil {
		s.fail(w, r, err)
		return
	}
	role, err := s.validator.MemberRole(req.Role)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	membership, err := s.projects.ChangeRole(ctx, pid, memberID, role)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	event := audit.NewEvent(ctx, audit.EventTypeRoleChange, audit.EventStatusSuccess).
		WithUser(s.caller(r).UserID).
		WithProject(pid).
		WithResource(audit.ResourceTypeMember, strconv.FormatInt(memberID, 10))
	event.Metadata["role"] = string(role)
	s.record(r, event)
	httputil.WriteOK(w, "Member role updated successfully", membership)
}
