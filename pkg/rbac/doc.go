// Package rbac provides project-scoped role-based access control.
//
// # Overview
//
// Every project member holds exactly one Role. A static, exhaustive table maps
// each role to the Actions it may perform. The table is fixed at compile time
// and CanPerform is a pure lookup, so it is safe for concurrent use.
//
// # Roles
//
//	RoleAdmin        - project creator, every action
//	RoleProjectAdmin - everything except deleting the project and changing roles
//	RoleMember       - read access plus updating subtasks
//
// Admin is never assignable; it is granted only to the creator when the
// project is created.
//
// # Actions
//
//	view_project, update_project, delete_project
//	add_members, remove_members, update_role
//	add_task, update_task, delete_task, view_tasks
//	add_subtask, update_subtask, delete_subtask
//	add_attachments, delete_attachments
//	add_notes, update_notes, delete_notes, view_notes
//
// Creating a project is not gated by the table since no role exists yet.
//
// # Middleware
//
// Authorizer.Require wraps project-scoped routes:
//
//	authz := rbac.NewAuthorizer(projectRegistry, logger, metrics, recorder)
//	r.Handle("/projects/{projectID}/tasks", authz.Require(rbac.ActionAddTask)(h)).Methods("POST")
//
// Decisions, in order:
//
//  1. No authenticated identity: 401
//  2. Malformed {projectID}: 400
//  3. Caller is not a member: 403 "access denied"
//  4. Caller's role lacks the action: 403 "access denied"
//
// Non-members and under-privileged members receive identical responses.
// Role lookup failures are logged and return 500. On success the role and
// project ID are available through RoleFromContext and ProjectIDFromContext.
package rbac
