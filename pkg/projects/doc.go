// Package projects manages projects and their memberships.
//
// # Overview
//
// A project is created together with an admin membership for its creator in
// a single transaction. Every other membership is granted by email with one
// of the assignable roles (project_admin or member). The service is also the
// membership registry consulted by the rbac authorizer through RoleOf.
//
// # Invariants
//
//   - (user, project) memberships are unique
//   - (name, created_by) is unique per creator; violations surface as
//     apierr.KindDuplicateName
//   - A project always keeps at least one admin; removing or demoting the
//     last one fails with apierr.KindConflict
//   - Deleting a project removes its tasks, subtasks, attachments, notes and
//     memberships in one transaction
//
// # Usage Example
//
//	svc := projects.NewPostgresService(db)
//	p, err := svc.CreateProjectWithOwner(ctx, userID, "Apollo", "moonshot")
//	if err != nil {
//		return err
//	}
//	member, err := svc.AddMember(ctx, p.ID, "bob@example.com", rbac.RoleMember)
package projects
