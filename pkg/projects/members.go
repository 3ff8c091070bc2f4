package projects

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/platinummonkey/taskhub/pkg/apierr"
	"github.com/platinummonkey/taskhub/pkg/rbac"
	"github.com/platinummonkey/taskhub/pkg/storage/postgres"
)

const memberColumns = `pm.id, pm.project_id, pm.user_id, pm.role, pm.created_at, pm.updated_at,
	u.username, u.email, u.full_name, u.avatar_url`

func scanMember(row interface{ Scan(...any) error }) (*Member, error) {
	m := &Member{}
	var fullName, avatarURL sql.NullString
	if err := row.Scan(
		&m.ID, &m.ProjectID, &m.UserID, &m.Role, &m.CreatedAt, &m.UpdatedAt,
		&m.Username, &m.Email, &fullName, &avatarURL,
	); err != nil {
		return nil, err
	}
	m.FullName = fullName.String
	m.AvatarURL = avatarURL.String
	return m, nil
}

// ListMembers retrieves all members of a project
func (s *PostgresService) ListMembers(ctx context.Context, projectID int64) ([]*Member, error) {
	query := `
		SELECT ` + memberColumns + `
		FROM project_members pm
		JOIN users u ON u.id = pm.user_id
		WHERE pm.project_id = $1
		ORDER BY pm.created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	members := []*Member{}
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	return members, nil
}

// MemberByEmail finds the member of projectID with the given email
func (s *PostgresService) MemberByEmail(ctx context.Context, projectID int64, email string) (*Member, error) {
	query := `
		SELECT ` + memberColumns + `
		FROM project_members pm
		JOIN users u ON u.id = pm.user_id
		WHERE pm.project_id = $1 AND u.email = $2
	`
	m, err := scanMember(s.db.QueryRowContext(ctx, query, projectID, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierr.NotFound("User is not a member of this project")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return m, nil
}

// AddMember adds the user with the given email to a project
func (s *PostgresService) AddMember(ctx context.Context, projectID int64, email string, role rbac.Role) (*Member, error) {
	if role == "" {
		role = rbac.RoleMember
	}
	if !role.Assignable() {
		return nil, apierr.Validation("role", "Role must be either 'project_admin' or 'member'")
	}

	var person Person
	var userID int64
	var fullName, avatarURL sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, email, full_name, avatar_url FROM users WHERE email = $1`, email,
	).Scan(&userID, &person.Username, &person.Email, &fullName, &avatarURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierr.NotFound("User not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	person.FullName = fullName.String
	person.AvatarURL = avatarURL.String

	query := `
		INSERT INTO project_members (project_id, user_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (project_id, user_id) DO NOTHING
		RETURNING id, project_id, user_id, role, created_at, updated_at
	`
	m := &Member{Person: person}
	err = s.db.QueryRowContext(ctx, query, projectID, userID, role).Scan(
		&m.ID, &m.ProjectID, &m.UserID, &m.Role, &m.CreatedAt, &m.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierr.Conflict("Member already added to the project")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to add member: %w", err)
	}
	return m, nil
}

// lockMembership locks the project row, serializing membership changes for
// the project, and loads the membership memberID
func lockMembership(ctx context.Context, tx postgres.DBTX, projectID, memberID int64) (*Membership, error) {
	var locked int64
	err := tx.QueryRowContext(ctx, `SELECT id FROM projects WHERE id = $1 FOR UPDATE`, projectID).Scan(&locked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierr.NotFound("Project not found")
	}
	if err != nil {
		return nil, err
	}

	m := &Membership{}
	err = tx.QueryRowContext(ctx, `
		SELECT id, project_id, user_id, role, created_at, updated_at
		FROM project_members
		WHERE id = $1 AND project_id = $2`,
		memberID, projectID,
	).Scan(&m.ID, &m.ProjectID, &m.UserID, &m.Role, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierr.NotFound("Member not found")
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ensureOtherAdmin rejects changes that would leave the project without an admin
func ensureOtherAdmin(ctx context.Context, tx postgres.DBTX, projectID int64) error {
	var admins int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM project_members WHERE project_id = $1 AND role = $2`,
		projectID, rbac.RoleAdmin,
	).Scan(&admins)
	if err != nil {
		return err
	}
	if admins <= 1 {
		return apierr.Conflict("Project must keep at least one admin")
	}
	return nil
}

// RemoveMember removes a membership from a project
func (s *PostgresService) RemoveMember(ctx context.Context, projectID, memberID int64) error {
	err := postgres.WithTx(ctx, s.db, nil, func(ctx context.Context, tx postgres.DBTX) error {
		m, err := lockMembership(ctx, tx, projectID, memberID)
		if err != nil {
			return err
		}
		if m.Role == rbac.RoleAdmin {
			if err := ensureOtherAdmin(ctx, tx, projectID); err != nil {
				return err
			}
		}
		_, err = tx.ExecContext(ctx,
			`DELETE FROM project_members WHERE id = $1 AND project_id = $2`, memberID, projectID)
		return err
	})
	if err != nil {
		if apierr.KindOf(err) != apierr.KindInternal {
			return err
		}
		return fmt.Errorf("failed to remove member: %w", err)
	}
	return nil
}

// ChangeRole sets the role of a membership
func (s *PostgresService) ChangeRole(ctx context.Context, projectID, memberID int64, role rbac.Role) (*Membership, error) {
	if !role.Assignable() {
		return nil, apierr.Validation("role", "Role must be either 'project_admin' or 'member'")
	}

	var updated *Membership
	err := postgres.WithTx(ctx, s.db, nil, func(ctx context.Context, tx postgres.DBTX) error {
		m, err := lockMembership(ctx, tx, projectID, memberID)
		if err != nil {
			return err
		}
		if m.Role == role {
			return apierr.NoOp(fmt.Sprintf("User already has the role: %s", role))
		}
		if m.Role == rbac.RoleAdmin {
			if err := ensureOtherAdmin(ctx, tx, projectID); err != nil {
				return err
			}
		}

		err = tx.QueryRowContext(ctx, `
			UPDATE project_members SET role = $3, updated_at = NOW()
			WHERE id = $1 AND project_id = $2
			RETURNING updated_at`,
			memberID, projectID, role,
		).Scan(&m.UpdatedAt)
		if err != nil {
			return err
		}
		m.Role = role
		updated = m
		return nil
	})
	if err != nil {
		if apierr.KindOf(err) != apierr.KindInternal {
			return nil, err
		}
		return nil, fmt.Errorf("failed to change member role: %w", err)
	}
	return updated, nil
}

// RoleOf returns the role userID holds in projectID. The boolean is false
// when the user is not a member.
func (s *PostgresService) RoleOf(ctx context.Context, userID, projectID int64) (rbac.Role, bool, error) {
	var role rbac.Role
	err := s.db.QueryRowContext(ctx,
		`SELECT role FROM project_members WHERE user_id = $1 AND project_id = $2`,
		userID, projectID,
	).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve project role: %w", err)
	}
	return role, true, nil
}
