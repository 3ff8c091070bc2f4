package projects

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/platinummonkey/taskhub/pkg/apierr"
	"github.com/platinummonkey/taskhub/pkg/rbac"
	"github.com/platinummonkey/taskhub/pkg/storage/postgres"
)

// NameConstraint is the unique index on (name, created_by)
const NameConstraint = "projects_name_created_by_key"

const projectColumns = `id, name, description, created_by, created_at, updated_at`

// PostgresService implements the Service interface using PostgreSQL
type PostgresService struct {
	db *sql.DB
}

// NewPostgresService creates a new PostgresService
func NewPostgresService(db *sql.DB) *PostgresService {
	return &PostgresService{db: db}
}

func scanProject(row interface{ Scan(...any) error }) (*Project, error) {
	p := &Project{}
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return p, nil
}

// CreateProjectWithOwner creates a project and makes its creator the admin.
// Both rows are written in one transaction.
func (s *PostgresService) CreateProjectWithOwner(ctx context.Context, creatorID int64, name, description string) (*Project, error) {
	var project *Project
	err := postgres.WithTx(ctx, s.db, nil, func(ctx context.Context, tx postgres.DBTX) error {
		p, err := scanProject(tx.QueryRowContext(ctx, `
			INSERT INTO projects (name, description, created_by)
			VALUES ($1, $2, $3)
			RETURNING `+projectColumns,
			strings.TrimSpace(name), strings.TrimSpace(description), creatorID,
		))
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO project_members (project_id, user_id, role)
			VALUES ($1, $2, $3)`,
			p.ID, creatorID, rbac.RoleAdmin,
		); err != nil {
			return err
		}
		project = p
		return nil
	})
	if err != nil {
		if apierr.IsUniqueViolation(err) {
			return nil, apierr.FromPostgres(err, "Project name must be unique per user", NameConstraint)
		}
		return nil, fmt.Errorf("failed to create project: %w", err)
	}
	return project, nil
}

// GetProject retrieves a project with its creator and members
func (s *PostgresService) GetProject(ctx context.Context, projectID int64) (*Detail, error) {
	query := `
		SELECT p.id, p.name, p.description, p.updated_at,
		       u.username, u.email, u.full_name, u.avatar_url
		FROM projects p
		JOIN users u ON u.id = p.created_by
		WHERE p.id = $1
	`
	d := &Detail{}
	var fullName, avatarURL sql.NullString
	err := s.db.QueryRowContext(ctx, query, projectID).Scan(
		&d.ID, &d.Name, &d.Description, &d.UpdatedAt,
		&d.CreatedBy.Username, &d.CreatedBy.Email, &fullName, &avatarURL,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierr.NotFound("Project not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	d.CreatedBy.FullName = fullName.String
	d.CreatedBy.AvatarURL = avatarURL.String

	members, err := s.ListMembers(ctx, projectID)
	if err != nil {
		return nil, err
	}
	d.Members = members
	return d, nil
}

// ListProjects lists every project userID belongs to, with the caller's
// role and the member count
func (s *PostgresService) ListProjects(ctx context.Context, userID int64) ([]*Summary, error) {
	query := `
		SELECT p.id, p.name, p.description, u.username, u.email, pm.role,
		       (SELECT COUNT(*) FROM project_members m WHERE m.project_id = p.id)
		FROM project_members pm
		JOIN projects p ON p.id = pm.project_id
		JOIN users u ON u.id = p.created_by
		WHERE pm.user_id = $1
		ORDER BY p.created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	summaries := []*Summary{}
	for rows.Next() {
		sm := &Summary{}
		if err := rows.Scan(
			&sm.ProjectID, &sm.Name, &sm.Description,
			&sm.CreatedBy.Username, &sm.CreatedBy.Email, &sm.Role, &sm.TotalMembers,
		); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		summaries = append(summaries, sm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	return summaries, nil
}

// UpdateProject applies the non-nil fields of req
func (s *PostgresService) UpdateProject(ctx context.Context, projectID int64, req *UpdateProjectRequest) (*Project, error) {
	var name, description sql.NullString
	if req.Name != nil {
		name = sql.NullString{String: strings.TrimSpace(*req.Name), Valid: true}
	}
	if req.Description != nil {
		description = sql.NullString{String: strings.TrimSpace(*req.Description), Valid: true}
	}

	query := `
		UPDATE projects
		SET name = COALESCE($2, name),
		    description = COALESCE($3, description),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING ` + projectColumns

	p, err := scanProject(s.db.QueryRowContext(ctx, query, projectID, name, description))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierr.NotFound("Project not found")
	}
	if err != nil {
		if apierr.IsUniqueViolation(err) {
			return nil, apierr.FromPostgres(err, "Project name must be unique per user", NameConstraint)
		}
		return nil, fmt.Errorf("failed to update project: %w", err)
	}
	return p, nil
}

// DeleteProject removes a project and everything scoped to it in one
// transaction. It returns the storage keys of the removed attachments so the
// caller can release the objects.
func (s *PostgresService) DeleteProject(ctx context.Context, projectID int64) ([]string, error) {
	var keys []string
	err := postgres.WithTx(ctx, s.db, nil, func(ctx context.Context, tx postgres.DBTX) error {
		rows, err := tx.QueryContext(ctx,
			`DELETE FROM task_attachments WHERE project_id = $1 RETURNING object_key`, projectID)
		if err != nil {
			return err
		}
		for rows.Next() {
			var key string
			if err := rows.Scan(&key); err != nil {
				rows.Close()
				return err
			}
			keys = append(keys, key)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, stmt := range []string{
			`DELETE FROM subtasks WHERE project_id = $1`,
			`DELETE FROM tasks WHERE project_id = $1`,
			`DELETE FROM project_notes WHERE project_id = $1`,
			`DELETE FROM project_members WHERE project_id = $1`,
		} {
			if _, err := tx.ExecContext(ctx, stmt, projectID); err != nil {
				return err
			}
		}

		result, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, projectID)
		if err != nil {
			return err
		}
		n, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return apierr.NotFound("Project not found")
		}
		return nil
	})
	if err != nil {
		if apierr.IsKind(err, apierr.KindNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to delete project: %w", err)
	}
	return keys, nil
}
