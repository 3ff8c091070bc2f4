package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/platinummonkey/taskhub/pkg/apierr"
)

// SubtaskTitleConstraint keeps subtask titles unique within a task
const SubtaskTitleConstraint = "subtasks_title_task_id_project_id_key"

const subtaskColumns = `id, task_id, project_id, title, is_completed, created_by, created_at, updated_at`

func scanSubtask(row interface{ Scan(...any) error }) (*Subtask, error) {
	st := &Subtask{}
	if err := row.Scan(
		&st.ID, &st.TaskID, &st.ProjectID, &st.Title, &st.IsCompleted,
		&st.CreatedBy, &st.CreatedAt, &st.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return st, nil
}

func duplicateSubtask(err error) *apierr.Error {
	return apierr.FromPostgres(err, "Subtask with this title already exists for the task", SubtaskTitleConstraint)
}

func (s *Service) listSubtasks(ctx context.Context, taskID int64) ([]*Subtask, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+subtaskColumns+` FROM subtasks WHERE task_id = $1 ORDER BY created_at ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subtasks: %w", err)
	}
	defer rows.Close()

	list := []*Subtask{}
	for rows.Next() {
		st, err := scanSubtask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subtask: %w", err)
		}
		list = append(list, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list subtasks: %w", err)
	}
	return list, nil
}

// CreateSubtask adds a subtask to a task of projectID
func (s *Service) CreateSubtask(ctx context.Context, projectID, taskID int64, title string, createdBy int64) (*Subtask, error) {
	query := `
		INSERT INTO subtasks (task_id, project_id, title, created_by)
		SELECT t.id, t.project_id, $3, $4
		FROM tasks t
		WHERE t.id = $1 AND t.project_id = $2
		RETURNING ` + subtaskColumns

	st, err := scanSubtask(s.db.QueryRowContext(ctx, query, taskID, projectID, strings.TrimSpace(title), createdBy))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierr.NotFound("Task not found")
	}
	if err != nil {
		if apierr.IsUniqueViolation(err) {
			return nil, duplicateSubtask(err)
		}
		return nil, fmt.Errorf("failed to create subtask: %w", err)
	}
	return st, nil
}

// UpdateSubtask applies a partial update to a subtask of projectID
func (s *Service) UpdateSubtask(ctx context.Context, projectID, subtaskID int64, in UpdateSubtaskInput) (*Subtask, error) {
	if in.empty() {
		return nil, apierr.BadRequest("At least one field is required to update")
	}

	var title sql.NullString
	var completed sql.NullBool
	if in.Title != nil {
		title = sql.NullString{String: strings.TrimSpace(*in.Title), Valid: true}
	}
	if in.IsCompleted != nil {
		completed = sql.NullBool{Bool: *in.IsCompleted, Valid: true}
	}

	query := `
		UPDATE subtasks
		SET title = COALESCE($3, title),
		    is_completed = COALESCE($4, is_completed),
		    updated_at = NOW()
		WHERE id = $1 AND project_id = $2
		RETURNING ` + subtaskColumns

	st, err := scanSubtask(s.db.QueryRowContext(ctx, query, subtaskID, projectID, title, completed))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierr.NotFound("Subtask not found")
	}
	if err != nil {
		if apierr.IsUniqueViolation(err) {
			return nil, duplicateSubtask(err)
		}
		return nil, fmt.Errorf("failed to update subtask: %w", err)
	}
	return st, nil
}

// DeleteSubtask removes a subtask of projectID
func (s *Service) DeleteSubtask(ctx context.Context, projectID, subtaskID int64) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM subtasks WHERE id = $1 AND project_id = $2`, subtaskID, projectID)
	if err != nil {
		return fmt.Errorf("failed to delete subtask: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete subtask: %w", err)
	}
	if n == 0 {
		return apierr.NotFound("Subtask not found")
	}
	return nil
}
