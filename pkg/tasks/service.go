package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/taskhub/pkg/apierr"
	"github.com/platinummonkey/taskhub/pkg/storage"
	"github.com/platinummonkey/taskhub/pkg/storage/postgres"
)

// DefaultMaxAttachments bounds the attachments of a single task
const DefaultMaxAttachments = 5

// Config holds task service settings
type Config struct {
	MaxAttachments int
}

// Service manages tasks, subtasks and attachments of projects
type Service struct {
	db       *sql.DB
	uploader storage.Uploader
	config   Config
	logger   *logrus.Logger
}

// NewService creates a task service storing attachments through uploader
func NewService(db *sql.DB, uploader storage.Uploader, config Config, logger *logrus.Logger) *Service {
	if config.MaxAttachments <= 0 {
		config.MaxAttachments = DefaultMaxAttachments
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{db: db, uploader: uploader, config: config, logger: logger}
}

const taskSelect = `
	SELECT t.id, t.project_id, t.title, t.description, t.status, t.created_at, t.updated_at,
	       t.assigned_to, ato.username, ato.full_name, ato.avatar_url,
	       t.assigned_by, aby.username, aby.full_name, aby.avatar_url
	FROM tasks t
	JOIN users ato ON ato.id = t.assigned_to
	JOIN users aby ON aby.id = t.assigned_by
`

func scanTask(row interface{ Scan(...any) error }) (*Task, error) {
	t := &Task{Attachments: []*Attachment{}}
	var toName, toAvatar, byName, byAvatar sql.NullString
	if err := row.Scan(
		&t.ID, &t.ProjectID, &t.Title, &t.Description, &t.Status, &t.CreatedAt, &t.UpdatedAt,
		&t.AssignedTo.ID, &t.AssignedTo.Username, &toName, &toAvatar,
		&t.AssignedBy.ID, &t.AssignedBy.Username, &byName, &byAvatar,
	); err != nil {
		return nil, err
	}
	t.AssignedTo.FullName = toName.String
	t.AssignedTo.AvatarURL = toAvatar.String
	t.AssignedBy.FullName = byName.String
	t.AssignedBy.AvatarURL = byAvatar.String
	return t, nil
}

// resolveAssignee finds the user with email and checks they belong to projectID
func (s *Service) resolveAssignee(ctx context.Context, projectID int64, email string) (int64, error) {
	var userID int64
	var membershipID sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT u.id, pm.id
		FROM users u
		LEFT JOIN project_members pm ON pm.user_id = u.id AND pm.project_id = $1
		WHERE u.email = $2`,
		projectID, strings.ToLower(strings.TrimSpace(email)),
	).Scan(&userID, &membershipID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, apierr.Validation("email", "Assigned User not found")
	}
	if err != nil {
		return 0, fmt.Errorf("failed to resolve assignee: %w", err)
	}
	if !membershipID.Valid {
		return 0, apierr.Validation("email", "Assigned User not a member of this project")
	}
	return userID, nil
}

// ListTasks lists the tasks of a project with their attachments
func (s *Service) ListTasks(ctx context.Context, projectID int64) ([]*Task, error) {
	rows, err := s.db.QueryContext(ctx, taskSelect+`WHERE t.project_id = $1 ORDER BY t.created_at ASC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	list := []*Task{}
	byID := make(map[int64]*Task)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		list = append(list, t)
		byID[t.ID] = t
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	if len(list) == 0 {
		return list, nil
	}

	attachments, err := s.listAttachments(ctx, `WHERE project_id = $1`, projectID)
	if err != nil {
		return nil, err
	}
	for _, a := range attachments {
		if t, ok := byID[a.TaskID]; ok {
			t.Attachments = append(t.Attachments, a)
		}
	}
	return list, nil
}

// GetTask retrieves a task of projectID with its attachments and subtasks
func (s *Service) GetTask(ctx context.Context, projectID, taskID int64) (*Task, error) {
	t, err := scanTask(s.db.QueryRowContext(ctx, taskSelect+`WHERE t.id = $1 AND t.project_id = $2`, taskID, projectID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierr.NotFound("Task not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	if t.Attachments, err = s.listAttachments(ctx, `WHERE task_id = $1`, taskID); err != nil {
		return nil, err
	}
	if t.Subtasks, err = s.listSubtasks(ctx, taskID); err != nil {
		return nil, err
	}
	return t, nil
}

// CreateTask creates a task and stores its initial attachments. Files are
// uploaded before the task is written; if the write fails they are released.
func (s *Service) CreateTask(ctx context.Context, projectID int64, in CreateTaskInput, uploads []Upload) (*Task, error) {
	if len(uploads) > s.config.MaxAttachments {
		return nil, apierr.Validation("attachments",
			fmt.Sprintf("Attachment limit exceeded. You can upload only %d more.", s.config.MaxAttachments))
	}

	assigneeID, err := s.resolveAssignee(ctx, projectID, in.AssigneeEmail)
	if err != nil {
		return nil, err
	}

	objects, err := s.uploadAll(ctx, projectID, uploads)
	if err != nil {
		return nil, err
	}

	var taskID int64
	err = postgres.WithTx(ctx, s.db, nil, func(ctx context.Context, tx postgres.DBTX) error {
		err := tx.QueryRowContext(ctx, `
			INSERT INTO tasks (project_id, title, description, status, assigned_to, assigned_by)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id`,
			projectID, strings.TrimSpace(in.Title), strings.TrimSpace(in.Description), StatusTodo, assigneeID, in.AssignedBy,
		).Scan(&taskID)
		if err != nil {
			return err
		}
		_, err = insertAttachments(ctx, tx, projectID, taskID, objects)
		return err
	})
	if err != nil {
		s.release(ctx, objectKeys(objects))
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	return s.GetTask(ctx, projectID, taskID)
}

// UpdateTask applies a partial update to a task
func (s *Service) UpdateTask(ctx context.Context, projectID, taskID int64, in UpdateTaskInput) (*Task, error) {
	if in.empty() {
		return nil, apierr.BadRequest("At least one field is required to update")
	}
	if in.Status != nil && !in.Status.Valid() {
		return nil, apierr.Validation("status", "Status must be one of: "+strings.Join(Statuses(), ", "))
	}

	var title, description, status sql.NullString
	var assignee sql.NullInt64
	if in.Title != nil {
		title = sql.NullString{String: strings.TrimSpace(*in.Title), Valid: true}
	}
	if in.Description != nil {
		description = sql.NullString{String: strings.TrimSpace(*in.Description), Valid: true}
	}
	if in.Status != nil {
		status = sql.NullString{String: string(*in.Status), Valid: true}
	}
	if in.AssigneeEmail != nil {
		id, err := s.resolveAssignee(ctx, projectID, *in.AssigneeEmail)
		if err != nil {
			return nil, err
		}
		assignee = sql.NullInt64{Int64: id, Valid: true}
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET title = COALESCE($3, title),
		    description = COALESCE($4, description),
		    status = COALESCE($5, status),
		    assigned_to = COALESCE($6, assigned_to),
		    updated_at = NOW()
		WHERE id = $1 AND project_id = $2`,
		taskID, projectID, title, description, status, assignee,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}
	if n == 0 {
		return nil, apierr.NotFound("Task not found")
	}

	return s.GetTask(ctx, projectID, taskID)
}

// DeleteTask removes a task with its subtasks and attachments in one
// transaction, then releases the stored files
func (s *Service) DeleteTask(ctx context.Context, projectID, taskID int64) error {
	var keys []string
	err := postgres.WithTx(ctx, s.db, nil, func(ctx context.Context, tx postgres.DBTX) error {
		rows, err := tx.QueryContext(ctx,
			`DELETE FROM task_attachments WHERE task_id = $1 AND project_id = $2 RETURNING object_key`,
			taskID, projectID)
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

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM subtasks WHERE task_id = $1 AND project_id = $2`, taskID, projectID); err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx,
			`DELETE FROM tasks WHERE id = $1 AND project_id = $2`, taskID, projectID)
		if err != nil {
			return err
		}
		n, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return apierr.NotFound("Task not found")
		}
		return nil
	})
	if err != nil {
		if apierr.IsKind(err, apierr.KindNotFound) {
			return err
		}
		return fmt.Errorf("failed to delete task: %w", err)
	}

	s.release(ctx, keys)
	return nil
}

// Release deletes stored objects, logging failures. It is used after the
// rows referencing the objects are gone.
func (s *Service) Release(ctx context.Context, keys []string) {
	s.release(ctx, keys)
}

func (s *Service) release(ctx context.Context, keys []string) {
	for _, key := range keys {
		if err := s.uploader.Delete(ctx, key); err != nil {
			s.logger.WithError(err).WithField("key", key).Warn("failed to release stored object")
		}
	}
}
