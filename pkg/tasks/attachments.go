package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/platinummonkey/taskhub/pkg/apierr"
	"github.com/platinummonkey/taskhub/pkg/storage"
	"github.com/platinummonkey/taskhub/pkg/storage/postgres"
)

func (s *Service) listAttachments(ctx context.Context, where string, arg int64) ([]*Attachment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_id, object_key, url, mimetype, size, created_at
		FROM task_attachments `+where+` ORDER BY id ASC`, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}
	defer rows.Close()

	list := []*Attachment{}
	for rows.Next() {
		a := &Attachment{}
		if err := rows.Scan(&a.ID, &a.TaskID, &a.Key, &a.URL, &a.MimeType, &a.Size, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		list = append(list, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}
	return list, nil
}

// uploadAll stores every upload. On the first failure the objects already
// stored are released and the failure is returned as UploadFailed.
func (s *Service) uploadAll(ctx context.Context, projectID int64, uploads []Upload) ([]*storage.Object, error) {
	objects := make([]*storage.Object, 0, len(uploads))
	for _, u := range uploads {
		key := storage.ObjectKey(fmt.Sprintf("attachments/%d", projectID), u.Filename)
		obj, err := s.uploader.Upload(ctx, key, u.ContentType, u.Body, u.Size)
		if err != nil {
			s.release(ctx, objectKeys(objects))
			if apierr.IsKind(err, apierr.KindUploadFailed) {
				return nil, err
			}
			return nil, apierr.UploadFailed(err)
		}
		objects = append(objects, obj)
	}
	return objects, nil
}

func objectKeys(objects []*storage.Object) []string {
	keys := make([]string, 0, len(objects))
	for _, o := range objects {
		keys = append(keys, o.Key)
	}
	return keys
}

func insertAttachments(ctx context.Context, tx postgres.DBTX, projectID, taskID int64, objects []*storage.Object) ([]*Attachment, error) {
	list := make([]*Attachment, 0, len(objects))
	for _, o := range objects {
		a := &Attachment{TaskID: taskID, Key: o.Key, URL: o.URL, MimeType: o.ContentType, Size: o.Size}
		err := tx.QueryRowContext(ctx, `
			INSERT INTO task_attachments (task_id, project_id, object_key, url, mimetype, size)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id, created_at`,
			taskID, projectID, o.Key, o.URL, o.ContentType, o.Size,
		).Scan(&a.ID, &a.CreatedAt)
		if err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	return list, nil
}

// countAttachments returns the attachment count of a task, or NotFound when
// the task does not belong to projectID. With lock set the task row is
// locked until the transaction ends.
func countAttachments(ctx context.Context, db postgres.DBTX, projectID, taskID int64, lock bool) (int, error) {
	query := `
		SELECT (SELECT COUNT(*) FROM task_attachments a WHERE a.task_id = t.id)
		FROM tasks t
		WHERE t.id = $1 AND t.project_id = $2`
	if lock {
		query += ` FOR UPDATE OF t`
	}
	var n int
	err := db.QueryRowContext(ctx, query, taskID, projectID).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, apierr.NotFound("Task not found")
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Service) checkAttachmentLimit(existing, adding int) error {
	if existing+adding > s.config.MaxAttachments {
		remaining := s.config.MaxAttachments - existing
		if remaining < 0 {
			remaining = 0
		}
		return apierr.Validation("attachments",
			fmt.Sprintf("Attachment limit exceeded. You can upload only %d more.", remaining))
	}
	return nil
}

// AddAttachments uploads files and attaches them to a task. The task's total
// may not exceed the configured maximum.
func (s *Service) AddAttachments(ctx context.Context, projectID, taskID int64, uploads []Upload) ([]*Attachment, error) {
	if len(uploads) == 0 {
		return nil, apierr.BadRequest("Please add attachments")
	}

	existing, err := countAttachments(ctx, s.db, projectID, taskID, false)
	if err != nil {
		if apierr.IsKind(err, apierr.KindNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to count attachments: %w", err)
	}
	if err := s.checkAttachmentLimit(existing, len(uploads)); err != nil {
		return nil, err
	}

	objects, err := s.uploadAll(ctx, projectID, uploads)
	if err != nil {
		return nil, err
	}

	var added []*Attachment
	err = postgres.WithTx(ctx, s.db, nil, func(ctx context.Context, tx postgres.DBTX) error {
		existing, err := countAttachments(ctx, tx, projectID, taskID, true)
		if err != nil {
			return err
		}
		if err := s.checkAttachmentLimit(existing, len(objects)); err != nil {
			return err
		}
		added, err = insertAttachments(ctx, tx, projectID, taskID, objects)
		return err
	})
	if err != nil {
		s.release(ctx, objectKeys(objects))
		if apierr.KindOf(err) != apierr.KindInternal {
			return nil, err
		}
		return nil, fmt.Errorf("failed to add attachments: %w", err)
	}
	return added, nil
}

// DeleteAttachment removes an attachment of projectID and releases its file
func (s *Service) DeleteAttachment(ctx context.Context, projectID, attachmentID int64) error {
	var key string
	err := s.db.QueryRowContext(ctx,
		`DELETE FROM task_attachments WHERE id = $1 AND project_id = $2 RETURNING object_key`,
		attachmentID, projectID,
	).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return apierr.NotFound("Attachment not found")
	}
	if err != nil {
		return fmt.Errorf("failed to delete attachment: %w", err)
	}
	s.release(ctx, []string{key})
	return nil
}
