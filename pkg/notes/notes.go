package notes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/taskhub/pkg/apierr"
)

// Author is the public view of a note's creator
type Author struct {
	ID        int64  `json:"-"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FullName  string `json:"fullName,omitempty"`
	AvatarURL string `json:"avatar,omitempty"`
}

// Note is a free-form note attached to a project
type Note struct {
	ID        int64     `json:"id"`
	ProjectID int64     `json:"projectId"`
	Content   string    `json:"content"`
	CreatedBy Author    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Service defines project note management
type Service interface {
	ListNotes(ctx context.Context, projectID int64) ([]*Note, error)
	GetNote(ctx context.Context, projectID, noteID int64) (*Note, error)
	CreateNote(ctx context.Context, projectID, authorID int64, content string) (*Note, error)
	UpdateNote(ctx context.Context, projectID, noteID int64, content string) (*Note, error)
	DeleteNote(ctx context.Context, projectID, noteID int64) error
}

// PostgresService implements Service on the project_notes table
type PostgresService struct {
	db *sql.DB
}

// NewPostgresService creates a new PostgresService
func NewPostgresService(db *sql.DB) *PostgresService {
	return &PostgresService{db: db}
}

const noteSelect = `
	SELECT n.id, n.project_id, n.content, n.created_at, n.updated_at,
	       u.id, u.username, u.email, u.full_name, u.avatar_url
	FROM project_notes n
	JOIN users u ON u.id = n.created_by
`

func scanNote(row interface{ Scan(...any) error }) (*Note, error) {
	n := &Note{}
	var fullName, avatarURL sql.NullString
	if err := row.Scan(
		&n.ID, &n.ProjectID, &n.Content, &n.CreatedAt, &n.UpdatedAt,
		&n.CreatedBy.ID, &n.CreatedBy.Username, &n.CreatedBy.Email, &fullName, &avatarURL,
	); err != nil {
		return nil, err
	}
	n.CreatedBy.FullName = fullName.String
	n.CreatedBy.AvatarURL = avatarURL.String
	return n, nil
}

// ListNotes lists the notes of a project, newest first
func (s *PostgresService) ListNotes(ctx context.Context, projectID int64) ([]*Note, error) {
	rows, err := s.db.QueryContext(ctx, noteSelect+`WHERE n.project_id = $1 ORDER BY n.created_at DESC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	defer rows.Close()

	list := []*Note{}
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		list = append(list, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	return list, nil
}

// GetNote retrieves a note of projectID
func (s *PostgresService) GetNote(ctx context.Context, projectID, noteID int64) (*Note, error) {
	n, err := scanNote(s.db.QueryRowContext(ctx, noteSelect+`WHERE n.id = $1 AND n.project_id = $2`, noteID, projectID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierr.NotFound("Note not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get note: %w", err)
	}
	return n, nil
}

// CreateNote adds a note written by authorID
func (s *PostgresService) CreateNote(ctx context.Context, projectID, authorID int64, content string) (*Note, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO project_notes (project_id, created_by, content)
		VALUES ($1, $2, $3)
		RETURNING id`,
		projectID, authorID, strings.TrimSpace(content),
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("failed to create note: %w", err)
	}
	return s.GetNote(ctx, projectID, id)
}

// UpdateNote replaces the content of a note
func (s *PostgresService) UpdateNote(ctx context.Context, projectID, noteID int64, content string) (*Note, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE project_notes SET content = $3, updated_at = NOW()
		WHERE id = $1 AND project_id = $2`,
		noteID, projectID, strings.TrimSpace(content),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update note: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to update note: %w", err)
	}
	if n == 0 {
		return nil, apierr.NotFound("Note not found")
	}
	return s.GetNote(ctx, projectID, noteID)
}

// DeleteNote removes a note of projectID
func (s *PostgresService) DeleteNote(ctx context.Context, projectID, noteID int64) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM project_notes WHERE id = $1 AND project_id = $2`, noteID, projectID)
	if err != nil {
		return fmt.Errorf("failed to delete note: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete note: %w", err)
	}
	if n == 0 {
		return apierr.NotFound("Note not found or already deleted")
	}
	return nil
}
