package tasks

import (
	"io"
	"time"
)

// Status is the lifecycle state of a task
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
)

// Statuses lists every task status
func Statuses() []string {
	return []string{string(StatusTodo), string(StatusInProgress), string(StatusDone)}
}

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone:
		return true
	}
	return false
}

// UserRef is the public view of a task's assignee or assigner
type UserRef struct {
	ID        int64  `json:"-"`
	Username  string `json:"username"`
	FullName  string `json:"fullName,omitempty"`
	AvatarURL string `json:"avatar,omitempty"`
}

// Task is a unit of work inside a project
type Task struct {
	ID          int64         `json:"id"`
	ProjectID   int64         `json:"projectId"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Status      Status        `json:"status"`
	AssignedTo  UserRef       `json:"assignedTo"`
	AssignedBy  UserRef       `json:"assignedBy"`
	Attachments []*Attachment `json:"attachments"`
	Subtasks    []*Subtask    `json:"subtasks,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// Attachment is a stored file attached to a task
type Attachment struct {
	ID        int64     `json:"id"`
	TaskID    int64     `json:"taskId"`
	Key       string    `json:"-"`
	URL       string    `json:"url"`
	MimeType  string    `json:"mimetype"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
}

// Subtask is a checklist item of a task
type Subtask struct {
	ID          int64     `json:"id"`
	TaskID      int64     `json:"taskId"`
	ProjectID   int64     `json:"projectId"`
	Title       string    `json:"title"`
	IsCompleted bool      `json:"isCompleted"`
	CreatedBy   int64     `json:"createdBy"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// CreateTaskInput describes a new task. The assignee is resolved by email
// and must be a member of the project.
type CreateTaskInput struct {
	Title         string
	Description   string
	AssigneeEmail string
	AssignedBy    int64
}

// UpdateTaskInput carries a partial task update. Nil fields are left unchanged.
type UpdateTaskInput struct {
	Title         *string
	Description   *string
	AssigneeEmail *string
	Status        *Status
}

func (in *UpdateTaskInput) empty() bool {
	return in.Title == nil && in.Description == nil && in.AssigneeEmail == nil && in.Status == nil
}

// UpdateSubtaskInput carries a partial subtask update
type UpdateSubtaskInput struct {
	Title       *string
	IsCompleted *bool
}

func (in *UpdateSubtaskInput) empty() bool {
	return in.Title == nil && in.IsCompleted == nil
}

// Upload is a file received from a client
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}
