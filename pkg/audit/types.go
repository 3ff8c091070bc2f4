package audit

import (
	"context"
	"time"

	"github.com/platinummonkey/taskhub/pkg/contextkeys"
)

// EventType represents the type of audit event
type EventType string

const (
	// Account events
	EventTypeRegister             EventType = "auth.register"
	EventTypeEmailVerified        EventType = "auth.email_verified"
	EventTypeLogin                EventType = "auth.login"
	EventTypeLoginFailed          EventType = "auth.login_failed"
	EventTypeLogout               EventType = "auth.logout"
	EventTypeTokenRefresh         EventType = "auth.token_refresh"
	EventTypePasswordResetRequest EventType = "auth.password_reset_requested"
	EventTypePasswordReset        EventType = "auth.password_reset"
	EventTypePasswordChange       EventType = "auth.password_change"

	// Authorization events
	EventTypeAccessDenied EventType = "authz.access_denied"

	// Project events
	EventTypeProjectCreate EventType = "project.create"
	EventTypeProjectUpdate EventType = "project.update"
	EventTypeProjectDelete EventType = "project.delete"
	EventTypeMemberAdd     EventType = "project.member_add"
	EventTypeMemberRemove  EventType = "project.member_remove"
	EventTypeRoleChange    EventType = "project.role_change"
)

// EventStatus represents the outcome of an audited operation
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// ResourceType represents the type of resource an event touched
type ResourceType string

const (
	ResourceTypeUser    ResourceType = "user"
	ResourceTypeProject ResourceType = "project"
	ResourceTypeMember  ResourceType = "member"
	ResourceTypeTask    ResourceType = "task"
	ResourceTypeNote    ResourceType = "note"
)

// Event represents a single audit trail entry
type Event struct {
	ID         int64       `json:"id"`
	OccurredAt time.Time   `json:"occurred_at"`
	EventType  EventType   `json:"event_type"`
	Status     EventStatus `json:"status"`

	UserID    *int64 `json:"user_id,omitempty"`
	ProjectID *int64 `json:"project_id,omitempty"`

	ResourceType ResourceType `json:"resource_type,omitempty"`
	ResourceID   string       `json:"resource_id,omitempty"`

	IPAddress string `json:"ip_address,omitempty"`
	RequestID string `json:"request_id,omitempty"`

	Message  string                 `json:"message,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// NewEvent builds an event stamped with the current time and the request ID
// carried by ctx, if any.
func NewEvent(ctx context.Context, eventType EventType, status EventStatus) *Event {
	return &Event{
		OccurredAt: time.Now().UTC(),
		EventType:  eventType,
		Status:     status,
		RequestID:  contextkeys.GetRequestID(ctx),
		Metadata:   make(map[string]interface{}),
	}
}

// WithUser sets the acting user
func (e *Event) WithUser(userID int64) *Event {
	e.UserID = &userID
	return e
}

// WithProject sets the project the event is scoped to
func (e *Event) WithProject(projectID int64) *Event {
	e.ProjectID = &projectID
	return e
}

// WithResource sets the resource the event touched
func (e *Event) WithResource(resourceType ResourceType, resourceID string) *Event {
	e.ResourceType = resourceType
	e.ResourceID = resourceID
	return e
}
