package projects

import (
	"context"
	"time"

	"github.com/platinummonkey/taskhub/pkg/rbac"
)

// Project is a collaboration space owned by its creator
type Project struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedBy   int64     `json:"createdBy"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Person is the public view of a user inside a project
type Person struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	FullName  string `json:"fullName,omitempty"`
	AvatarURL string `json:"avatar,omitempty"`
}

// Summary is one row of a caller's project list
type Summary struct {
	ProjectID    int64     `json:"projectId"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	CreatedBy    Person    `json:"createdBy"`
	Role         rbac.Role `json:"role"`
	TotalMembers int       `json:"totalMembers"`
}

// Detail is a project with its creator and members
type Detail struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	UpdatedAt   time.Time `json:"updatedAt"`
	CreatedBy   Person    `json:"createdBy"`
	Members     []*Member `json:"members"`
}

// Membership binds a user to a project with exactly one role
type Membership struct {
	ID        int64     `json:"id"`
	ProjectID int64     `json:"projectId"`
	UserID    int64     `json:"userId"`
	Role      rbac.Role `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Member is a membership joined with the member's public profile
type Member struct {
	Membership
	Person
}

// CreateProjectRequest represents request to create a project
type CreateProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// UpdateProjectRequest represents request to update a project. Nil fields
// are left unchanged.
type UpdateProjectRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// AddMemberRequest represents request to add a member by email
type AddMemberRequest struct {
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
}

// UpdateRoleRequest represents request to change a member's role
type UpdateRoleRequest struct {
	Role string `json:"role"`
}

// Service defines project and membership management
type Service interface {
	// Projects
	CreateProjectWithOwner(ctx context.Context, creatorID int64, name, description string) (*Project, error)
	GetProject(ctx context.Context, projectID int64) (*Detail, error)
	ListProjects(ctx context.Context, userID int64) ([]*Summary, error)
	UpdateProject(ctx context.Context, projectID int64, req *UpdateProjectRequest) (*Project, error)
	DeleteProject(ctx context.Context, projectID int64) ([]string, error)

	// Membership
	ListMembers(ctx context.Context, projectID int64) ([]*Member, error)
	MemberByEmail(ctx context.Context, projectID int64, email string) (*Member, error)
	AddMember(ctx context.Context, projectID int64, email string, role rbac.Role) (*Member, error)
	RemoveMember(ctx context.Context, projectID, memberID int64) error
	ChangeRole(ctx context.Context, projectID, memberID int64, role rbac.Role) (*Membership, error)
	RoleOf(ctx context.Context, userID, projectID int64) (rbac.Role, bool, error)
}
