package rbac

import "fmt"

// Role is a project-scoped role. The set of roles is closed.
type Role string

const (
	RoleAdmin        Role = "admin"
	RoleProjectAdmin Role = "project_admin"
	RoleMember       Role = "member"
)

var allRoles = []Role{RoleAdmin, RoleProjectAdmin, RoleMember}

// Roles lists every role in descending order of privilege
func Roles() []Role {
	return append([]Role(nil), allRoles...)
}

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleProjectAdmin, RoleMember:
		return true
	}
	return false
}

// Assignable reports whether r may be granted through invites or role
// changes. Admin is only ever granted to a project's creator.
func (r Role) Assignable() bool {
	return r == RoleProjectAdmin || r == RoleMember
}

func (r Role) String() string {
	return string(r)
}

// ParseRole parses a role name
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Action is a project-scoped capability. The set of actions is closed.
type Action string

const (
	ActionViewProject       Action = "view_project"
	ActionUpdateProject     Action = "update_project"
	ActionDeleteProject     Action = "delete_project"
	ActionAddMembers        Action = "add_members"
	ActionRemoveMembers     Action = "remove_members"
	ActionUpdateRole        Action = "update_role"
	ActionAddTask           Action = "add_task"
	ActionUpdateTask        Action = "update_task"
	ActionDeleteTask        Action = "delete_task"
	ActionViewTasks         Action = "view_tasks"
	ActionAddSubtask        Action = "add_subtask"
	ActionUpdateSubtask     Action = "update_subtask"
	ActionDeleteSubtask     Action = "delete_subtask"
	ActionAddAttachments    Action = "add_attachments"
	ActionDeleteAttachments Action = "delete_attachments"
	ActionAddNotes          Action = "add_notes"
	ActionUpdateNotes       Action = "update_notes"
	ActionDeleteNotes       Action = "delete_notes"
	ActionViewNotes         Action = "view_notes"
)

var allActions = []Action{
	ActionViewProject,
	ActionUpdateProject,
	ActionDeleteProject,
	ActionAddMembers,
	ActionRemoveMembers,
	ActionUpdateRole,
	ActionAddTask,
	ActionUpdateTask,
	ActionDeleteTask,
	ActionViewTasks,
	ActionAddSubtask,
	ActionUpdateSubtask,
	ActionDeleteSubtask,
	ActionAddAttachments,
	ActionDeleteAttachments,
	ActionAddNotes,
	ActionUpdateNotes,
	ActionDeleteNotes,
	ActionViewNotes,
}

// Actions lists every action
func Actions() []Action {
	return append([]Action(nil), allActions...)
}

// Valid reports whether a is one of the known actions
func (a Action) Valid() bool {
	for _, known := range allActions {
		if a == known {
			return true
		}
	}
	return false
}

func (a Action) String() string {
	return string(a)
}

// capabilities is the static role to action table. Every role has an entry.
// It is never written after package initialization.
var capabilities = map[Role][]Action{
	RoleAdmin: {
		ActionViewProject,
		ActionUpdateProject,
		ActionDeleteProject,
		ActionAddMembers,
		ActionRemoveMembers,
		ActionUpdateRole,
		ActionAddTask,
		ActionUpdateTask,
		ActionDeleteTask,
		ActionViewTasks,
		ActionAddSubtask,
		ActionUpdateSubtask,
		ActionDeleteSubtask,
		ActionAddAttachments,
		ActionDeleteAttachments,
		ActionAddNotes,
		ActionUpdateNotes,
		ActionDeleteNotes,
		ActionViewNotes,
	},
	RoleProjectAdmin: {
		ActionViewProject,
		ActionUpdateProject,
		ActionAddMembers,
		ActionRemoveMembers,
		ActionAddTask,
		ActionUpdateTask,
		ActionDeleteTask,
		ActionViewTasks,
		ActionAddSubtask,
		ActionUpdateSubtask,
		ActionDeleteSubtask,
		ActionAddAttachments,
		ActionDeleteAttachments,
		ActionAddNotes,
		ActionUpdateNotes,
		ActionDeleteNotes,
		ActionViewNotes,
	},
	RoleMember: {
		ActionViewProject,
		ActionViewTasks,
		ActionUpdateSubtask,
		ActionViewNotes,
	},
}
