package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanPerform_ExhaustiveTable(t *testing.T) {
	// action -> admin, project_admin, member
	expected := map[Action][3]bool{
		ActionViewProject:       {true, true, true},
		ActionUpdateProject:     {true, true, false},
		ActionDeleteProject:     {true, false, false},
		ActionAddMembers:        {true, true, false},
		ActionRemoveMembers:     {true, true, false},
		ActionUpdateRole:        {true, false, false},
		ActionAddTask:           {true, true, false},
		ActionUpdateTask:        {true, true, false},
		ActionDeleteTask:        {true, true, false},
		ActionViewTasks:         {true, true, true},
		ActionAddSubtask:        {true, true, false},
		ActionUpdateSubtask:     {true, true, true},
		ActionDeleteSubtask:     {true, true, false},
		ActionAddAttachments:    {true, true, false},
		ActionDeleteAttachments: {true, true, false},
		ActionAddNotes:          {true, true, false},
		ActionUpdateNotes:       {true, true, false},
		ActionDeleteNotes:       {true, true, false},
		ActionViewNotes:         {true, true, true},
	}

	require.Len(t, Actions(), len(expected), "every action must have an expectation")

	roles := []Role{RoleAdmin, RoleProjectAdmin, RoleMember}
	for _, action := range Actions() {
		want, ok := expected[action]
		require.True(t, ok, "missing expectation for %s", action)
		for i, role := range roles {
			assert.Equal(t, want[i], CanPerform(role, action), "CanPerform(%s, %s)", role, action)
		}
	}
}

func TestCanPerform_UnknownInputs(t *testing.T) {
	for _, action := range Actions() {
		assert.False(t, CanPerform(Role("owner"), action))
		assert.False(t, CanPerform(Role(""), action))
	}
	for _, role := range Roles() {
		assert.False(t, CanPerform(role, Action("create_project")))
	}
}

func TestCapabilities_ReturnsCopy(t *testing.T) {
	caps := Capabilities(RoleMember)
	require.Len(t, caps, 4)

	caps[0] = ActionDeleteProject
	assert.False(t, CanPerform(RoleMember, ActionDeleteProject))
	assert.Equal(t, ActionViewProject, Capabilities(RoleMember)[0])

	assert.Len(t, Capabilities(RoleAdmin), len(Actions()))
	assert.Empty(t, Capabilities(Role("ghost")))
}

func TestRolesAndActions_ReturnCopies(t *testing.T) {
	roles := Roles()
	roles[0] = Role("owner")
	assert.Equal(t, RoleAdmin, Roles()[0])

	actions := Actions()
	actions[0] = Action("noop")
	assert.Equal(t, ActionViewProject, Actions()[0])
}

func TestRole_Valid(t *testing.T) {
	tests := []struct {
		role       Role
		valid      bool
		assignable bool
	}{
		{RoleAdmin, true, false},
		{RoleProjectAdmin, true, true},
		{RoleMember, true, true},
		{Role("owner"), false, false},
		{Role(""), false, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			assert.Equal(t, tt.valid, tt.role.Valid())
			assert.Equal(t, tt.assignable, tt.role.Assignable())
		})
	}
}

func TestParseRole(t *testing.T) {
	role, err := ParseRole("project_admin")
	require.NoError(t, err)
	assert.Equal(t, RoleProjectAdmin, role)

	_, err = ParseRole("superuser")
	assert.Error(t, err)
}

func TestAction_Valid(t *testing.T) {
	for _, action := range Actions() {
		assert.True(t, action.Valid(), action.String())
	}
	assert.False(t, Action("create_project").Valid())
}
