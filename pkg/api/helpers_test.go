package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/taskhub/pkg/apierr"
	"github.com/platinummonkey/taskhub/pkg/audit"
	"github.com/platinummonkey/taskhub/pkg/auth"
	"github.com/platinummonkey/taskhub/pkg/auth/authtest"
	"github.com/platinummonkey/taskhub/pkg/config"
	"github.com/platinummonkey/taskhub/pkg/notes"
	"github.com/platinummonkey/taskhub/pkg/projects"
	"github.com/platinummonkey/taskhub/pkg/rbac"
	"github.com/platinummonkey/taskhub/pkg/storage"
	"github.com/platinummonkey/taskhub/pkg/tasks"
)

// recordingNotifier keeps the last token mailed to each address
type recordingNotifier struct {
	mu            sync.Mutex
	verifications map[string]string
	resets        map[string]string
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{verifications: map[string]string{}, resets: map[string]string{}}
}

func (n *recordingNotifier) SendVerification(_ context.Context, email, _, token string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.verifications[email] = token
}

func (n *recordingNotifier) SendPasswordReset(_ context.Context, email, _, token string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resets[email] = token
}

func (n *recordingNotifier) verification(email string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.verifications[email]
}

func (n *recordingNotifier) reset(email string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.resets[email]
}

// memoryUploader stores objects in a map
type memoryUploader struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string
}

func newMemoryUploader() *memoryUploader {
	return &memoryUploader{objects: map[string][]byte{}}
}

func (u *memoryUploader) Upload(_ context.Context, key, contentType string, body io.Reader, size int64) (*storage.Object, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, apierr.UploadFailed(err)
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.objects[key] = data
	return &storage.Object{Key: key, URL: "http://files.test/" + key, ContentType: contentType, Size: int64(len(data))}, nil
}

func (u *memoryUploader) Delete(_ context.Context, key string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.objects, key)
	u.deleted = append(u.deleted, key)
	return nil
}

func (u *memoryUploader) HealthCheck(context.Context) error { return nil }

func (u *memoryUploader) count() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.objects)
}

// memoryProjects is an in-memory projects.Service over a MemoryUserStore
type memoryProjects struct {
	mu       sync.Mutex
	users    *authtest.MemoryUserStore
	nextID   int64
	projects map[int64]*projects.Project
	members  map[int64]*projects.Member
	// deleteKeys is returned by DeleteProject
	deleteKeys []string
}

func newMemoryProjects(users *authtest.MemoryUserStore) *memoryProjects {
	return &memoryProjects{
		users:    users,
		projects: map[int64]*projects.Project{},
		members:  map[int64]*projects.Member{},
	}
}

func (m *memoryProjects) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memoryProjects) person(ctx context.Context, userID int64) projects.Person {
	rec, err := m.users.GetByID(ctx, userID)
	if err != nil {
		return projects.Person{}
	}
	return projects.Person{Username: rec.Username, Email: rec.Email, FullName: rec.FullName}
}

func (m *memoryProjects) CreateProjectWithOwner(ctx context.Context, creatorID int64, name, description string) (*projects.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.projects {
		if p.CreatedBy == creatorID && p.Name == name {
			return nil, apierr.DuplicateName("Project name must be unique per user")
		}
	}
	now := time.Now()
	p := &projects.Project{ID: m.id(), Name: name, Description: description, CreatedBy: creatorID, CreatedAt: now, UpdatedAt: now}
	m.projects[p.ID] = p
	mid := m.id()
	m.members[mid] = &projects.Member{
		Membership: projects.Membership{ID: mid, ProjectID: p.ID, UserID: creatorID, Role: rbac.RoleAdmin},
		Person:     m.person(ctx, creatorID),
	}
	return p, nil
}

func (m *memoryProjects) GetProject(ctx context.Context, projectID int64) (*projects.Detail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[projectID]
	if !ok {
		return nil, apierr.NotFound("Project not found")
	}
	return &projects.Detail{ID: p.ID, Name: p.Name, Description: p.Description, CreatedBy: m.person(ctx, p.CreatedBy), Members: m.membersOf(projectID)}, nil
}

func (m *memoryProjects) ListProjects(ctx context.Context, userID int64) ([]*projects.Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := []*projects.Summary{}
	for _, mem := range m.members {
		if mem.UserID != userID {
			continue
		}
		p := m.projects[mem.ProjectID]
		list = append(list, &projects.Summary{
			ProjectID: p.ID, Name: p.Name, Description: p.Description,
			CreatedBy: m.person(ctx, p.CreatedBy), Role: mem.Role, TotalMembers: len(m.membersOf(p.ID)),
		})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ProjectID < list[j].ProjectID })
	return list, nil
}

func (m *memoryProjects) UpdateProject(_ context.Context, projectID int64, req *projects.UpdateProjectRequest) (*projects.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[projectID]
	if !ok {
		return nil, apierr.NotFound("Project not found")
	}
	if req.Name != nil {
		p.Name = *req.Name
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	cp := *p
	return &cp, nil
}

func (m *memoryProjects) DeleteProject(_ context.Context, projectID int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[projectID]; !ok {
		return nil, apierr.NotFound("Project not found")
	}
	delete(m.projects, projectID)
	for id, mem := range m.members {
		if mem.ProjectID == projectID {
			delete(m.members, id)
		}
	}
	return m.deleteKeys, nil
}

func (m *memoryProjects) membersOf(projectID int64) []*projects.Member {
	list := []*projects.Member{}
	for _, mem := range m.members {
		if mem.ProjectID == projectID {
			cp := *mem
			list = append(list, &cp)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}

func (m *memoryProjects) ListMembers(_ context.Context, projectID int64) ([]*projects.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.membersOf(projectID), nil
}

func (m *memoryProjects) MemberByEmail(_ context.Context, projectID int64, email string) (*projects.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mem := range m.membersOf(projectID) {
		if mem.Email == email {
			return mem, nil
		}
	}
	return nil, apierr.NotFound("User is not a member of this project")
}

func (m *memoryProjects) AddMember(ctx context.Context, projectID int64, email string, role rbac.Role) (*projects.Member, error) {
	rec, err := m.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, apierr.NotFound("User not found")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mem := range m.membersOf(projectID) {
		if mem.UserID == rec.ID {
			return nil, apierr.Conflict("Member already added to the project")
		}
	}
	mid := m.id()
	mem := &projects.Member{
		Membership: projects.Membership{ID: mid, ProjectID: projectID, UserID: rec.ID, Role: role},
		Person:     projects.Person{Username: rec.Username, Email: rec.Email},
	}
	m.members[mid] = mem
	cp := *mem
	return &cp, nil
}

func (m *memoryProjects) RemoveMember(_ context.Context, projectID, memberID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, ok := m.members[memberID]
	if !ok || mem.ProjectID != projectID {
		return apierr.NotFound("Member not found")
	}
	delete(m.members, memberID)
	return nil
}

func (m *memoryProjects) ChangeRole(_ context.Context, projectID, memberID int64, role rbac.Role) (*projects.Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, ok := m.members[memberID]
	if !ok || mem.ProjectID != projectID {
		return nil, apierr.NotFound("Member not found")
	}
	if mem.Role == role {
		return nil, apierr.NoOp("User already has the role: " + string(role))
	}
	mem.Role = role
	cp := mem.Membership
	return &cp, nil
}

func (m *memoryProjects) RoleOf(_ context.Context, userID, projectID int64) (rbac.Role, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mem := range m.members {
		if mem.ProjectID == projectID && mem.UserID == userID {
			return mem.Role, true, nil
		}
	}
	return "", false, nil
}

// stubTasks records the calls the handlers make
type stubTasks struct {
	mu       sync.Mutex
	created  []tasks.CreateTaskInput
	uploads  []string
	updated  []tasks.UpdateTaskInput
	subtasks []string
	released []string
}

func (s *stubTasks) ListTasks(context.Context, int64) ([]*tasks.Task, error) {
	return []*tasks.Task{}, nil
}

func (s *stubTasks) GetTask(_ context.Context, projectID, taskID int64) (*tasks.Task, error) {
	if taskID == 404 {
		return nil, apierr.NotFound("Task not found")
	}
	return &tasks.Task{ID: taskID, ProjectID: projectID, Status: tasks.StatusTodo}, nil
}

func (s *stubTasks) CreateTask(_ context.Context, projectID int64, in tasks.CreateTaskInput, uploads []tasks.Upload) (*tasks.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, in)
	task := &tasks.Task{ID: 1, ProjectID: projectID, Title: in.Title, Status: tasks.StatusTodo, Attachments: []*tasks.Attachment{}}
	for _, u := range uploads {
		data, _ := io.ReadAll(u.Body)
		s.uploads = append(s.uploads, u.Filename+":"+string(data))
		task.Attachments = append(task.Attachments, &tasks.Attachment{URL: "http://files.test/" + u.Filename, MimeType: u.ContentType, Size: u.Size})
	}
	return task, nil
}

func (s *stubTasks) UpdateTask(_ context.Context, projectID, taskID int64, in tasks.UpdateTaskInput) (*tasks.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updated = append(s.updated, in)
	return &tasks.Task{ID: taskID, ProjectID: projectID}, nil
}

func (s *stubTasks) DeleteTask(context.Context, int64, int64) error { return nil }

func (s *stubTasks) AddAttachments(_ context.Context, _, taskID int64, uploads []tasks.Upload) ([]*tasks.Attachment, error) {
	if len(uploads) == 0 {
		return nil, apierr.BadRequest("Please add attachments")
	}
	list := make([]*tasks.Attachment, 0, len(uploads))
	for _, u := range uploads {
		list = append(list, &tasks.Attachment{TaskID: taskID, URL: "http://files.test/" + u.Filename, MimeType: u.ContentType, Size: u.Size})
	}
	return list, nil
}

func (s *stubTasks) DeleteAttachment(context.Context, int64, int64) error { return nil }

func (s *stubTasks) CreateSubtask(_ context.Context, projectID, taskID int64, title string, createdBy int64) (*tasks.Subtask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subtasks = append(s.subtasks, title)
	return &tasks.Subtask{ID: 1, TaskID: taskID, ProjectID: projectID, Title: title, CreatedBy: createdBy}, nil
}

func (s *stubTasks) UpdateSubtask(_ context.Context, projectID, subtaskID int64, in tasks.UpdateSubtaskInput) (*tasks.Subtask, error) {
	st := &tasks.Subtask{ID: subtaskID, ProjectID: projectID}
	if in.IsCompleted != nil {
		st.IsCompleted = *in.IsCompleted
	}
	return st, nil
}

func (s *stubTasks) DeleteSubtask(context.Context, int64, int64) error { return nil }

func (s *stubTasks) Release(_ context.Context, keys []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = append(s.released, keys...)
}

func (s *stubTasks) releasedKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.released...)
}

// memoryNotes is an in-memory notes.Service
type memoryNotes struct {
	mu     sync.Mutex
	nextID int64
	notes  map[int64]*notes.Note
}

func newMemoryNotes() *memoryNotes {
	return &memoryNotes{notes: map[int64]*notes.Note{}}
}

func (m *memoryNotes) ListNotes(_ context.Context, projectID int64) ([]*notes.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := []*notes.Note{}
	for _, n := range m.notes {
		if n.ProjectID == projectID {
			list = append(list, n)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

func (m *memoryNotes) GetNote(_ context.Context, projectID, noteID int64) (*notes.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notes[noteID]
	if !ok || n.ProjectID != projectID {
		return nil, apierr.NotFound("Note not found")
	}
	return n, nil
}

func (m *memoryNotes) CreateNote(_ context.Context, projectID, authorID int64, content string) (*notes.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	n := &notes.Note{ID: m.nextID, ProjectID: projectID, Content: content, CreatedBy: notes.Author{ID: authorID}}
	m.notes[n.ID] = n
	return n, nil
}

func (m *memoryNotes) UpdateNote(_ context.Context, projectID, noteID int64, content string) (*notes.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notes[noteID]
	if !ok || n.ProjectID != projectID {
		return nil, apierr.NotFound("Note not found")
	}
	n.Content = content
	return n, nil
}

func (m *memoryNotes) DeleteNote(_ context.Context, projectID, noteID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notes[noteID]
	if !ok || n.ProjectID != projectID {
		return apierr.NotFound("Note not found or already deleted")
	}
	delete(m.notes, noteID)
	return nil
}

// memoryAudit collects audit events
type memoryAudit struct {
	mu     sync.Mutex
	events []*audit.Event
}

func (a *memoryAudit) Log(_ context.Context, e *audit.Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, e)
	return nil
}

func (a *memoryAudit) Close() error { return nil }

// find waits for the recorder to deliver an event of type eventType with
// the given status
func (a *memoryAudit) find(t *testing.T, eventType audit.EventType, status audit.EventStatus) *audit.Event {
	t.Helper()
	var found *audit.Event
	require.Eventually(t, func() bool {
		a.mu.Lock()
		defer a.mu.Unlock()
		for _, e := range a.events {
			if e.EventType == eventType && e.Status == status {
				found = e
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond, "no %s audit event with status %s", eventType, status)
	return found
}

// assertRecorded waits for an event of eventType with any status
func (a *memoryAudit) assertRecorded(t *testing.T, eventType audit.EventType) {
	t.Helper()
	assert.Eventually(t, func() bool {
		a.mu.Lock()
		defer a.mu.Unlock()
		for _, e := range a.events {
			if e.EventType == eventType {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond, "no %s audit event", eventType)
}

type testEnv struct {
	server   *Server
	users    *authtest.MemoryUserStore
	notifier *recordingNotifier
	uploader *memoryUploader
	projects *memoryProjects
	tasks    *stubTasks
	notes    *memoryNotes
	audit    *memoryAudit
}

func newTestEnv(t *testing.T, configure ...func(*config.Config)) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.RateLimit.Enabled = false
	for _, fn := range configure {
		fn(cfg)
	}

	users := authtest.NewMemoryUserStore()
	issuer, err := auth.NewTokenIssuer(auth.TokenConfig{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
	}, users)
	require.NoError(t, err)
	credentials := auth.NewCredentialService(users, issuer, auth.ServiceConfig{BcryptCost: 4})

	logger, _ := test.NewNullLogger()
	env := &testEnv{
		users:    users,
		notifier: newRecordingNotifier(),
		uploader: newMemoryUploader(),
		projects: newMemoryProjects(users),
		tasks:    &stubTasks{},
		notes:    newMemoryNotes(),
		audit:    &memoryAudit{},
	}
	env.server = NewServer(Dependencies{
		Config:      cfg,
		Logger:      logger,
		Credentials: credentials,
		Projects:    env.projects,
		Tasks:       env.tasks,
		Notes:       env.notes,
		Uploader:    env.uploader,
		Mailer:      env.notifier,
		Audit:       audit.NewRecorder(env.audit, logger),
	})
	return env
}

type envelope struct {
	Success    bool            `json:"success"`
	Message    string          `json:"message"`
	Data       json.RawMessage `json:"data"`
	StatusCode int             `json:"statusCode"`
	Field      string          `json:"field"`
}

// request issues a JSON request. token, when set, is sent as a bearer token.
func (e *testEnv) request(t *testing.T, method, path string, body interface{}, token string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return e.serve(t, req)
}

func (e *testEnv) serve(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	w := httptest.NewRecorder()
	e.server.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), "body: %s", w.Body.String())
	require.Equal(t, w.Code, env.StatusCode)
	return w, env
}

// signUp registers, verifies and logs in a user, returning the access token
func (e *testEnv) signUp(t *testing.T, email, username string) string {
	t.Helper()

	w, _ := e.request(t, http.MethodPost, "/api/v1/auth/register", map[string]string{
		"email": email, "username": username, "password": "Secret123",
	}, "")
	require.Equal(t, http.StatusCreated, w.Code)

	w, _ = e.request(t, http.MethodGet, "/api/v1/auth/verify/email/"+e.notifier.verification(email), nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	return e.login(t, email, "Secret123").AccessToken
}

func (e *testEnv) login(t *testing.T, email, password string) sessionResponse {
	t.Helper()

	w, env := e.request(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email": email, "password": password,
	}, "")
	require.Equal(t, http.StatusOK, w.Code, env.Message)

	var session sessionResponse
	require.NoError(t, json.Unmarshal(env.Data, &session))
	return session
}

func decodeData(t *testing.T, env envelope, dest interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, dest))
}
