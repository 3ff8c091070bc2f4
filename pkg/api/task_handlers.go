package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/taskhub/pkg/apierr"
	"github.com/platinummonkey/taskhub/pkg/httputil"
	"github.com/platinummonkey/taskhub/pkg/rbac"
	"github.com/platinummonkey/taskhub/pkg/tasks"
	"github.com/platinummonkey/taskhub/pkg/validation"
)

const attachmentsField = "attachments"

// registerTaskRoutes registers task, subtask and attachment routes
func (s *Server) registerTaskRoutes(r *mux.Router) {
	s.gate(r, http.MethodGet, "/{projectID}/tasks", rbac.ActionViewTasks, s.listTasks)
	s.gate(r, http.MethodPost, "/{projectID}/tasks", rbac.ActionAddTask, s.createTask)
	s.gate(r, http.MethodGet, "/{projectID}/tasks/{taskID}", rbac.ActionViewTasks, s.getTask)
	s.gate(r, http.MethodPut, "/{projectID}/tasks/{taskID}", rbac.ActionUpdateTask, s.updateTask)
	s.gate(r, http.MethodDelete, "/{projectID}/tasks/{taskID}", rbac.ActionDeleteTask, s.deleteTask)

	s.gate(r, http.MethodPost, "/{projectID}/tasks/{taskID}/attachments", rbac.ActionAddAttachments, s.addAttachments)
	s.gate(r, http.MethodDelete, "/{projectID}/attachments/{attachmentID}", rbac.ActionDeleteAttachments, s.deleteAttachment)

	s.gate(r, http.MethodPost, "/{projectID}/tasks/{taskID}/subtasks", rbac.ActionAddSubtask, s.createSubtask)
	s.gate(r, http.MethodPut, "/{projectID}/subtasks/{subtaskID}", rbac.ActionUpdateSubtask, s.updateSubtask)
	s.gate(r, http.MethodDelete, "/{projectID}/subtasks/{subtaskID}", rbac.ActionDeleteSubtask, s.deleteSubtask)
}

type createTaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Email       string `json:"email"`
}

type updateTaskRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Email       *string `json:"email"`
	Status      *string `json:"status"`
}

type subtaskRequest struct {
	Title       *string `json:"title"`
	IsCompleted *bool   `json:"isCompleted"`
}

// listTasks handles GET /api/v1/projects/{projectID}/tasks
func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	list, err := s.tasks.ListTasks(r.Context(), projectID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteOK(w, "Tasks fetched successfully", list)
}

// getTask handles GET /api/v1/projects/{projectID}/tasks/{taskID}
func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	taskID, err := httputil.ParsePathInt64(r, "taskID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	task, err := s.tasks.GetTask(r.Context(), projectID(r), taskID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteOK(w, "Task fetched successfully", task)
}

// createTask handles POST /api/v1/projects/{projectID}/tasks. Attachments
// may be posted in a multipart form under "attachments".
func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	var uploads []tasks.Upload

	if isMultipart(r) {
		cleanup, err := s.parseMultipart(r)
		defer cleanup()
		if err != nil {
			s.fail(w, r, err)
			return
		}
		req = createTaskRequest{
			Title:       formValue(r, "title"),
			Description: formValue(r, "description"),
			Email:       formValue(r, "email"),
		}
		var closeFiles func()
		uploads, closeFiles, err = s.formFiles(r, attachmentsField)
		defer closeFiles()
		if err != nil {
			s.fail(w, r, err)
			return
		}
	} else if !s.decode(w, r, &req) {
		return
	}

	if err := validation.First(
		s.validator.Name("title", req.Title, "Title is required"),
		s.validator.Email("email", req.Email),
	); err != nil {
		s.fail(w, r, err)
		return
	}

	task, err := s.tasks.CreateTask(r.Context(), projectID(r), tasks.CreateTaskInput{
		Title:         req.Title,
		Description:   req.Description,
		AssigneeEmail: req.Email,
		AssignedBy:    s.caller(r).UserID,
	}, uploads)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteCreated(w, "Task created successfully", task)
}

// updateTask handles PUT /api/v1/projects/{projectID}/tasks/{taskID}
func (s *Server) updateTask(w http.ResponseWriter, r *http.Request) {
	taskID, err := httputil.ParsePathInt64(r, "taskID")
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var req updateTaskRequest
	if !s.decode(w, r, &req) {
		return
	}

	in := tasks.UpdateTaskInput{
		Title:         req.Title,
		Description:   req.Description,
		AssigneeEmail: req.Email,
	}
	if req.Title != nil {
		if err := s.validator.Name("title", *req.Title, "Title is required"); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	if req.Email != nil {
		if err := s.validator.Email("email", *req.Email); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	if req.Status != nil {
		if err := s.validator.OneOf("status", *req.Status, tasks.Statuses()); err != nil {
			s.fail(w, r, err)
			return
		}
		status := tasks.Status(*req.Status)
		in.Status = &status
	}

	task, err := s.tasks.UpdateTask(r.Context(), projectID(r), taskID, in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteOK(w, "Task updated successfully", task)
}

// deleteTask handles DELETE /api/v1/projects/{projectID}/tasks/{taskID}
func (s *Server) deleteTask(w http.ResponseWriter, r *http.Request) {
	taskID, err := httputil.ParsePathInt64(r, "taskID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.tasks.DeleteTask(r.Context(), projectID(r), taskID); err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteOK(w, "Task deleted successfully", nil)
}

// addAttachments handles POST /api/v1/projects/{projectID}/tasks/{taskID}/attachments
func (s *Server) addAttachments(w http.ResponseWriter, r *http.Request) {
	taskID, err := httputil.ParsePathInt64(r, "taskID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !isMultipart(r) {
		s.fail(w, r, apierr.BadRequest("Please add attachments"))
		return
	}

	cleanup, err := s.parseMultipart(r)
	defer cleanup()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	uploads, closeFiles, err := s.formFiles(r, attachmentsField)
	defer closeFiles()
	if err != nil {
		s.fail(w, r, err)
		return
	}

	attachments, err := s.tasks.AddAttachments(r.Context(), projectID(r), taskID, uploads)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteCreated(w, "Attachments added successfully", attachments)
}

// deleteAttachment handles DELETE /api/v1/projects/{projectID}/attachments/{attachmentID}
func (s *Server) deleteAttachment(w http.ResponseWriter, r *http.Request) {
	attachmentID, err := httputil.ParsePathInt64(r, "attachmentID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.tasks.DeleteAttachment(r.Context(), projectID(r), attachmentID); err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteOK(w, "Attachment deleted successfully", nil)
}

// createSubtask handles POST /api/v1/projects/{projectID}/tasks/{taskID}/subtasks
func (s *Server) createSubtask(w http.ResponseWriter, r *http.Request) {
	taskID, err := httputil.ParsePathInt64(r, "taskID")
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var req subtaskRequest
	if !s.decode(w, r, &req) {
		return
	}
	title := ""
	if req.Title != nil {
		title = *req.Title
	}
	if err := s.validator.Name("title", title, "Title is required"); err != nil {
		s.fail(w, r, err)
		return
	}

	subtask, err := s.tasks.CreateSubtask(r.Context(), projectID(r), taskID, title, s.caller(r).UserID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteCreated(w, "Subtask created successfully", subtask)
}

// updateSubtask handles PUT /api/v1/projects/{projectID}/subtasks/{subtaskID}
func (s *Server) updateSubtask(w http.ResponseWriter, r *http.Request) {
	subtaskID, err := httputil.ParsePathInt64(r, "subtaskID")
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var req subtaskRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Title != nil {
		if err := s.validator.Name("title", *req.Title, "Title is required"); err != nil {
			s.fail(w, r, err)
			return
		}
	}

	subtask, err := s.tasks.UpdateSubtask(r.Context(), projectID(r), subtaskID, tasks.UpdateSubtaskInput{
		Title:       req.Title,
		IsCompleted: req.IsCompleted,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteOK(w, "Subtask updated successfully", subtask)
}

// deleteSubtask handles DELETE /api/v1/projects/{projectID}/subtasks/{subtaskID}
func (s *Server) deleteSubtask(w http.ResponseWriter, r *http.Request) {
	subtaskID, err := httputil.ParsePathInt64(r, "subtaskID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.tasks.DeleteSubtask(r.Context(), projectID(r), subtaskID); err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteOK(w, "Subtask deleted successfully", nil)
}
