// Package tasks manages the tasks, subtasks and attachments of a project.
//
// Every operation is scoped by project ID, so a task, subtask or attachment
// of another project is reported as not found. Assignees are resolved by
// email and must be members of the project.
//
// Deleting a task removes its subtasks and attachment rows in one
// transaction; the stored files are released afterwards and release failures
// are only logged. Uploads happen before the rows are written, and are
// released again when the write fails.
package tasks
