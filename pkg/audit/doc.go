// Package audit records security-relevant events: account activity,
// authorization denials and project membership changes.
//
// # Overview
//
// Events are written through a Logger. DBLogger persists them to the
// audit_events table, LogrusLogger writes structured log lines and
// MultiLogger fans out to several destinations. Handlers use a Recorder,
// which never lets a failed write affect the request.
//
// # Usage Example
//
//	recorder := audit.NewRecorder(audit.NewMultiLogger(dbLogger, audit.NewLogrusLogger(log)), log)
//
//	recorder.Record(ctx, audit.NewEvent(ctx, audit.EventTypeAccessDenied, audit.EventStatusDenied).
//		WithUser(identity.UserID).
//		WithProject(projectID))
package audit
