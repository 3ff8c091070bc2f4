// Package api implements the TaskHub HTTP API.
//
// # Routes
//
// Account routes live under /api/v1/auth and are public except for
// /password/change, /me and /logout. Project routes live under
// /api/v1/projects and require an access token; every route that names a
// {projectID} additionally passes through rbac.Authorizer, which admits only
// members whose role grants the route's action.
//
//	POST   /api/v1/auth/register
//	GET    /api/v1/auth/verify/email/{token}
//	POST   /api/v1/auth/verify/email/resend
//	POST   /api/v1/auth/login
//	POST   /api/v1/auth/password/forgot
//	POST   /api/v1/auth/password/reset/{token}
//	POST   /api/v1/auth/password/change
//	GET    /api/v1/auth/me
//	POST   /api/v1/auth/refresh
//	POST   /api/v1/auth/logout
//
//	POST   /api/v1/projects
//	GET    /api/v1/projects
//	GET    /api/v1/projects/{projectID}                        view_project
//	PUT    /api/v1/projects/{projectID}                        update_project
//	DELETE /api/v1/projects/{projectID}                        delete_project
//	GET    /api/v1/projects/{projectID}/members                view_project
//	POST   /api/v1/projects/{projectID}/members                add_members
//	DELETE /api/v1/projects/{projectID}/members/{memberID}     remove_members
//	PUT    /api/v1/projects/{projectID}/members/{memberID}/role update_role
//
// Tasks, subtasks, attachments and notes hang off the project in the same
// way; see registerTaskRoutes and registerNoteRoutes.
//
// # Responses
//
// Every response uses httputil.Envelope. Domain failures are *apierr.Error
// values and are rendered once, by httputil.WriteError.
//
// # Usage
//
//	server := api.NewServer(api.Dependencies{
//		Config:      cfg,
//		Logger:      logger,
//		Credentials: credentials,
//		Projects:    projects.NewPostgresService(db),
//		Tasks:       tasks.NewService(db, uploader, tasks.Config{}, logger),
//		Notes:       notes.NewPostgresService(db),
//		Uploader:    uploader,
//		Mailer:      dispatcher,
//	})
//	http.ListenAndServe(":8080", server)
package api
