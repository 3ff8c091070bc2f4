// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Overview
//
// Every response produced by taskhub uses the same envelope:
//
//	{"success": true, "message": "Project created", "data": {...}, "statusCode": 201}
//	{"success": false, "message": "access denied", "data": null, "statusCode": 403}
//
// # Response Helpers
//
//	httputil.WriteSuccess(w, http.StatusOK, "Tasks fetched", tasks)
//	httputil.WriteError(w, err) // err is usually an *apierr.Error
//
// Errors that are not an *apierr.Error are rendered as a generic 500 so that
// internal details never reach the client.
//
// # Request Parsing
//
//	var req createProjectRequest
//	if err := httputil.ParseJSON(r, &req); err != nil {
//		return err // *apierr.Error of kind BadRequest
//	}
//	projectID, err := httputil.ParsePathInt64(r, "projectID")
//
// # Middleware
//
//	handler := httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.RecoveryMiddleware(logger),
//		httputil.LoggingMiddleware(logger),
//	)(router)
//
// # Cookies
//
// SetAuthCookies and ClearAuthCookies manage the accessToken/refreshToken
// cookie pair (HttpOnly, Secure, fixed max age).
package httputil
