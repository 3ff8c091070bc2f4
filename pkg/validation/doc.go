// Package validation checks request input before it reaches the services.
//
// # Overview
//
// Each check returns nil or an *apierr.Error of kind Validation carrying the
// offending field, which the HTTP layer renders as a 400 with a "field" key.
//
// # Rules
//
//   - Email: a bare address accepted by net/mail
//   - Username: 3 to 20 characters
//   - Password: 6 to 16 characters with an uppercase letter, a lowercase
//     letter and a digit
//   - Project name, task title, note content: non-blank after trimming
//   - Member role: project_admin or member; admin is never assignable
//
// # Usage Example
//
//	v := validation.NewValidator(nil)
//	if err := validation.First(
//		v.Email("email", req.Email),
//		v.Username(req.Username),
//		v.Password("password", req.Password),
//	); err != nil {
//		httputil.WriteError(w, err)
//		return
//	}
package validation
