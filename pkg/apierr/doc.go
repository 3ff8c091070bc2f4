// Package apierr defines the single typed error raised by every domain
// operation in taskhub.
//
// An *Error carries a Kind, a human readable message, an optional field name
// for validation failures and an optional wrapped cause. The Kind determines
// the HTTP status code used when the error reaches the boundary:
//
//	if err := store.AddMember(ctx, ...); err != nil {
//		httputil.WriteError(w, err) // renders {success:false, message, data:null, statusCode}
//	}
//
// Storage-level unique violations are translated with FromPostgres so they
// surface as Conflict or DuplicateName instead of Internal.
package apierr
