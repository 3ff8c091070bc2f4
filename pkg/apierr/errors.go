package apierr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/lib/pq"
)

// Kind classifies a domain failure
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindBadRequest
	KindInvalidOrExpired
	KindNoOp
	KindInvalidCredentials
	KindUnauthorized
	KindSessionExpired
	KindForbidden
	KindNotFound
	KindConflict
	KindDuplicateName
	KindTooManyRequests
	KindUploadFailed
)

var kindNames = map[Kind]string{
	KindInternal:           "internal",
	KindValidation:         "validation",
	KindBadRequest:         "bad_request",
	KindInvalidOrExpired:   "invalid_or_expired",
	KindNoOp:               "no_op",
	KindInvalidCredentials: "invalid_credentials",
	KindUnauthorized:       "unauthorized",
	KindSessionExpired:     "session_expired",
	KindForbidden:          "forbidden",
	KindNotFound:           "not_found",
	KindConflict:           "conflict",
	KindDuplicateName:      "duplicate_name",
	KindTooManyRequests:    "too_many_requests",
	KindUploadFailed:       "upload_failed",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// StatusCode returns the HTTP status code for the kind
func (k Kind) StatusCode() int {
	switch k {
	case KindValidation, KindBadRequest, KindInvalidOrExpired, KindNoOp:
		return http.StatusBadRequest
	case KindInvalidCredentials, KindUnauthorized, KindSessionExpired:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict, KindDuplicateName:
		return http.StatusConflict
	case KindTooManyRequests:
		return http.StatusTooManyRequests
	case KindUploadFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error is the typed error returned by domain operations
type Error struct {
	Kind    Kind
	Message string
	Field   string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error with the same Kind, so sentinel comparisons work:
//
//	errors.Is(err, apierr.New(apierr.KindNotFound, ""))
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// StatusCode returns the HTTP status code for the error
func (e *Error) StatusCode() int {
	return e.Kind.StatusCode()
}

// New creates an error of the given kind
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an error of the given kind around a cause
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Validation(field, message string) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: message}
}

func BadRequest(message string) *Error { return New(KindBadRequest, message) }

func InvalidOrExpired(message string) *Error { return New(KindInvalidOrExpired, message) }

func NoOp(message string) *Error { return New(KindNoOp, message) }

func InvalidCredentials(message string) *Error { return New(KindInvalidCredentials, message) }

func Unauthorized(message string) *Error { return New(KindUnauthorized, message) }

func SessionExpired(message string) *Error { return New(KindSessionExpired, message) }

func Forbidden(message string) *Error { return New(KindForbidden, message) }

func NotFound(message string) *Error { return New(KindNotFound, message) }

func Conflict(message string) *Error { return New(KindConflict, message) }

func DuplicateName(message string) *Error { return New(KindDuplicateName, message) }

func TooManyRequests(message string) *Error { return New(KindTooManyRequests, message) }

func UploadFailed(err error) *Error { return Wrap(KindUploadFailed, "upload failed", err) }

// Internal wraps an unexpected failure. The cause is kept for logging but
// never rendered to clients.
func Internal(message string, err error) *Error { return Wrap(KindInternal, message, err) }

// KindOf returns the kind of err, or KindInternal when err is not an *Error
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindInternal
}

// IsKind reports whether err is an *Error of the given kind
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// As extracts the *Error from err. Errors that are not typed are wrapped as
// Internal.
func As(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return Internal("internal server error", err)
}

const pqUniqueViolation = "23505"

// IsUniqueViolation reports whether err is a PostgreSQL unique_violation
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqUniqueViolation
	}
	return false
}

// ConstraintName returns the violated constraint name for a PostgreSQL error
func ConstraintName(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Constraint
	}
	return ""
}

// FromPostgres classifies a database error. Unique violations become
// Conflict (or DuplicateName when the constraint is listed in nameConstraints),
// everything else becomes Internal with the given message.
func FromPostgres(err error, message string, nameConstraints ...string) *Error {
	if err == nil {
		return nil
	}
	if IsUniqueViolation(err) {
		constraint := ConstraintName(err)
		for _, c := range nameConstraints {
			if c == constraint {
				return Wrap(KindDuplicateName, message, err)
			}
		}
		return Wrap(KindConflict, message, err)
	}
	return Internal(message, err)
}
