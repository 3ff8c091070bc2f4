package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/taskhub/pkg/apierr"
	"github.com/platinummonkey/taskhub/pkg/contextkeys"
)

// ParseJSON decodes a JSON request body into dest. A missing or empty body
// is not an error; dest keeps its zero values and validation reports the
// missing fields.
func ParseJSON(r *http.Request, dest interface{}) error {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}

	err := json.NewDecoder(r.Body).Decode(dest)
	var tooLarge *http.MaxBytesError
	var syntax *json.SyntaxError
	var mistyped *json.UnmarshalTypeError
	switch {
	case err == nil, errors.Is(err, io.EOF):
		return nil
	case errors.As(err, &tooLarge):
		return apierr.BadRequest("request body too large")
	case errors.As(err, &mistyped) && mistyped.Field != "":
		return apierr.Validation(mistyped.Field, mistyped.Field+" has the wrong type")
	case errors.As(err, &syntax), errors.Is(err, io.ErrUnexpectedEOF):
		return apierr.BadRequest("malformed JSON body")
	default:
		return apierr.BadRequest("invalid JSON body: " + err.Error())
	}
}

// ParsePathInt64 returns the positive integer route variable name
func ParsePathInt64(r *http.Request, name string) (int64, error) {
	raw, err := ParsePathString(r, name)
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, apierr.BadRequest("invalid " + name + ": " + raw)
	}
	return id, nil
}

// ParsePathString returns the route variable name, which must be present
func ParsePathString(r *http.Request, name string) (string, error) {
	if v := mux.Vars(r)[name]; v != "" {
		return v, nil
	}
	return "", apierr.BadRequest("missing path parameter: " + name)
}

// ClientIP returns the caller's address as resolved by ClientIPMiddleware.
// Without the middleware it falls back to the socket peer; forwarding
// headers are never read here.
func ClientIP(r *http.Request) string {
	if ip, ok := contextkeys.GetClientIP(r.Context()); ok {
		return ip
	}
	return remoteHost(r)
}

func remoteHost(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
