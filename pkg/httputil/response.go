package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/platinummonkey/taskhub/pkg/apierr"
)

// Envelope is the uniform response body
type Envelope struct {
	Success    bool        `json:"success"`
	Message    string      `json:"message"`
	Data       interface{} `json:"data"`
	StatusCode int         `json:"statusCode"`
	Field      string      `json:"field,omitempty"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a successful envelope
func WriteSuccess(w http.ResponseWriter, status int, message string, data interface{}) error {
	return WriteJSON(w, status, Envelope{
		Success:    true,
		Message:    message,
		Data:       data,
		StatusCode: status,
	})
}

// WriteOK writes a 200 envelope
func WriteOK(w http.ResponseWriter, message string, data interface{}) error {
	return WriteSuccess(w, http.StatusOK, message, data)
}

// WriteCreated writes a 201 envelope
func WriteCreated(w http.ResponseWriter, message string, data interface{}) error {
	return WriteSuccess(w, http.StatusCreated, message, data)
}

// WriteError renders err as a failure envelope. Internal errors are reduced
// to a generic message.
func WriteError(w http.ResponseWriter, err error) {
	apiErr := apierr.As(err)
	status := apiErr.StatusCode()

	message := apiErr.Message
	if apiErr.Kind == apierr.KindInternal || message == "" {
		message = http.StatusText(status)
	}

	WriteJSON(w, status, Envelope{
		Success:    false,
		Message:    message,
		Data:       nil,
		StatusCode: status,
		Field:      apiErr.Field,
	})
}
