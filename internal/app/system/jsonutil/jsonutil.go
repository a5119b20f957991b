// Package jsonutil writes JSON responses and reads JSON request bodies for
// the drive API. Error bodies always have the shape {"error": "..."}.
package jsonutil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// MaxBodyBytes caps a decoded request body. Uploads never go through
// Decode; they stream as multipart.
const MaxBodyBytes = 1 << 20

var (
	// ErrEmptyBody is returned by Decode when the request has no body.
	ErrEmptyBody = errors.New("request body is empty")
	// ErrTrailingData is returned when the body holds more than one value.
	ErrTrailingData = errors.New("request body must contain a single JSON value")
)

type errorBody struct {
	Error string `json:"error"`
}

// JSON encodes v with the given status. A nil v writes headers only.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func OK(w http.ResponseWriter, v any)      { JSON(w, http.StatusOK, v) }
func Created(w http.ResponseWriter, v any) { JSON(w, http.StatusCreated, v) }

// Error writes {"error": msg}. Callers log the underlying cause; msg is
// what the client sees.
func Error(w http.ResponseWriter, status int, msg string) {
	JSON(w, status, errorBody{Error: msg})
}

func BadRequest(w http.ResponseWriter, msg string)    { Error(w, http.StatusBadRequest, msg) }
func Unauthorized(w http.ResponseWriter, msg string)  { Error(w, http.StatusUnauthorized, msg) }
func Forbidden(w http.ResponseWriter, msg string)     { Error(w, http.StatusForbidden, msg) }
func NotFound(w http.ResponseWriter, msg string)      { Error(w, http.StatusNotFound, msg) }
func InternalError(w http.ResponseWriter, msg string) { Error(w, http.StatusInternalServerError, msg) }

// Decode reads one JSON value from r.Body into v. Bodies larger than
// MaxBodyBytes fail with an *http.MaxBytesError.
func Decode(r *http.Request, v any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return ErrEmptyBody
	}
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, MaxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return ErrEmptyBody
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return ErrTrailingData
	}
	return nil
}
