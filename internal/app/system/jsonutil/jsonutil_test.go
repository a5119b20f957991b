package jsonutil

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWriters(t *testing.T) {
	tests := []struct {
		name   string
		write  func(http.ResponseWriter)
		status int
		body   string
	}{
		{"ok", func(w http.ResponseWriter) { OK(w, map[string]int{"n": 1}) }, http.StatusOK, `{"n":1}`},
		{"created", func(w http.ResponseWriter) { Created(w, map[string]string{"id": "x"}) }, http.StatusCreated, `{"id":"x"}`},
		{"nil body", func(w http.ResponseWriter) { JSON(w, http.StatusAccepted, nil) }, http.StatusAccepted, ``},
		{"bad request", func(w http.ResponseWriter) { BadRequest(w, "name is required") }, http.StatusBadRequest, `{"error":"name is required"}`},
		{"unauthorized", func(w http.ResponseWriter) { Unauthorized(w, "login required") }, http.StatusUnauthorized, `{"error":"login required"}`},
		{"forbidden", func(w http.ResponseWriter) { Forbidden(w, "no access") }, http.StatusForbidden, `{"error":"no access"}`},
		{"not found", func(w http.ResponseWriter) { NotFound(w, "file not found") }, http.StatusNotFound, `{"error":"file not found"}`},
		{"internal", func(w http.ResponseWriter) { InternalError(w, "database error") }, http.StatusInternalServerError, `{"error":"database error"}`},
		{"custom", func(w http.ResponseWriter) { Error(w, http.StatusConflict, "name taken") }, http.StatusConflict, `{"error":"name taken"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.write(rec)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}
			if got := strings.TrimSpace(rec.Body.String()); got != tt.body {
				t.Errorf("body = %s, want %s", got, tt.body)
			}
		})
	}
}

func TestDecode(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}
	tests := []struct {
		name    string
		body    string
		want    string
		wantErr error
	}{
		{"valid", `{"name":"Reports"}`, "Reports", nil},
		{"unknown fields ignored", `{"name":"a","extra":1}`, "a", nil},
		{"empty", ``, "", ErrEmptyBody},
		{"two values", `{"name":"a"}{"name":"b"}`, "a", ErrTrailingData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/", strings.NewReader(tt.body))
			var p payload
			err := Decode(r, &p)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Decode() error = %v, want %v", err, tt.wantErr)
			}
			if p.Name != tt.want {
				t.Errorf("Name = %q, want %q", p.Name, tt.want)
			}
		})
	}
}

func TestDecode_Malformed(t *testing.T) {
	r := httptest.NewRequest("POST", "/", strings.NewReader(`{"name":`))
	var v map[string]any
	err := Decode(r, &v)
	if err == nil || errors.Is(err, ErrEmptyBody) {
		t.Errorf("Decode() error = %v, want a syntax error", err)
	}
}

func TestDecode_TooLarge(t *testing.T) {
	big := `{"name":"` + strings.Repeat("x", MaxBodyBytes) + `"}`
	r := httptest.NewRequest("POST", "/", strings.NewReader(big))
	var v map[string]string
	err := Decode(r, &v)
	var tooBig *http.MaxBytesError
	if !errors.As(err, &tooBig) {
		t.Errorf("Decode() error = %v, want *http.MaxBytesError", err)
	}
}

func TestDecode_NoBody(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	if err := Decode(r, &struct{}{}); !errors.Is(err, ErrEmptyBody) {
		t.Errorf("Decode() error = %v, want ErrEmptyBody", err)
	}
}
