package apistats

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	apistatsstore "github.com/dalemusser/stratadrive/internal/app/store/apistats"
	"go.uber.org/zap"
)

type observation struct {
	statType apistatsstore.StatType
	isError  bool
}

type chanWriter chan observation

func (c chanWriter) Record(_ context.Context, statType apistatsstore.StatType, _ time.Duration, _ int64, isError bool) error {
	c <- observation{statType, isError}
	return nil
}

func TestMiddleware(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{"ok", http.StatusOK, false},
		{"created", http.StatusCreated, false},
		{"not found", http.StatusNotFound, true},
		{"server error", http.StatusInternalServerError, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs := make(chanWriter, 1)
			rec := NewRecorder(obs, time.Hour, zap.NewNop())
			h := rec.Middleware(apistatsstore.StatFolders)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

			select {
			case o := <-obs:
				if o.statType != apistatsstore.StatFolders || o.isError != tt.wantErr {
					t.Errorf("observation = %+v, want error=%v", o, tt.wantErr)
				}
			case <-time.After(2 * time.Second):
				t.Fatal("nothing recorded")
			}
		})
	}
}

func TestMiddleware_NilRecorder(t *testing.T) {
	var rec *Recorder
	called := false
	h := rec.Middleware(apistatsstore.StatAuth)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	if !called {
		t.Error("nil recorder should pass requests through")
	}
}
