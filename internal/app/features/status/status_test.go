package status

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/dalemusser/stratadrive/internal/app/system/tasks"
	"github.com/dalemusser/stratadrive/internal/testutil"
	"go.uber.org/zap"
)

func TestServe(t *testing.T) {
	db := testutil.SetupTestDB(t)
	h := NewHandler(Config{
		Client:      db.Client(),
		BlobBackend: "memory",
		Jobs: func() []tasks.JobStatus {
			return []tasks.JobStatus{{Name: "trash-purge"}, {Name: "quota-reconcile"}}
		},
		Settings: []Setting{
			{Name: "storage_type", Value: "memory"},
			{Name: "jwt_secret", Value: "supersecretvalue", Secret: true},
		},
		Logger: zap.NewNop(),
	})

	rec := testutil.NewRecorder()
	Routes(h).ServeHTTP(rec, testutil.NewRequest("GET", "/"))
	rec.AssertStatus(t, http.StatusOK)

	var rep Report
	rec.DecodeJSON(t, &rep)
	if !rep.Database.Connected {
		t.Errorf("database = %+v, want connected", rep.Database)
	}
	if len(rep.Jobs) != 2 || rep.BlobBackend != "memory" {
		t.Errorf("jobs/backend = %v / %q", rep.Jobs, rep.BlobBackend)
	}
	if rep.Config["jwt_secret"] != "su************ue" {
		t.Errorf("jwt_secret shown as %q", rep.Config["jwt_secret"])
	}
	if rep.Config["storage_type"] != "memory" {
		t.Errorf("storage_type = %q", rep.Config["storage_type"])
	}
	if rep.Certificate != nil {
		t.Error("certificate should be omitted without a domain")
	}
}

func TestMask(t *testing.T) {
	tests := []struct{ in, want string }{
		{"", ""},
		{"abc", "****"},
		{"abcdef", "ab**ef"},
	}
	for _, tt := range tests {
		if got := mask(tt.in); got != tt.want {
			t.Errorf("mask(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRunJob(t *testing.T) {
	runner := tasks.New(zap.NewNop())
	var ran bool
	runner.Register(tasks.Job{Name: "trash-purge", Interval: time.Hour, Run: func(context.Context) error {
		ran = true
		return nil
	}})
	runner.Register(tasks.Job{Name: "broken", Interval: time.Hour, Run: func(context.Context) error {
		return errors.New("store unavailable")
	}})
	router := Routes(NewHandler(Config{Jobs: runner.Status, RunJob: runner.RunOnce, Logger: zap.NewNop()}))

	tests := []struct {
		name   string
		status int
	}{
		{"trash-purge", http.StatusOK},
		{"broken", http.StatusBadGateway},
		{"missing", http.StatusNotFound},
	}
	for _, tt := range tests {
		rec := testutil.NewRecorder()
		router.ServeHTTP(rec, testutil.NewRequest("POST", "/jobs/"+tt.name+"/run"))
		rec.AssertStatus(t, tt.status)
	}
	if !ran {
		t.Error("trash-purge did not run")
	}
	if st := runner.Status(); st[1].Failures != 1 {
		t.Errorf("broken status = %+v", st[1])
	}
}

func TestRunJob_NoRunner(t *testing.T) {
	rec := testutil.NewRecorder()
	Routes(NewHandler(Config{Logger: zap.NewNop()})).ServeHTTP(rec, testutil.NewRequest("POST", "/jobs/x/run"))
	rec.AssertStatus(t, http.StatusNotFound)
}
