package statsfeature

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/dalemusser/stratadrive/internal/app/drive"
	errorsfeature "github.com/dalemusser/stratadrive/internal/app/features/errors"
	statsstore "github.com/dalemusser/stratadrive/internal/app/store/stats"
	"github.com/dalemusser/stratadrive/internal/app/system/blobstore"
	"github.com/dalemusser/stratadrive/internal/testutil"
	"go.uber.org/zap"
)

func setup(t *testing.T) http.Handler {
	t.Helper()
	db := testutil.SetupTestDB(t)
	logger := zap.NewNop()
	svc := drive.New(db, blobstore.NewMemory(), drive.Config{}, logger)
	store := statsstore.New(db)

	ctx, cancel := testutil.TestContext()
	defer cancel()
	u := testutil.InsertUser(t, db, "stats@example.com", 0)
	who := drive.Requester{ID: u.ID, Email: u.Email}
	if _, err := svc.Upload(ctx, who, drive.UploadInput{Name: "a.txt", Size: 2, Body: strings.NewReader("hi")}); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	for _, d := range []int{0, 5, 40} {
		if err := store.SetCounters(ctx, time.Now().AddDate(0, 0, -d), statsstore.TypeDrive, map[string]int64{"files": int64(d)}); err != nil {
			t.Fatalf("SetCounters() error = %v", err)
		}
	}

	return Routes(NewHandler(svc, store, errorsfeature.NewErrorLogger(logger), logger))
}

func TestServeTotals(t *testing.T) {
	router := setup(t)
	rec := testutil.NewRecorder()
	router.ServeHTTP(rec, testutil.NewRequest("GET", "/"))
	rec.AssertStatus(t, http.StatusOK)

	var got drive.Totals
	rec.DecodeJSON(t, &got)
	if got.Users != 1 || got.Files != 1 || got.StoredBytes != 2 {
		t.Errorf("totals = %+v", got)
	}
}

func TestServeDaily(t *testing.T) {
	router := setup(t)

	tests := []struct {
		target string
		status int
		days   int
	}{
		{"/daily", http.StatusOK, 2},
		{"/daily?days=1", http.StatusOK, 1},
		{"/daily?days=90", http.StatusOK, 3},
		{"/daily?days=zero", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rec := testutil.NewRecorder()
			router.ServeHTTP(rec, testutil.NewRequest("GET", tt.target))
			rec.AssertStatus(t, tt.status)
			if tt.status != http.StatusOK {
				return
			}
			var got []statsstore.DailyStats
			rec.DecodeJSON(t, &got)
			if len(got) != tt.days {
				t.Errorf("days = %d, want %d", len(got), tt.days)
			}
		})
	}
}
