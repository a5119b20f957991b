package ledger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	ledgerstore "github.com/dalemusser/stratadrive/internal/app/store/ledger"
	"github.com/dalemusser/stratadrive/internal/app/system/auth"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type chanRecorder chan ledgerstore.Entry

func (c chanRecorder) Create(_ context.Context, e ledgerstore.Entry) error {
	c <- e
	return nil
}

func wait(t *testing.T, c chanRecorder) ledgerstore.Entry {
	t.Helper()
	select {
	case e := <-c:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("no ledger entry recorded")
		return ledgerstore.Entry{}
	}
}

func TestMiddleware_RecordsErrorsWithAnnotations(t *testing.T) {
	rec := make(chanRecorder, 1)
	mw := Middleware(Config{Store: rec, Logger: zap.NewNop(), OnlyErrors: true})

	userID := primitive.NewObjectID()
	h := mw(TagUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		SetError(r.Context(), "move folder", "cyclic_move", "cannot move a folder into itself")
		w.WriteHeader(http.StatusBadRequest)
	})))

	req := httptest.NewRequest("PUT", "/api/folders/x/move?debug=1", nil)
	req = auth.WithTestUser(req, &auth.User{ID: userID})
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Header().Get(RequestIDHeader) == "" {
		t.Error("response should carry a request id")
	}

	e := wait(t, rec)
	if e.StatusCode != http.StatusBadRequest {
		t.Errorf("StatusCode = %d", e.StatusCode)
	}
	if e.ErrorClass != "cyclic_move" || e.Operation != "move folder" {
		t.Errorf("annotations = %q / %q", e.ErrorClass, e.Operation)
	}
	if e.UserID != userID.Hex() {
		t.Errorf("UserID = %q, want %q", e.UserID, userID.Hex())
	}
	if e.RemoteIP != "203.0.113.9" || e.Query != "debug=1" {
		t.Errorf("RemoteIP/Query = %q / %q", e.RemoteIP, e.Query)
	}
	if e.RequestID != w.Header().Get(RequestIDHeader) {
		t.Errorf("RequestID = %q, header = %q", e.RequestID, w.Header().Get(RequestIDHeader))
	}
}

func TestMiddleware_SkipsSuccessAndExcluded(t *testing.T) {
	rec := make(chanRecorder, 2)
	mw := Middleware(Config{Store: rec, Logger: zap.NewNop(), OnlyErrors: true, ExcludePaths: []string{"/health"}})

	ok := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("fine"))
	}))
	ok.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/files", nil))

	failing := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	failing.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/health", nil))

	select {
	case e := <-rec:
		t.Errorf("unexpected entry %+v", e)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestMiddleware_ClassifiesByStatus(t *testing.T) {
	rec := make(chanRecorder, 1)
	mw := Middleware(Config{Store: rec, Logger: zap.NewNop(), OnlyErrors: true})

	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	req := httptest.NewRequest("POST", "/api/auth/login", nil)
	req.Header.Set(RequestIDHeader, "client-supplied")
	h.ServeHTTP(httptest.NewRecorder(), req)

	e := wait(t, rec)
	if e.ErrorClass != "rate_limited" {
		t.Errorf("ErrorClass = %q, want rate_limited", e.ErrorClass)
	}
	if e.RequestID != "client-supplied" {
		t.Errorf("RequestID = %q, want the client's", e.RequestID)
	}
}

func TestSetError_OutsideMiddleware(t *testing.T) {
	SetError(context.Background(), "op", "class", "msg")
	if id := RequestID(context.Background()); id != "" {
		t.Errorf("RequestID() = %q, want empty", id)
	}
}
