package files

import (
	"bytes"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dalemusser/stratadrive/internal/app/drive"
	errorsfeature "github.com/dalemusser/stratadrive/internal/app/features/errors"
	"github.com/dalemusser/stratadrive/internal/app/system/blobstore"
	"github.com/dalemusser/stratadrive/internal/domain/models"
	"github.com/dalemusser/stratadrive/internal/testutil"
	"go.uber.org/zap"
)

type env struct {
	router http.Handler
	svc    *drive.Service
	blobs  *blobstore.Memory
	owner  testutil.TestUser
	other  testutil.TestUser
}

func setup(t *testing.T, limit int64, maxUpload int64) *env {
	t.Helper()
	db := testutil.SetupTestDB(t)
	logger := zap.NewNop()
	blobs := blobstore.NewMemory()
	svc := drive.New(db, blobs, drive.Config{}, logger)
	h := NewHandler(svc, maxUpload, errorsfeature.NewErrorLogger(logger), nil, logger)

	owner := testutil.InsertUser(t, db, "owner@example.com", limit)
	other := testutil.InsertUser(t, db, "other@example.com", 0)
	return &env{
		router: Routes(h),
		svc:    svc,
		blobs:  blobs,
		owner:  testutil.TestUser{ID: owner.ID, Email: owner.Email},
		other:  testutil.TestUser{ID: other.ID, Email: other.Email},
	}
}

func (e *env) do(req *http.Request) *testutil.ResponseRecorder {
	rec := testutil.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

// uploadRequest builds a multipart upload. An empty filename omits the file part.
func uploadRequest(t *testing.T, filename, content, folderID string, user testutil.TestUser) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if folderID != "" {
		if err := mw.WriteField("folderId", folderID); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := fw.Write([]byte(content)); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return testutil.WithUser(req, user)
}

func (e *env) upload(t *testing.T, filename, content string) models.File {
	t.Helper()
	rec := e.do(uploadRequest(t, filename, content, "", e.owner))
	rec.AssertStatus(t, http.StatusCreated)
	var f models.File
	rec.DecodeJSON(t, &f)
	return f
}

func TestUpload(t *testing.T) {
	e := setup(t, 0, 0)

	f := e.upload(t, "report.pdf", "%PDF-1.4 hello")
	if f.Name != "report.pdf" {
		t.Errorf("name = %q, want %q", f.Name, "report.pdf")
	}
	if f.Size != int64(len("%PDF-1.4 hello")) {
		t.Errorf("size = %d", f.Size)
	}
	if f.ContentType != "application/pdf" {
		t.Errorf("content type = %q, want application/pdf", f.ContentType)
	}
	if e.blobs.Len() != 1 {
		t.Errorf("blobs stored = %d, want 1", e.blobs.Len())
	}

	var list listResponse
	rec := e.do(testutil.NewAuthenticatedRequest(http.MethodGet, "/", e.owner))
	rec.AssertStatus(t, http.StatusOK)
	rec.DecodeJSON(t, &list)
	if len(list.Files) != 1 {
		t.Errorf("files = %d, want 1", len(list.Files))
	}
	if list.Storage.Used != f.Size {
		t.Errorf("storage used = %d, want %d", list.Storage.Used, f.Size)
	}
}

func TestUpload_IntoFolder(t *testing.T) {
	e := setup(t, 0, 0)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	folder, err := e.svc.CreateFolder(ctx, drive.Requester{ID: e.owner.ID, Email: e.owner.Email}, "Inbox", nil)
	if err != nil {
		t.Fatalf("CreateFolder() error = %v", err)
	}

	rec := e.do(uploadRequest(t, "a.txt", "abc", folder.ID.Hex(), e.owner))
	rec.AssertStatus(t, http.StatusCreated)
	rec.AssertContains(t, folder.ID.Hex())

	rec = e.do(uploadRequest(t, "a.txt", "abc", "bogus", e.owner))
	rec.AssertStatus(t, http.StatusBadRequest)
}

func TestUpload_Rejections(t *testing.T) {
	e := setup(t, 10, 64)

	rec := e.do(uploadRequest(t, "", "", "", e.owner))
	rec.AssertStatus(t, http.StatusBadRequest)
	rec.AssertContains(t, "No file uploaded")

	rec = e.do(uploadRequest(t, "big.bin", strings.Repeat("x", 65), "", e.owner))
	rec.AssertStatus(t, http.StatusRequestEntityTooLarge)
	rec.AssertContains(t, "upload limit")

	// Under the upload limit but over the 10 byte quota.
	rec = e.do(uploadRequest(t, "quota.bin", strings.Repeat("x", 11), "", e.owner))
	rec.AssertStatus(t, http.StatusRequestEntityTooLarge)
	rec.AssertContains(t, "quota")

	if e.blobs.Len() != 0 {
		t.Errorf("blobs stored = %d, want 0", e.blobs.Len())
	}
}

func TestDownload(t *testing.T) {
	e := setup(t, 0, 0)
	f := e.upload(t, "a.txt", "abc")

	var resp downloadResponse
	rec := e.do(testutil.NewAuthenticatedRequest(http.MethodGet, "/"+f.ID.Hex()+"/download", e.owner))
	rec.AssertStatus(t, http.StatusOK)
	rec.DecodeJSON(t, &resp)
	if !strings.HasPrefix(resp.DownloadURL, "memory://") {
		t.Errorf("downloadUrl = %q", resp.DownloadURL)
	}
	if resp.ExpiresAt.IsZero() {
		t.Error("expiresAt not set")
	}

	rec = e.do(testutil.NewAuthenticatedRequest(http.MethodGet, "/"+f.ID.Hex()+"/download", e.other))
	rec.AssertStatus(t, http.StatusForbidden)
}

func TestShareAndSharedList(t *testing.T) {
	e := setup(t, 0, 0)
	f := e.upload(t, "a.txt", "abc")

	rec := e.do(testutil.NewAuthenticatedJSONRequest(http.MethodPost, "/"+f.ID.Hex()+"/share",
		map[string]string{"email": "other@example.com"}, e.owner))
	rec.AssertStatus(t, http.StatusOK)

	var shared []models.File
	rec = e.do(testutil.NewAuthenticatedRequest(http.MethodGet, "/shared", e.other))
	rec.AssertStatus(t, http.StatusOK)
	rec.DecodeJSON(t, &shared)
	if len(shared) != 1 || shared[0].ID != f.ID {
		t.Errorf("shared = %+v, want the uploaded file", shared)
	}

	e.do(testutil.NewAuthenticatedRequest(http.MethodGet, "/"+f.ID.Hex()+"/download", e.other)).
		AssertStatus(t, http.StatusOK)

	rec = e.do(testutil.NewAuthenticatedRequest(http.MethodDelete, "/"+f.ID.Hex(), e.other))
	rec.AssertStatus(t, http.StatusForbidden)

	rec = e.do(testutil.NewAuthenticatedJSONRequest(http.MethodDelete, "/"+f.ID.Hex()+"/share",
		map[string]string{"email": "other@example.com"}, e.owner))
	rec.AssertStatus(t, http.StatusOK)

	rec = e.do(testutil.NewAuthenticatedRequest(http.MethodGet, "/"+f.ID.Hex()+"/download", e.other))
	rec.AssertStatus(t, http.StatusForbidden)
}

func TestRenameMoveStar(t *testing.T) {
	e := setup(t, 0, 0)
	f := e.upload(t, "a.txt", "abc")

	rec := e.do(testutil.NewAuthenticatedJSONRequest(http.MethodPut, "/"+f.ID.Hex(),
		map[string]string{"newName": "b.txt"}, e.owner))
	rec.AssertStatus(t, http.StatusOK)
	rec.AssertContains(t, `"name":"b.txt"`)

	rec = e.do(testutil.NewAuthenticatedJSONRequest(http.MethodPut, "/"+f.ID.Hex(),
		map[string]string{"newName": "../evil"}, e.owner))
	rec.AssertStatus(t, http.StatusBadRequest)

	rec = e.do(testutil.NewAuthenticatedJSONRequest(http.MethodPut, "/"+f.ID.Hex()+"/move",
		map[string]string{"destinationFolderId": "507f1f77bcf86cd799439011"}, e.owner))
	rec.AssertStatus(t, http.StatusNotFound)

	rec = e.do(testutil.NewAuthenticatedRequest(http.MethodPut, "/"+f.ID.Hex()+"/star", e.owner))
	rec.AssertStatus(t, http.StatusOK)
	rec.AssertContains(t, `"is_starred":true`)
}

func TestTrashRestorePermanentDelete(t *testing.T) {
	e := setup(t, 0, 0)
	f := e.upload(t, "a.txt", "abc")

	rec := e.do(testutil.NewAuthenticatedRequest(http.MethodDelete, "/"+f.ID.Hex(), e.owner))
	rec.AssertStatus(t, http.StatusOK)
	rec.AssertContains(t, `"is_deleted":true`)

	rec = e.do(testutil.NewAuthenticatedRequest(http.MethodPut, "/"+f.ID.Hex()+"/restore", e.owner))
	rec.AssertStatus(t, http.StatusOK)
	rec.AssertContains(t, `"is_deleted":false`)

	rec = e.do(testutil.NewAuthenticatedRequest(http.MethodDelete, "/"+f.ID.Hex()+"/permanent", e.owner))
	rec.AssertStatus(t, http.StatusOK)

	if e.blobs.Len() != 0 {
		t.Errorf("blobs left = %d, want 0", e.blobs.Len())
	}

	var list listResponse
	rec = e.do(testutil.NewAuthenticatedRequest(http.MethodGet, "/", e.owner))
	rec.DecodeJSON(t, &list)
	if list.Storage.Used != 0 {
		t.Errorf("storage used = %d, want 0", list.Storage.Used)
	}

	rec = e.do(testutil.NewAuthenticatedRequest(http.MethodGet, "/"+f.ID.Hex(), e.owner))
	rec.AssertStatus(t, http.StatusNotFound)
}

func TestPermanentDelete_BlobFailure(t *testing.T) {
	e := setup(t, 0, 0)
	f := e.upload(t, "a.txt", "abc")
	e.blobs.FailOn("delete", errors.New("storage unavailable"))

	rec := e.do(testutil.NewAuthenticatedRequest(http.MethodDelete, "/"+f.ID.Hex()+"/permanent", e.owner))
	rec.AssertStatus(t, http.StatusBadGateway)

	e.do(testutil.NewAuthenticatedRequest(http.MethodGet, "/"+f.ID.Hex(), e.owner)).
		AssertStatus(t, http.StatusOK)
}

func TestListFilter(t *testing.T) {
	e := setup(t, 0, 0)
	e.upload(t, "photo.png", "\x89PNG\r\n\x1a\n")
	e.upload(t, "notes.txt", "hello")

	var list listResponse
	rec := e.do(testutil.NewAuthenticatedRequest(http.MethodGet, "/?type=image/", e.owner))
	rec.AssertStatus(t, http.StatusOK)
	rec.DecodeJSON(t, &list)
	if len(list.Files) != 1 || list.Files[0].Name != "photo.png" {
		t.Errorf("image filter = %+v", list.Files)
	}

	rec = e.do(testutil.NewAuthenticatedRequest(http.MethodGet, "/?search=NOTES", e.owner))
	rec.DecodeJSON(t, &list)
	if len(list.Files) != 1 || list.Files[0].Name != "notes.txt" {
		t.Errorf("search = %+v", list.Files)
	}
}

func TestBadID(t *testing.T) {
	e := setup(t, 0, 0)

	rec := e.do(testutil.NewAuthenticatedRequest(http.MethodGet, "/not-an-id", e.owner))
	rec.AssertStatus(t, http.StatusBadRequest)
	rec.AssertContains(t, "invalid file id")

	rec = e.do(testutil.NewAuthenticatedRequest(http.MethodGet, "/not-an-id/download", e.owner))
	rec.AssertStatus(t, http.StatusBadRequest)

	rec = e.do(testutil.NewAuthenticatedRequest(http.MethodDelete, "/not-an-id/permanent", e.owner))
	rec.AssertStatus(t, http.StatusBadRequest)
}
