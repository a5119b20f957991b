// Package files provides the JSON API for uploaded files: upload, listing,
// signed downloads, rename, move, share, star, trash and permanent delete.
package files

import (
	"errors"
	"net/http"
	"time"

	"github.com/dalemusser/stratadrive/internal/app/drive"
	errorsfeature "github.com/dalemusser/stratadrive/internal/app/features/errors"
	"github.com/dalemusser/stratadrive/internal/app/store/quota"
	"github.com/dalemusser/stratadrive/internal/app/system/auditlog"
	"github.com/dalemusser/stratadrive/internal/app/system/authz"
	"github.com/dalemusser/stratadrive/internal/app/system/inputval"
	"github.com/dalemusser/stratadrive/internal/app/system/jsonutil"
	"github.com/dalemusser/stratadrive/internal/app/system/mailer"
	"github.com/dalemusser/stratadrive/internal/app/system/normalize"
	"github.com/dalemusser/stratadrive/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// DefaultMaxUploadSize is used when the handler is built with a zero limit.
const DefaultMaxUploadSize int64 = 100 << 20

// multipartMemory is how much of a multipart body is kept in memory before
// parts spill to temporary files.
const multipartMemory = 32 << 20

// Handler serves file requests.
type Handler struct {
	svc           *drive.Service
	maxUploadSize int64
	errLog        *errorsfeature.ErrorLogger
	audit         *auditlog.Logger
	notify        *mailer.Notifier
	logger        *zap.Logger
}

// NewHandler creates a new files Handler.
func NewHandler(svc *drive.Service, maxUploadSize int64, errLog *errorsfeature.ErrorLogger, audit *auditlog.Logger, logger *zap.Logger) *Handler {
	if maxUploadSize <= 0 {
		maxUploadSize = DefaultMaxUploadSize
	}
	return &Handler{
		svc:           svc,
		maxUploadSize: maxUploadSize,
		errLog:        errLog,
		audit:         audit,
		logger:        logger,
	}
}

// SetNotifier enables share notification email. Passing nil disables it.
func (h *Handler) SetNotifier(n *mailer.Notifier) {
	h.notify = n
}

// Routes returns a chi.Router with file routes mounted.
//
// When mounted at /api/files:
//   - POST   /upload           multipart upload ("file", optional "folderId")
//   - GET    /                 own files with storage usage (?type=, ?search=)
//   - GET    /shared           files shared with the caller
//   - GET    /{id}             file metadata
//   - GET    /{id}/download    time-limited download URL
//   - PUT    /{id}             rename
//   - PUT    /{id}/move        move to another folder or the root
//   - POST   /{id}/share       share with an email
//   - DELETE /{id}/share       revoke a share
//   - PUT    /{id}/star        toggle star
//   - DELETE /{id}             move to trash
//   - PUT    /{id}/restore     restore from trash
//   - DELETE /{id}/permanent   delete content and record, release quota
func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Post("/upload", h.upload)
	r.Get("/", h.list)
	r.Get("/shared", h.shared)

	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Get("/download", h.download)
		r.Put("/", h.rename)
		r.Put("/move", h.move)
		r.Post("/share", h.share)
		r.Delete("/share", h.unshare)
		r.Put("/star", h.star)
		r.Delete("/", h.trash)
		r.Put("/restore", h.restore)
		r.Delete("/permanent", h.purge)
	})
	return r
}

type renameRequest struct {
	NewName string `json:"newName" validate:"required" label:"New name"`
}

type moveRequest struct {
	DestinationFolderID string `json:"destinationFolderId" validate:"folderref" label:"Destination folder"`
}

type shareRequest struct {
	Email string `json:"email" validate:"required,email" label:"Email"`
}

type listResponse struct {
	Files   []models.File `json:"files"`
	Storage quota.Usage   `json:"storage"`
}

type downloadResponse struct {
	DownloadURL string    `json:"downloadUrl"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	who, ok := requester(w, r)
	if !ok {
		return
	}

	// Leave room for the multipart framing around the file itself.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize+1<<20)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			h.tooLarge(w)
			return
		}
		jsonutil.BadRequest(w, "No file uploaded")
		return
	}
	defer r.MultipartForm.RemoveAll()

	part, header, err := r.FormFile("file")
	if err != nil {
		jsonutil.BadRequest(w, "No file uploaded")
		return
	}
	defer part.Close()

	if header.Size > h.maxUploadSize {
		h.tooLarge(w)
		return
	}

	folderID, valid := inputval.ParseFolderRef(r.FormValue("folderId"))
	if !valid {
		jsonutil.BadRequest(w, "folderId is not a valid folder.")
		return
	}

	f, err := h.svc.Upload(r.Context(), who, drive.UploadInput{
		FolderID:    folderID,
		Name:        header.Filename,
		Size:        header.Size,
		ContentType: contentTypeOf(header, part),
		Body:        part,
	})
	if err != nil {
		h.errLog.Respond(w, r, "upload file", err)
		return
	}

	h.logger.Debug("file uploaded",
		zap.String("file_id", f.ID.Hex()),
		zap.String("owner_id", who.ID.Hex()),
		zap.Int64("size", f.Size))
	jsonutil.Created(w, f)
}

func (h *Handler) tooLarge(w http.ResponseWriter) {
	jsonutil.Error(w, http.StatusRequestEntityTooLarge,
		"file exceeds the "+FormatFileSize(h.maxUploadSize)+" upload limit")
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	who, ok := requester(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	files, usage, err := h.svc.ListFiles(r.Context(), who, drive.FileFilter{
		ContentType: normalize.QueryParam(q.Get("type")),
		Search:      normalize.QueryParam(q.Get("search")),
	})
	if err != nil {
		h.errLog.Respond(w, r, "list files", err)
		return
	}
	jsonutil.OK(w, listResponse{Files: files, Storage: usage})
}

func (h *Handler) shared(w http.ResponseWriter, r *http.Request) {
	who, ok := requester(w, r)
	if !ok {
		return
	}
	files, err := h.svc.ListSharedFiles(r.Context(), who)
	if err != nil {
		h.errLog.Respond(w, r, "list shared files", err)
		return
	}
	jsonutil.OK(w, files)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	who, id, ok := requesterAndID(w, r)
	if !ok {
		return
	}
	f, err := h.svc.GetFile(r.Context(), who, id)
	if err != nil {
		h.errLog.Respond(w, r, "get file", err)
		return
	}
	jsonutil.OK(w, f)
}

func (h *Handler) download(w http.ResponseWriter, r *http.Request) {
	who, id, ok := requesterAndID(w, r)
	if !ok {
		return
	}
	url, expires, err := h.svc.DownloadURL(r.Context(), who, id)
	if err != nil {
		h.errLog.Respond(w, r, "create download url", err)
		return
	}
	jsonutil.OK(w, downloadResponse{DownloadURL: url, ExpiresAt: expires})
}

func (h *Handler) rename(w http.ResponseWriter, r *http.Request) {
	who, id, ok := requesterAndID(w, r)
	if !ok {
		return
	}
	var req renameRequest
	if !decode(w, r, &req) {
		return
	}
	f, err := h.svc.RenameFile(r.Context(), who, id, req.NewName)
	if err != nil {
		h.errLog.Respond(w, r, "rename file", err)
		return
	}
	jsonutil.OK(w, f)
}

func (h *Handler) move(w http.ResponseWriter, r *http.Request) {
	who, id, ok := requesterAndID(w, r)
	if !ok {
		return
	}
	var req moveRequest
	if !decode(w, r, &req) {
		return
	}
	dest, _ := inputval.ParseFolderRef(req.DestinationFolderID)

	f, err := h.svc.MoveFile(r.Context(), who, id, dest)
	if err != nil {
		h.errLog.Respond(w, r, "move file", err)
		return
	}
	jsonutil.OK(w, f)
}

func (h *Handler) share(w http.ResponseWriter, r *http.Request) {
	who, id, ok := requesterAndID(w, r)
	if !ok {
		return
	}
	var req shareRequest
	if !decode(w, r, &req) {
		return
	}
	f, err := h.svc.ShareFile(r.Context(), who, id, req.Email)
	if err != nil {
		h.errLog.Respond(w, r, "share file", err)
		return
	}
	h.audit.ShareGranted(r, who.ID, "file", id.Hex(), normalize.Email(req.Email))
	h.notify.ShareGranted(authz.DisplayName(r), normalize.Email(req.Email), "file", f.Name)
	jsonutil.OK(w, f)
}

func (h *Handler) unshare(w http.ResponseWriter, r *http.Request) {
	who, id, ok := requesterAndID(w, r)
	if !ok {
		return
	}
	var req shareRequest
	if !decode(w, r, &req) {
		return
	}
	f, err := h.svc.UnshareFile(r.Context(), who, id, req.Email)
	if err != nil {
		h.errLog.Respond(w, r, "unshare file", err)
		return
	}
	h.audit.ShareRevoked(r, who.ID, "file", id.Hex(), normalize.Email(req.Email))
	jsonutil.OK(w, f)
}

func (h *Handler) star(w http.ResponseWriter, r *http.Request) {
	who, id, ok := requesterAndID(w, r)
	if !ok {
		return
	}
	f, err := h.svc.ToggleFileStar(r.Context(), who, id)
	if err != nil {
		h.errLog.Respond(w, r, "star file", err)
		return
	}
	jsonutil.OK(w, f)
}

func (h *Handler) trash(w http.ResponseWriter, r *http.Request) {
	who, id, ok := requesterAndID(w, r)
	if !ok {
		return
	}
	f, err := h.svc.SoftDeleteFile(r.Context(), who, id)
	if err != nil {
		h.errLog.Respond(w, r, "trash file", err)
		return
	}
	jsonutil.OK(w, f)
}

func (h *Handler) restore(w http.ResponseWriter, r *http.Request) {
	who, id, ok := requesterAndID(w, r)
	if !ok {
		return
	}
	f, err := h.svc.RestoreFile(r.Context(), who, id)
	if err != nil {
		h.errLog.Respond(w, r, "restore file", err)
		return
	}
	jsonutil.OK(w, f)
}

func (h *Handler) purge(w http.ResponseWriter, r *http.Request) {
	who, id, ok := requesterAndID(w, r)
	if !ok {
		return
	}
	if err := h.svc.PermanentDeleteFile(r.Context(), who, id); err != nil {
		h.errLog.Respond(w, r, "permanently delete file", err)
		return
	}
	h.audit.PermanentDelete(r, who.ID, "file", id.Hex())
	jsonutil.OK(w, map[string]string{"msg": "File permanently deleted"})
}

func requester(w http.ResponseWriter, r *http.Request) (drive.Requester, bool) {
	id, email, ok := authz.UserCtx(r)
	if !ok {
		jsonutil.Unauthorized(w, "authentication required")
		return drive.Requester{}, false
	}
	return drive.Requester{ID: id, Email: email}, true
}

func requesterAndID(w http.ResponseWriter, r *http.Request) (drive.Requester, primitive.ObjectID, bool) {
	who, ok := requester(w, r)
	if !ok {
		return who, primitive.NilObjectID, false
	}
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		jsonutil.BadRequest(w, "invalid file id")
		return who, primitive.NilObjectID, false
	}
	return who, id, true
}

func decode[T any](w http.ResponseWriter, r *http.Request, v *T) bool {
	if err := jsonutil.Decode(r, v); err != nil {
		jsonutil.BadRequest(w, "invalid JSON payload")
		return false
	}
	if res := inputval.Validate(*v); res.HasErrors() {
		jsonutil.BadRequest(w, res.First())
		return false
	}
	return true
}
