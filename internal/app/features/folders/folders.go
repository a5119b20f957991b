// Package folders provides the JSON API for the folder tree: create, list,
// rename, move, share, star, trash and restore.
package folders

import (
	"net/http"

	"github.com/dalemusser/stratadrive/internal/app/drive"
	errorsfeature "github.com/dalemusser/stratadrive/internal/app/features/errors"
	"github.com/dalemusser/stratadrive/internal/app/system/auditlog"
	"github.com/dalemusser/stratadrive/internal/app/system/authz"
	"github.com/dalemusser/stratadrive/internal/app/system/inputval"
	"github.com/dalemusser/stratadrive/internal/app/system/jsonutil"
	"github.com/dalemusser/stratadrive/internal/app/system/mailer"
	"github.com/dalemusser/stratadrive/internal/app/system/normalize"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Handler serves folder requests.
type Handler struct {
	svc    *drive.Service
	errLog *errorsfeature.ErrorLogger
	audit  *auditlog.Logger
	notify *mailer.Notifier
	logger *zap.Logger
}

// NewHandler creates a new folders Handler.
func NewHandler(svc *drive.Service, errLog *errorsfeature.ErrorLogger, audit *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{
		svc:    svc,
		errLog: errLog,
		audit:  audit,
		logger: logger,
	}
}

// SetNotifier enables share notification email. Passing nil disables it.
func (h *Handler) SetNotifier(n *mailer.Notifier) {
	h.notify = n
}

// Routes returns a chi.Router with folder routes mounted. The caller is
// expected to have authenticated the request already.
//
// When mounted at /api/folders:
//   - GET    /                 own folders (?parentFolder= narrows to one parent)
//   - POST   /                 create
//   - GET    /shared           folders shared with the caller
//   - GET    /recent           recently opened folders
//   - GET    /{id}             folder with item count
//   - GET    /{id}/contents    subfolders and files
//   - PUT    /{id}             rename
//   - PUT    /{id}/move        move under another folder or to the root
//   - POST   /{id}/share       share with an email
//   - DELETE /{id}/share       revoke a share
//   - PUT    /{id}/star        toggle star
//   - DELETE /{id}             move to trash (cascades)
//   - PUT    /{id}/restore     restore from trash (cascades)
//   - DELETE /{id}/permanent   purge a trashed folder and everything in it
func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/shared", h.shared)
	r.Get("/recent", h.recent)

	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Get("/contents", h.contents)
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

type createRequest struct {
	Name         string `json:"name" validate:"required" label:"Folder name"`
	ParentFolder string `json:"parentFolder" validate:"folderref" label:"Parent folder"`
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

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	who, ok := requester(w, r)
	if !ok {
		return
	}

	var filter drive.FolderFilter
	if raw := normalize.QueryParam(r.URL.Query().Get("parentFolder")); raw != "" {
		parent, valid := inputval.ParseFolderRef(raw)
		if !valid {
			jsonutil.BadRequest(w, "parentFolder is not a valid folder.")
			return
		}
		filter = drive.FolderFilter{ByParent: true, ParentID: parent}
	}

	folders, err := h.svc.ListFolders(r.Context(), who, filter)
	if err != nil {
		h.errLog.Respond(w, r, "list folders", err)
		return
	}
	jsonutil.OK(w, folders)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	who, ok := requester(w, r)
	if !ok {
		return
	}

	var req createRequest
	if !decode(w, r, &req) {
		return
	}
	parent, _ := inputval.ParseFolderRef(req.ParentFolder)

	folder, err := h.svc.CreateFolder(r.Context(), who, req.Name, parent)
	if err != nil {
		h.errLog.Respond(w, r, "create folder", err)
		return
	}

	h.logger.Debug("folder created",
		zap.String("folder_id", folder.ID.Hex()),
		zap.String("owner_id", who.ID.Hex()))
	jsonutil.Created(w, folder)
}

func (h *Handler) shared(w http.ResponseWriter, r *http.Request) {
	who, ok := requester(w, r)
	if !ok {
		return
	}
	folders, err := h.svc.ListSharedFolders(r.Context(), who)
	if err != nil {
		h.errLog.Respond(w, r, "list shared folders", err)
		return
	}
	jsonutil.OK(w, folders)
}

func (h *Handler) recent(w http.ResponseWriter, r *http.Request) {
	who, ok := requester(w, r)
	if !ok {
		return
	}
	folders, err := h.svc.ListRecentFolders(r.Context(), who)
	if err != nil {
		h.errLog.Respond(w, r, "list recent folders", err)
		return
	}
	jsonutil.OK(w, folders)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	who, id, ok := requesterAndID(w, r)
	if !ok {
		return
	}
	folder, err := h.svc.GetFolder(r.Context(), who, id)
	if err != nil {
		h.errLog.Respond(w, r, "get folder", err)
		return
	}
	jsonutil.OK(w, folder)
}

func (h *Handler) contents(w http.ResponseWriter, r *http.Request) {
	who, id, ok := requesterAndID(w, r)
	if !ok {
		return
	}
	contents, err := h.svc.ListChildren(r.Context(), who, id)
	if err != nil {
		h.errLog.Respond(w, r, "list folder contents", err)
		return
	}
	jsonutil.OK(w, contents)
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
	folder, err := h.svc.RenameFolder(r.Context(), who, id, req.NewName)
	if err != nil {
		h.errLog.Respond(w, r, "rename folder", err)
		return
	}
	jsonutil.OK(w, folder)
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

	folder, err := h.svc.MoveFolder(r.Context(), who, id, dest)
	if err != nil {
		h.errLog.Respond(w, r, "move folder", err)
		return
	}
	jsonutil.OK(w, folder)
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
	folder, err := h.svc.ShareFolder(r.Context(), who, id, req.Email)
	if err != nil {
		h.errLog.Respond(w, r, "share folder", err)
		return
	}
	h.audit.ShareGranted(r, who.ID, "folder", id.Hex(), normalize.Email(req.Email))
	h.notify.ShareGranted(authz.DisplayName(r), normalize.Email(req.Email), "folder", folder.Name)
	jsonutil.OK(w, folder)
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
	folder, err := h.svc.UnshareFolder(r.Context(), who, id, req.Email)
	if err != nil {
		h.errLog.Respond(w, r, "unshare folder", err)
		return
	}
	h.audit.ShareRevoked(r, who.ID, "folder", id.Hex(), normalize.Email(req.Email))
	jsonutil.OK(w, folder)
}

func (h *Handler) star(w http.ResponseWriter, r *http.Request) {
	who, id, ok := requesterAndID(w, r)
	if !ok {
		return
	}
	folder, err := h.svc.ToggleFolderStar(r.Context(), who, id)
	if err != nil {
		h.errLog.Respond(w, r, "star folder", err)
		return
	}
	jsonutil.OK(w, folder)
}

func (h *Handler) trash(w http.ResponseWriter, r *http.Request) {
	who, id, ok := requesterAndID(w, r)
	if !ok {
		return
	}
	res, err := h.svc.SoftDeleteFolder(r.Context(), who, id)
	if err != nil {
		h.errLog.Respond(w, r, "trash folder", err)
		return
	}
	jsonutil.OK(w, map[string]any{
		"msg":     "Folder moved to trash",
		"folders": res.Folders,
		"files":   res.Files,
	})
}

func (h *Handler) restore(w http.ResponseWriter, r *http.Request) {
	who, id, ok := requesterAndID(w, r)
	if !ok {
		return
	}
	res, err := h.svc.RestoreFolder(r.Context(), who, id)
	if err != nil {
		h.errLog.Respond(w, r, "restore folder", err)
		return
	}
	jsonutil.OK(w, map[string]any{
		"msg":     "Folder restored",
		"folders": res.Folders,
		"files":   res.Files,
	})
}

func (h *Handler) purge(w http.ResponseWriter, r *http.Request) {
	who, id, ok := requesterAndID(w, r)
	if !ok {
		return
	}
	res, err := h.svc.PermanentDeleteFolder(r.Context(), who, id)
	if err != nil {
		h.errLog.Respond(w, r, "permanently delete folder", err)
		return
	}
	h.audit.PermanentDelete(r, who.ID, "folder", id.Hex())
	jsonutil.OK(w, map[string]any{
		"msg":         "Folder permanently deleted",
		"folders":     res.Folders,
		"files":       res.Files,
		"bytes_freed": res.Bytes,
		"detached":    res.Detached,
	})
}

func requester(w http.ResponseWriter, r *http.Request) (drive.Requester, bool) {
	id, email, ok := authz.UserCtx(r)
	if !ok {
		jsonutil.Unauthorized(w, "authentication required")
		return drive.Requester{}, false
	}
	return drive.Requester{ID: id, Email: email}, true
}

// requesterAndID resolves the caller and the {id} path parameter.
func requesterAndID(w http.ResponseWriter, r *http.Request) (drive.Requester, primitive.ObjectID, bool) {
	who, ok := requester(w, r)
	if !ok {
		return who, primitive.NilObjectID, false
	}
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		jsonutil.BadRequest(w, "invalid folder id")
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
