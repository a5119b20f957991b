// Package account provides registration, password login and the current
// user endpoint.
package account

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dalemusser/stratadrive/internal/app/drive"
	errorsfeature "github.com/dalemusser/stratadrive/internal/app/features/errors"
	"github.com/dalemusser/stratadrive/internal/app/store/quota"
	"github.com/dalemusser/stratadrive/internal/app/store/ratelimit"
	userstore "github.com/dalemusser/stratadrive/internal/app/store/users"
	"github.com/dalemusser/stratadrive/internal/app/system/auditlog"
	"github.com/dalemusser/stratadrive/internal/app/system/auth"
	"github.com/dalemusser/stratadrive/internal/app/system/authutil"
	"github.com/dalemusser/stratadrive/internal/app/system/authz"
	"github.com/dalemusser/stratadrive/internal/app/system/inputval"
	"github.com/dalemusser/stratadrive/internal/app/system/jsonutil"
	"github.com/dalemusser/stratadrive/internal/app/system/metrics"
	"github.com/dalemusser/stratadrive/internal/app/system/normalize"
	"github.com/dalemusser/stratadrive/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Handler serves account requests.
type Handler struct {
	users        *userstore.Store
	tokens       *auth.TokenManager
	rateLimit    *ratelimit.Store // nil disables login throttling
	svc          *drive.Service
	audit        *auditlog.Logger
	errLog       *errorsfeature.ErrorLogger
	storageLimit int64
	logger       *zap.Logger
}

// Config wires a Handler.
type Config struct {
	Users     *userstore.Store
	Tokens    *auth.TokenManager
	RateLimit *ratelimit.Store
	Drive     *drive.Service
	Audit     *auditlog.Logger
	ErrLog    *errorsfeature.ErrorLogger
	// StorageLimit is the quota given to new accounts. Zero means
	// models.DefaultStorageLimit.
	StorageLimit int64
	Logger       *zap.Logger
}

// NewHandler creates a new account Handler.
func NewHandler(cfg Config) *Handler {
	return &Handler{
		users:        cfg.Users,
		tokens:       cfg.Tokens,
		rateLimit:    cfg.RateLimit,
		svc:          cfg.Drive,
		audit:        cfg.Audit,
		errLog:       cfg.ErrLog,
		storageLimit: cfg.StorageLimit,
		logger:       cfg.Logger,
	}
}

// Routes returns a chi.Router with account routes mounted. Only /me runs
// behind requireUser.
//
// When mounted at /api/auth:
//   - POST /register  create an account and return a token
//   - POST /login     exchange email + password for a token
//   - GET  /me        the caller and their storage usage
func Routes(h *Handler, requireUser func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Post("/register", h.register)
	r.Post("/login", h.login)
	r.With(requireUser).Get("/me", h.me)
	return r
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required" label:"Email"`
	Password string `json:"password" validate:"required" label:"Password"`
}

type tokenResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
	User      models.User `json:"user"`
}

type meResponse struct {
	User    models.User `json:"user"`
	Storage quota.Usage `json:"storage"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := jsonutil.Decode(r, &req); err != nil {
		jsonutil.BadRequest(w, "invalid JSON payload")
		return
	}

	reg, err := authutil.ValidateRegistration(authutil.RegisterInput{
		FullName: req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if errors.Is(err, authutil.ErrHash) {
		h.errLog.Log(r, "failed to hash password", err)
		jsonutil.InternalError(w, "server error")
		return
	}
	if err != nil {
		jsonutil.BadRequest(w, err.Error())
		return
	}

	user, err := h.users.Create(r.Context(), models.User{
		FullName:     reg.FullName,
		Email:        reg.Email,
		PasswordHash: reg.PasswordHash,
		StorageLimit: h.storageLimit,
	})
	if err != nil {
		if errors.Is(err, userstore.ErrDuplicateEmail) {
			jsonutil.Error(w, http.StatusConflict, "User already exists")
			return
		}
		h.errLog.Log(r, "failed to create user", err)
		jsonutil.InternalError(w, "server error")
		return
	}

	h.audit.Registered(r, user.ID, user.Email)
	h.logger.Info("user registered", zap.String("user_id", user.ID.Hex()))

	h.respondWithToken(w, r, http.StatusCreated, user)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := jsonutil.Decode(r, &req); err != nil {
		jsonutil.BadRequest(w, "invalid JSON payload")
		return
	}
	if res := inputval.Validate(req); res.HasErrors() {
		jsonutil.BadRequest(w, res.First())
		return
	}
	email := normalize.Email(req.Email)

	if h.rateLimit != nil {
		if allowed, _, lockedUntil := h.rateLimit.CheckAllowed(r.Context(), email); !allowed {
			h.audit.LoginLockedOut(r, email)
			metrics.RecordAuthAttempt(false)
			jsonutil.Error(w, http.StatusTooManyRequests, lockoutMessage(lockedUntil))
			return
		}
	}

	user, err := h.users.GetByEmail(r.Context(), email)
	if err != nil {
		if !errors.Is(err, mongo.ErrNoDocuments) {
			h.errLog.Log(r, "database error during login lookup", err)
			jsonutil.InternalError(w, "server error")
			return
		}
		// Keep timing close to the wrong-password path.
		authutil.BurnComparison(req.Password)
		h.recordFailure(r, email)
		h.audit.LoginFailedUserNotFound(r, email)
		metrics.RecordAuthAttempt(false)
		jsonutil.BadRequest(w, "Invalid credentials")
		return
	}

	if user.PasswordHash == "" || !authutil.CheckPassword(req.Password, user.PasswordHash) {
		lockedOut, lockedUntil := h.recordFailure(r, email)
		metrics.RecordAuthAttempt(false)
		if lockedOut {
			h.audit.LoginLockedOut(r, email)
			jsonutil.Error(w, http.StatusTooManyRequests, lockoutMessage(lockedUntil))
			return
		}
		h.audit.LoginFailedWrongPassword(r, user.ID, email)
		jsonutil.BadRequest(w, "Invalid credentials")
		return
	}

	if h.rateLimit != nil {
		if err := h.rateLimit.ClearOnSuccess(r.Context(), email); err != nil {
			h.logger.Warn("failed to clear login attempts", zap.Error(err))
		}
	}
	h.audit.LoginSuccess(r, user.ID, email)
	metrics.RecordAuthAttempt(true)

	h.respondWithToken(w, r, http.StatusOK, *user)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	id, email, ok := authz.UserCtx(r)
	if !ok {
		jsonutil.Unauthorized(w, "authentication required")
		return
	}

	user, err := h.users.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			jsonutil.NotFound(w, "user not found")
			return
		}
		h.errLog.Log(r, "failed to load user", err)
		jsonutil.InternalError(w, "server error")
		return
	}

	usage, err := h.svc.Usage(r.Context(), drive.Requester{ID: id, Email: email})
	if err != nil {
		h.errLog.Respond(w, r, "load storage usage", err)
		return
	}
	jsonutil.OK(w, meResponse{User: *user, Storage: usage})
}

func (h *Handler) respondWithToken(w http.ResponseWriter, r *http.Request, status int, user models.User) {
	token, expiresAt, err := h.tokens.Issue(user.ID, user.Email)
	if err != nil {
		h.errLog.Log(r, "failed to issue token", err)
		jsonutil.InternalError(w, "server error")
		return
	}
	jsonutil.JSON(w, status, tokenResponse{Token: token, ExpiresAt: expiresAt, User: user})
}

func (h *Handler) recordFailure(r *http.Request, email string) (bool, *time.Time) {
	if h.rateLimit == nil {
		return false, nil
	}
	return h.rateLimit.RecordFailure(r.Context(), email)
}

func lockoutMessage(lockedUntil *time.Time) string {
	if lockedUntil == nil {
		return "Too many failed login attempts. Please try again later."
	}
	remaining := time.Until(*lockedUntil)
	if remaining > time.Minute {
		return fmt.Sprintf("Too many failed login attempts. Please try again in %d minute(s).", int(remaining.Minutes())+1)
	}
	return fmt.Sprintf("Too many failed login attempts. Please try again in %d second(s).", int(remaining.Seconds())+1)
}
