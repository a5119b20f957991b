// internal/app/system/auditlog/logger.go
// Package auditlog records account and sharing events to MongoDB and/or zap.
package auditlog

import (
	"context"
	"net/http"

	"github.com/dalemusser/stratadrive/internal/app/store/audit"
	"github.com/dalemusser/stratadrive/internal/app/system/network"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Destination values for Config fields.
const (
	ModeAll = "all" // MongoDB + zap
	ModeDB  = "db"  // MongoDB only
	ModeLog = "log" // zap only
	ModeOff = "off"
)

// Config holds audit logging configuration.
type Config struct {
	// Auth controls register and login events.
	Auth string
	// Drive controls share, unshare and permanent delete events.
	Drive string
}

// Logger provides convenience methods for logging audit events.
// A nil *Logger is valid and discards everything.
type Logger struct {
	store  *audit.Store
	zapLog *zap.Logger
	config Config
}

// New creates a new audit Logger.
func New(store *audit.Store, zapLog *zap.Logger, config Config) *Logger {
	return &Logger{
		store:  store,
		zapLog: zapLog,
		config: config,
	}
}

func (l *Logger) logToZap(event audit.Event) {
	fields := []zap.Field{
		zap.Bool("audit", true),
		zap.String("category", event.Category),
		zap.String("event_type", event.EventType),
		zap.Bool("success", event.Success),
		zap.String("ip", event.IP),
	}
	if event.UserID != nil {
		fields = append(fields, zap.String("user_id", event.UserID.Hex()))
	}
	if event.FailureReason != "" {
		fields = append(fields, zap.String("failure_reason", event.FailureReason))
	}
	for k, v := range event.Details {
		fields = append(fields, zap.String("detail_"+k, v))
	}

	if event.Success {
		l.zapLog.Info("audit event", fields...)
	} else {
		l.zapLog.Warn("audit event", fields...)
	}
}

func (l *Logger) mode(category string) string {
	var m string
	switch category {
	case audit.CategoryAuth:
		m = l.config.Auth
	case audit.CategoryDrive:
		m = l.config.Drive
	}
	if m == "" {
		return ModeAll
	}
	return m
}

// Log records event according to the category's configured destination.
// Storage failures are logged and otherwise ignored.
func (l *Logger) Log(ctx context.Context, event audit.Event) {
	if l == nil {
		return
	}

	m := l.mode(event.Category)
	if m == ModeOff {
		return
	}
	if m == ModeAll || m == ModeLog {
		l.logToZap(event)
	}
	if m == ModeAll || m == ModeDB {
		if err := l.store.Log(ctx, event); err != nil {
			l.zapLog.Error("failed to store audit event",
				zap.Error(err),
				zap.String("event_type", event.EventType),
			)
		}
	}
}

func fromRequest(r *http.Request, category, eventType string, userID *primitive.ObjectID, success bool) audit.Event {
	return audit.Event{
		Category:  category,
		EventType: eventType,
		UserID:    userID,
		IP:        network.GetClientIP(r),
		UserAgent: r.UserAgent(),
		Success:   success,
	}
}

// --- Authentication Events ---

// Registered logs a new account.
func (l *Logger) Registered(r *http.Request, userID primitive.ObjectID, email string) {
	e := fromRequest(r, audit.CategoryAuth, audit.EventRegistered, &userID, true)
	e.Details = map[string]string{"email": email}
	l.Log(r.Context(), e)
}

// LoginSuccess logs a successful password login.
func (l *Logger) LoginSuccess(r *http.Request, userID primitive.ObjectID, email string) {
	e := fromRequest(r, audit.CategoryAuth, audit.EventLoginSuccess, &userID, true)
	e.Details = map[string]string{"email": email}
	l.Log(r.Context(), e)
}

// LoginFailedUserNotFound logs a login for an unknown email.
func (l *Logger) LoginFailedUserNotFound(r *http.Request, attemptedEmail string) {
	e := fromRequest(r, audit.CategoryAuth, audit.EventLoginFailedUserNotFound, nil, false)
	e.FailureReason = "user not found"
	e.Details = map[string]string{"attempted_email": attemptedEmail}
	l.Log(r.Context(), e)
}

// LoginFailedWrongPassword logs a bad password for an existing account.
func (l *Logger) LoginFailedWrongPassword(r *http.Request, userID primitive.ObjectID, email string) {
	e := fromRequest(r, audit.CategoryAuth, audit.EventLoginFailedWrongPassword, &userID, false)
	e.FailureReason = "wrong password"
	e.Details = map[string]string{"email": email}
	l.Log(r.Context(), e)
}

// LoginLockedOut logs a login refused because the email is locked.
func (l *Logger) LoginLockedOut(r *http.Request, email string) {
	e := fromRequest(r, audit.CategoryAuth, audit.EventLoginLockedOut, nil, false)
	e.FailureReason = "too many failed attempts"
	e.Details = map[string]string{"email": email}
	l.Log(r.Context(), e)
}

// --- Drive Events ---

// ShareGranted logs an owner sharing a file or folder.
func (l *Logger) ShareGranted(r *http.Request, ownerID primitive.ObjectID, kind, itemID, email string) {
	e := fromRequest(r, audit.CategoryDrive, audit.EventShareGranted, &ownerID, true)
	e.Details = map[string]string{"item_kind": kind, "item_id": itemID, "email": email}
	l.Log(r.Context(), e)
}

// ShareRevoked logs an owner revoking a share.
func (l *Logger) ShareRevoked(r *http.Request, ownerID primitive.ObjectID, kind, itemID, email string) {
	e := fromRequest(r, audit.CategoryDrive, audit.EventShareRevoked, &ownerID, true)
	e.Details = map[string]string{"item_kind": kind, "item_id": itemID, "email": email}
	l.Log(r.Context(), e)
}

// PermanentDelete logs an owner purging a file or folder.
func (l *Logger) PermanentDelete(r *http.Request, ownerID primitive.ObjectID, kind, itemID string) {
	e := fromRequest(r, audit.CategoryDrive, audit.EventPermanentDelete, &ownerID, true)
	e.Details = map[string]string{"item_kind": kind, "item_id": itemID}
	l.Log(r.Context(), e)
}
