// Package drive implements the folder tree, trash lifecycle, sharing guard
// and quota accounting on top of the entity stores and a blob store.
//
// Every operation takes the requester explicitly; HTTP handlers resolve it
// from the auth middleware and pass it in.
package drive

import (
	"context"
	"errors"
	"fmt"
	"time"

	filestore "github.com/dalemusser/stratadrive/internal/app/store/file"
	folderstore "github.com/dalemusser/stratadrive/internal/app/store/folder"
	"github.com/dalemusser/stratadrive/internal/app/store/quota"
	userstore "github.com/dalemusser/stratadrive/internal/app/store/users"
	"github.com/dalemusser/stratadrive/internal/app/system/authz"
	"github.com/dalemusser/stratadrive/internal/app/system/blobstore"
	"github.com/dalemusser/stratadrive/internal/app/system/inputval"
	"github.com/dalemusser/stratadrive/internal/app/system/normalize"
	"github.com/dalemusser/stratadrive/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Requester identifies the authenticated caller of an operation.
type Requester struct {
	ID    primitive.ObjectID
	Email string
}

// Config holds Service settings.
type Config struct {
	// URLTTL is the lifetime of download URLs. Zero means blobstore.DefaultURLTTL.
	URLTTL time.Duration
	// BlobTimeout bounds each blob upload/delete call. Zero means 5 minutes.
	BlobTimeout time.Duration
}

const defaultBlobTimeout = 5 * time.Minute

// Service is the drive core.
type Service struct {
	db      *mongo.Database
	users   *userstore.Store
	folders *folderstore.Store
	files   *filestore.Store
	quota   *quota.Store
	blobs   blobstore.Store
	cfg     Config
	logger  *zap.Logger

	// testHookAfterSum runs in ReconcileQuota between the sum and the
	// correction.
	testHookAfterSum func()
}

// New creates a Service over db and blobs.
func New(db *mongo.Database, blobs blobstore.Store, cfg Config, logger *zap.Logger) *Service {
	if cfg.URLTTL <= 0 {
		cfg.URLTTL = blobstore.DefaultURLTTL
	}
	if cfg.BlobTimeout <= 0 {
		cfg.BlobTimeout = defaultBlobTimeout
	}
	return &Service{
		db:      db,
		users:   userstore.New(db),
		folders: folderstore.New(db),
		files:   filestore.New(db),
		quota:   quota.New(db),
		blobs:   blobs,
		cfg:     cfg,
		logger:  logger,
	}
}

// FolderSummary is a folder with its derived item count.
type FolderSummary struct {
	models.Folder
	ItemCount int64 `json:"item_count"`
}

// loadFolder fetches a folder, mapping a missing document to NotFound.
func (s *Service) loadFolder(ctx context.Context, id primitive.ObjectID) (*models.Folder, error) {
	f, err := s.folders.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, newErr(NotFound, "folder not found")
		}
		return nil, fmt.Errorf("load folder %s: %w", id.Hex(), err)
	}
	return f, nil
}

// ownedFolder loads a folder the requester must own.
func (s *Service) ownedFolder(ctx context.Context, id primitive.ObjectID, who Requester) (*models.Folder, error) {
	f, err := s.loadFolder(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authz.RequireOwner(f.OwnerID, who.ID); err != nil {
		return nil, wrapErr(Forbidden, "not authorized", err)
	}
	return f, nil
}

// readableFolder loads a folder the requester owns or has been shared.
// Trashed folders are only visible to their owner.
func (s *Service) readableFolder(ctx context.Context, id primitive.ObjectID, who Requester) (*models.Folder, error) {
	f, err := s.loadFolder(ctx, id)
	if err != nil {
		return nil, err
	}
	if authz.IsOwner(f.OwnerID, who.ID) {
		return f, nil
	}
	if f.IsDeleted {
		return nil, newErr(NotFound, "folder not found")
	}
	if err := authz.RequireRead(f.OwnerID, f.SharedWith, who.ID, who.Email); err != nil {
		return nil, wrapErr(Forbidden, "not authorized", err)
	}
	return f, nil
}

// destinationFolder validates a move or upload target. nil means root level.
func (s *Service) destinationFolder(ctx context.Context, id *primitive.ObjectID, who Requester) (*models.Folder, error) {
	if id == nil {
		return nil, nil
	}
	f, err := s.ownedFolder(ctx, *id, who)
	if err != nil {
		return nil, err
	}
	if f.IsDeleted {
		return nil, newErr(InvalidInput, "destination folder is in the trash")
	}
	return f, nil
}

func (s *Service) loadFile(ctx context.Context, id primitive.ObjectID) (*models.File, error) {
	f, err := s.files.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, newErr(NotFound, "file not found")
		}
		return nil, fmt.Errorf("load file %s: %w", id.Hex(), err)
	}
	return f, nil
}

func (s *Service) ownedFile(ctx context.Context, id primitive.ObjectID, who Requester) (*models.File, error) {
	f, err := s.loadFile(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authz.RequireOwner(f.OwnerID, who.ID); err != nil {
		return nil, wrapErr(Forbidden, "not authorized", err)
	}
	return f, nil
}

func (s *Service) readableFile(ctx context.Context, id primitive.ObjectID, who Requester) (*models.File, error) {
	f, err := s.loadFile(ctx, id)
	if err != nil {
		return nil, err
	}
	if authz.IsOwner(f.OwnerID, who.ID) {
		return f, nil
	}
	if f.IsDeleted {
		return nil, newErr(NotFound, "file not found")
	}
	if err := authz.RequireRead(f.OwnerID, f.SharedWith, who.ID, who.Email); err != nil {
		return nil, wrapErr(Forbidden, "not authorized", err)
	}
	return f, nil
}

// shareEmail normalizes and validates an email to share with.
func shareEmail(raw string) (string, error) {
	email := normalize.Email(raw)
	if email == "" {
		return "", newErr(InvalidInput, "email is required")
	}
	if !inputval.IsValidEmail(email) {
		return "", newErr(InvalidInput, "a valid email address is required")
	}
	return email, nil
}

// Usage returns the requester's storage position.
func (s *Service) Usage(ctx context.Context, who Requester) (quota.Usage, error) {
	u, err := s.quota.Usage(ctx, who.ID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return quota.Usage{}, newErr(NotFound, "user not found")
		}
		return quota.Usage{}, err
	}
	return u, nil
}
