package drive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	filestore "github.com/dalemusser/stratadrive/internal/app/store/file"
	"github.com/dalemusser/stratadrive/internal/app/store/quota"
	"github.com/dalemusser/stratadrive/internal/app/system/blobstore"
	"github.com/dalemusser/stratadrive/internal/app/system/metrics"
	"github.com/dalemusser/stratadrive/internal/app/system/timeouts"
	"github.com/dalemusser/stratadrive/internal/app/system/txn"
	"github.com/dalemusser/stratadrive/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

const defaultContentType = "application/octet-stream"

// UploadInput describes a file being uploaded.
type UploadInput struct {
	FolderID    *primitive.ObjectID // nil = root level
	Name        string
	Size        int64
	ContentType string
	Body        io.Reader
}

// Upload stores a new file for the requester. The quota is checked before
// any bytes are written; the usage is only increased once both the blob and
// the record exist. On any failure nothing is left behind.
func (s *Service) Upload(ctx context.Context, who Requester, in UploadInput) (*models.File, error) {
	name, err := SanitizeFileName(in.Name)
	if err != nil {
		return nil, err
	}
	if in.Size < 0 || in.Body == nil {
		return nil, newErr(InvalidInput, "no file uploaded")
	}
	contentType := in.ContentType
	if contentType == "" {
		contentType = defaultContentType
	}

	if _, err := s.destinationFolder(ctx, in.FolderID, who); err != nil {
		return nil, err
	}

	if err := s.quota.Reserve(ctx, who.ID, in.Size); err != nil {
		switch {
		case errors.Is(err, quota.ErrExceeded):
			metrics.RecordQuotaExceeded()
			return nil, newErr(QuotaExceeded, "storage quota exceeded")
		case errors.Is(err, mongo.ErrNoDocuments):
			return nil, newErr(NotFound, "user not found")
		}
		return nil, fmt.Errorf("check quota: %w", err)
	}

	objectName := blobstore.ObjectName(who.ID, name)

	bctx, cancel := timeouts.WithTimeout(ctx, s.cfg.BlobTimeout, s.logger, "blob upload")
	blob, err := s.blobs.Upload(bctx, objectName, in.Body, in.Size, contentType)
	cancel()
	if err != nil {
		metrics.RecordUpload(in.Size, false)
		s.logger.Error("blob upload failed",
			zap.String("owner_id", who.ID.Hex()),
			zap.String("blob", objectName),
			zap.Error(err),
		)
		return nil, wrapErr(UpstreamFailure, "could not store file", err)
	}

	// The record and the usage change land together so a quota reconcile
	// never sees one without the other.
	var f *models.File
	err = txn.Run(ctx, s.db, s.logger, func(ctx context.Context) error {
		created, err := s.files.Create(ctx, filestore.CreateInput{
			OwnerID:     who.ID,
			FolderID:    in.FolderID,
			Name:        name,
			Size:        in.Size,
			ContentType: contentType,
			BlobID:      blob.ID,
			BlobName:    blob.Name,
		})
		if err != nil {
			return fmt.Errorf("create file record: %w", err)
		}
		if err := s.quota.Commit(ctx, who.ID, in.Size); err != nil {
			// Without a transaction the record is already written.
			if derr := s.files.Delete(context.WithoutCancel(ctx), created.ID); derr != nil {
				s.logger.Error("failed to remove file record after quota error", zap.String("file_id", created.ID.Hex()), zap.Error(derr))
			}
			return fmt.Errorf("commit quota: %w", err)
		}
		f = created
		return nil
	})
	if err != nil {
		metrics.RecordUpload(in.Size, false)
		s.discardBlob(blob)
		return nil, err
	}

	metrics.RecordUpload(in.Size, true)
	s.logger.Info("file uploaded",
		zap.String("file_id", f.ID.Hex()),
		zap.String("owner_id", who.ID.Hex()),
		zap.Int64("size", in.Size),
	)
	return f, nil
}

// discardBlob removes a blob whose record could not be saved. It runs on a
// fresh context so a cancelled request still cleans up.
func (s *Service) discardBlob(b blobstore.Blob) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.BlobTimeout)
	defer cancel()
	if err := s.blobs.Delete(ctx, b); err != nil {
		s.logger.Error("failed to remove orphaned blob", zap.String("blob", b.Name), zap.Error(err))
	}
}

// GetFile returns a file the requester can read.
func (s *Service) GetFile(ctx context.Context, who Requester, id primitive.ObjectID) (*models.File, error) {
	return s.readableFile(ctx, id, who)
}

// DownloadURL returns a time-limited URL for a file the requester can read.
func (s *Service) DownloadURL(ctx context.Context, who Requester, id primitive.ObjectID) (string, time.Time, error) {
	f, err := s.readableFile(ctx, id, who)
	if err != nil {
		return "", time.Time{}, err
	}

	expires := time.Now().Add(s.cfg.URLTTL)
	url, err := s.blobs.SignedURL(ctx, blobstore.Blob{ID: f.BlobID, Name: f.BlobName}, s.cfg.URLTTL)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return "", time.Time{}, wrapErr(NotFound, "file content not found", err)
		}
		return "", time.Time{}, wrapErr(UpstreamFailure, "could not create download link", err)
	}

	if err := s.files.Touch(ctx, f.ID, time.Now()); err != nil {
		s.logger.Warn("failed to record file access", zap.String("file_id", f.ID.Hex()), zap.Error(err))
	}
	return url, expires, nil
}

// RenameFile changes a file's display name.
func (s *Service) RenameFile(ctx context.Context, who Requester, id primitive.ObjectID, name string) (*models.File, error) {
	clean, err := SanitizeFileName(name)
	if err != nil {
		return nil, err
	}
	f, err := s.ownedFile(ctx, id, who)
	if err != nil {
		return nil, err
	}
	if err := s.files.SetName(ctx, f.ID, clean); err != nil {
		return nil, fmt.Errorf("rename file: %w", err)
	}
	f.Name = clean
	return f, nil
}

// MoveFile puts a file into folderID (nil = root level).
func (s *Service) MoveFile(ctx context.Context, who Requester, id primitive.ObjectID, folderID *primitive.ObjectID) (*models.File, error) {
	f, err := s.ownedFile(ctx, id, who)
	if err != nil {
		return nil, err
	}
	if _, err := s.destinationFolder(ctx, folderID, who); err != nil {
		return nil, err
	}
	if err := s.files.SetFolder(ctx, f.ID, folderID); err != nil {
		return nil, fmt.Errorf("move file: %w", err)
	}
	f.FolderID = folderID
	return f, nil
}

// ToggleFileStar flips the starred flag.
func (s *Service) ToggleFileStar(ctx context.Context, who Requester, id primitive.ObjectID) (*models.File, error) {
	f, err := s.ownedFile(ctx, id, who)
	if err != nil {
		return nil, err
	}
	if err := s.files.SetStarred(ctx, f.ID, !f.IsStarred); err != nil {
		return nil, fmt.Errorf("star file: %w", err)
	}
	f.IsStarred = !f.IsStarred
	return f, nil
}

// ShareFile adds email to the file's share list. Sharing twice with the
// same address is a no-op.
func (s *Service) ShareFile(ctx context.Context, who Requester, id primitive.ObjectID, rawEmail string) (*models.File, error) {
	email, err := shareEmail(rawEmail)
	if err != nil {
		return nil, err
	}
	f, err := s.ownedFile(ctx, id, who)
	if err != nil {
		return nil, err
	}
	if err := s.files.AddShare(ctx, f.ID, email); err != nil {
		return nil, fmt.Errorf("share file: %w", err)
	}
	s.logger.Info("file shared", zap.String("file_id", f.ID.Hex()), zap.String("email", email))
	return s.loadFile(ctx, f.ID)
}

// UnshareFile removes email from the file's share list.
func (s *Service) UnshareFile(ctx context.Context, who Requester, id primitive.ObjectID, rawEmail string) (*models.File, error) {
	email, err := shareEmail(rawEmail)
	if err != nil {
		return nil, err
	}
	f, err := s.ownedFile(ctx, id, who)
	if err != nil {
		return nil, err
	}
	if err := s.files.RemoveShare(ctx, f.ID, email); err != nil {
		return nil, fmt.Errorf("unshare file: %w", err)
	}
	return s.loadFile(ctx, f.ID)
}

// FileFilter narrows ListFiles.
type FileFilter = filestore.ListOptions

// ListFiles returns the requester's active files, newest first, with the
// current storage usage.
func (s *Service) ListFiles(ctx context.Context, who Requester, filter FileFilter) ([]models.File, quota.Usage, error) {
	files, err := s.files.ListByOwner(ctx, who.ID, filter)
	if err != nil {
		return nil, quota.Usage{}, fmt.Errorf("list files: %w", err)
	}
	usage, err := s.Usage(ctx, who)
	if err != nil {
		return nil, quota.Usage{}, err
	}
	return files, usage, nil
}

// ListSharedFiles returns active files shared with the requester's email.
func (s *Service) ListSharedFiles(ctx context.Context, who Requester) ([]models.File, error) {
	email, err := shareEmail(who.Email)
	if err != nil {
		return []models.File{}, nil
	}
	files, err := s.files.ListSharedWith(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("list shared files: %w", err)
	}
	return files, nil
}

// Starred returns the requester's active starred folders followed by files.
func (s *Service) Starred(ctx context.Context, who Requester) ([]models.Item, error) {
	folders, err := s.folders.ListStarred(ctx, who.ID)
	if err != nil {
		return nil, fmt.Errorf("list starred folders: %w", err)
	}
	files, err := s.files.ListStarred(ctx, who.ID)
	if err != nil {
		return nil, fmt.Errorf("list starred files: %w", err)
	}

	items := make([]models.Item, 0, len(folders)+len(files))
	for _, f := range folders {
		items = append(items, models.FolderItem(f))
	}
	for _, f := range files {
		items = append(items, models.FileItem(f))
	}
	return items, nil
}

// Reconciliation is the outcome of ReconcileQuota. A drift is Corrected
// unless the usage moved while the files were being summed, in which case
// it is Skipped and left for the next run.
type Reconciliation struct {
	UserID    primitive.ObjectID `json:"user_id"`
	Recorded  int64              `json:"recorded"`
	Actual    int64              `json:"actual"`
	Corrected bool               `json:"corrected"`
	Skipped   bool               `json:"skipped"`
}

// Drifted reports whether the ledger disagreed with the stored files.
func (r Reconciliation) Drifted() bool { return r.Recorded != r.Actual }

// ReconcileQuota recomputes a user's usage from the sizes of their files
// (trashed or not) and corrects the ledger if it drifted. The correction
// applies only if the usage still holds the value read before the sum.
func (s *Service) ReconcileQuota(ctx context.Context, userID primitive.ObjectID) (Reconciliation, error) {
	rec := Reconciliation{UserID: userID}

	usage, err := s.quota.Usage(ctx, userID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return rec, newErr(NotFound, "user not found")
		}
		return rec, err
	}
	rec.Recorded = usage.Used

	actual, err := s.files.SumSizesByOwner(ctx, userID)
	if err != nil {
		return rec, fmt.Errorf("sum file sizes: %w", err)
	}
	rec.Actual = actual

	if s.testHookAfterSum != nil {
		s.testHookAfterSum()
	}
	if !rec.Drifted() {
		return rec, nil
	}

	ok, err := s.quota.Adjust(ctx, userID, rec.Recorded, actual)
	if err != nil {
		return rec, fmt.Errorf("correct usage: %w", err)
	}
	if !ok {
		rec.Skipped = true
		s.logger.Debug("storage usage changed during reconcile, skipped",
			zap.String("user_id", userID.Hex()),
			zap.Int64("recorded", rec.Recorded),
			zap.Int64("actual", rec.Actual),
		)
		return rec, nil
	}
	rec.Corrected = true
	s.logger.Warn("storage usage corrected",
		zap.String("user_id", userID.Hex()),
		zap.Int64("recorded", rec.Recorded),
		zap.Int64("actual", rec.Actual),
	)
	return rec, nil
}

// UserIDs lists every user, for sweeps such as quota reconciliation.
func (s *Service) UserIDs(ctx context.Context) ([]primitive.ObjectID, error) {
	return s.users.ListIDs(ctx)
}
