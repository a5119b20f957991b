package drive

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dalemusser/stratadrive/internal/app/system/blobstore"
	"github.com/dalemusser/stratadrive/internal/app/system/metrics"
	"github.com/dalemusser/stratadrive/internal/app/system/timeouts"
	"github.com/dalemusser/stratadrive/internal/app/system/txn"
	"github.com/dalemusser/stratadrive/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// CascadeResult reports what a folder trash or restore touched.
type CascadeResult struct {
	Folders   int64      `json:"folders"`
	Files     int64      `json:"files"`
	DeletedAt *time.Time `json:"deleted_at"`
}

// SoftDeleteFolder moves a folder, its subfolders and their files to the
// trash, all stamped with the same deletion time. Storage usage is unchanged.
func (s *Service) SoftDeleteFolder(ctx context.Context, who Requester, id primitive.ObjectID) (*CascadeResult, error) {
	f, err := s.ownedFolder(ctx, id, who)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	res, err := s.cascade(ctx, f.ID, &now)
	if err != nil {
		return nil, err
	}

	metrics.RecordCascade("trash", int(res.Folders))
	s.logger.Info("folder moved to trash",
		zap.String("folder_id", f.ID.Hex()),
		zap.Int64("folders", res.Folders),
		zap.Int64("files", res.Files),
	)
	return res, nil
}

// RestoreFolder takes a folder, its subfolders and their files out of the
// trash. Ancestors are left as they are.
func (s *Service) RestoreFolder(ctx context.Context, who Requester, id primitive.ObjectID) (*CascadeResult, error) {
	f, err := s.ownedFolder(ctx, id, who)
	if err != nil {
		return nil, err
	}

	res, err := s.cascade(ctx, f.ID, nil)
	if err != nil {
		return nil, err
	}

	metrics.RecordCascade("restore", int(res.Folders))
	s.logger.Info("folder restored",
		zap.String("folder_id", f.ID.Hex()),
		zap.Int64("folders", res.Folders),
		zap.Int64("files", res.Files),
	)
	return res, nil
}

// cascade sets the trash state of the subtree rooted at id. The descendant
// set is read and both bulk updates run inside one transaction when the
// deployment supports it.
func (s *Service) cascade(ctx context.Context, id primitive.ObjectID, deletedAt *time.Time) (*CascadeResult, error) {
	res := &CascadeResult{DeletedAt: deletedAt}

	err := txn.Run(ctx, s.db, s.logger, func(ctx context.Context) error {
		desc, err := s.Descendants(ctx, id)
		if err != nil {
			return err
		}
		if _, err := s.folders.SetDeletedMany(ctx, desc, deletedAt); err != nil {
			return fmt.Errorf("update folders: %w", err)
		}
		nFiles, err := s.files.SetDeletedInFolders(ctx, desc, deletedAt)
		if err != nil {
			return fmt.Errorf("update files: %w", err)
		}
		res.Folders = int64(len(desc))
		res.Files = nFiles
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cascade folder %s: %w", id.Hex(), err)
	}
	return res, nil
}

// SoftDeleteFile moves a single file to the trash.
func (s *Service) SoftDeleteFile(ctx context.Context, who Requester, id primitive.ObjectID) (*models.File, error) {
	f, err := s.ownedFile(ctx, id, who)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC().Truncate(time.Millisecond)
	if err := s.files.SetDeleted(ctx, f.ID, &now); err != nil {
		return nil, fmt.Errorf("trash file: %w", err)
	}
	f.IsDeleted, f.DeletedAt = true, &now
	return f, nil
}

// RestoreFile takes a single file out of the trash.
func (s *Service) RestoreFile(ctx context.Context, who Requester, id primitive.ObjectID) (*models.File, error) {
	f, err := s.ownedFile(ctx, id, who)
	if err != nil {
		return nil, err
	}
	if err := s.files.SetDeleted(ctx, f.ID, nil); err != nil {
		return nil, fmt.Errorf("restore file: %w", err)
	}
	f.IsDeleted, f.DeletedAt = false, nil
	return f, nil
}

// PermanentDeleteFile removes a file's blob, releases its bytes from the
// owner's quota and deletes the record, in that order. If the blob cannot be
// deleted nothing else changes and the error is UpstreamFailure.
func (s *Service) PermanentDeleteFile(ctx context.Context, who Requester, id primitive.ObjectID) error {
	f, err := s.ownedFile(ctx, id, who)
	if err != nil {
		return err
	}
	return s.purgeFile(ctx, f)
}

func (s *Service) purgeFile(ctx context.Context, f *models.File) error {
	bctx, cancel := timeouts.WithTimeout(ctx, s.cfg.BlobTimeout, s.logger, "blob delete")
	err := s.blobs.Delete(bctx, blobstore.Blob{ID: f.BlobID, Name: f.BlobName})
	cancel()
	if err != nil {
		metrics.RecordPermanentDelete(false)
		s.logger.Error("blob delete failed",
			zap.String("file_id", f.ID.Hex()),
			zap.String("blob", f.BlobName),
			zap.Error(err),
		)
		return wrapErr(UpstreamFailure, "could not delete file from storage", err)
	}

	err = txn.Run(ctx, s.db, s.logger, func(ctx context.Context) error {
		if err := s.quota.Release(ctx, f.OwnerID, f.Size); err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
			return fmt.Errorf("release quota for file %s: %w", f.ID.Hex(), err)
		}
		if err := s.files.Delete(ctx, f.ID); err != nil {
			return fmt.Errorf("delete file %s: %w", f.ID.Hex(), err)
		}
		return nil
	})
	if err != nil {
		metrics.RecordPermanentDelete(false)
		return err
	}

	metrics.RecordPermanentDelete(true)
	s.logger.Info("file permanently deleted",
		zap.String("file_id", f.ID.Hex()),
		zap.String("owner_id", f.OwnerID.Hex()),
		zap.Int64("size", f.Size),
	)
	return nil
}

// PurgeResult reports what a permanent folder delete removed. Detached
// counts active items that sat under a purged folder and were moved to the
// root instead of being deleted.
type PurgeResult struct {
	Folders  int64 `json:"folders"`
	Files    int64 `json:"files"`
	Bytes    int64 `json:"bytes"`
	Detached int64 `json:"detached"`
}

// PermanentDeleteFolder empties a trashed folder out of the trash: every
// trashed file and subfolder under it is permanently deleted. Items that
// were restored since the folder was trashed survive and move to the root.
// A blob failure stops the purge with UpstreamFailure; already purged files
// stay purged and the rest is left for a retry.
func (s *Service) PermanentDeleteFolder(ctx context.Context, who Requester, id primitive.ObjectID) (*PurgeResult, error) {
	f, err := s.ownedFolder(ctx, id, who)
	if err != nil {
		return nil, err
	}
	if !f.IsDeleted {
		return nil, newErr(InvalidInput, "folder must be in the trash before it can be deleted permanently")
	}
	return s.purgeFolder(ctx, f)
}

func (s *Service) purgeFolder(ctx context.Context, f *models.Folder) (*PurgeResult, error) {
	subtree, err := s.trashedSubtree(ctx, f.ID)
	if err != nil {
		return nil, err
	}

	res := &PurgeResult{}
	// Active children lose their parent below, so they go to the root first.
	nFolders, err := s.folders.DetachActiveChildren(ctx, subtree)
	if err != nil {
		return nil, fmt.Errorf("detach active folders: %w", err)
	}
	nFiles, err := s.files.DetachActiveInFolders(ctx, subtree)
	if err != nil {
		return nil, fmt.Errorf("detach active files: %w", err)
	}
	res.Detached = nFolders + nFiles

	files, err := s.files.ListTrashedInFolders(ctx, subtree)
	if err != nil {
		return res, fmt.Errorf("list files to purge: %w", err)
	}
	for i := range files {
		if err := s.purgeFile(ctx, &files[i]); err != nil {
			return res, err
		}
		res.Files++
		res.Bytes += files[i].Size
	}

	n, err := s.folders.DeleteTrashed(ctx, subtree)
	if err != nil {
		return res, fmt.Errorf("delete folders: %w", err)
	}
	res.Folders = n

	metrics.RecordCascade("purge", int(n))
	s.logger.Info("folder permanently deleted",
		zap.String("folder_id", f.ID.Hex()),
		zap.Int64("folders", res.Folders),
		zap.Int64("files", res.Files),
		zap.Int64("bytes", res.Bytes),
		zap.Int64("detached", res.Detached),
	)
	return res, nil
}

// trashedSubtree returns id and every trashed folder reachable from it
// through trashed folders only. The walk stops at active folders.
func (s *Service) trashedSubtree(ctx context.Context, id primitive.ObjectID) ([]primitive.ObjectID, error) {
	visited := map[primitive.ObjectID]struct{}{id: {}}
	out := []primitive.ObjectID{id}
	level := []primitive.ObjectID{id}

	for len(level) > 0 {
		children, err := s.folders.TrashedChildIDs(ctx, level)
		if err != nil {
			return nil, fmt.Errorf("trashed subtree of %s: %w", id.Hex(), err)
		}
		next := level[:0:0]
		for _, c := range children {
			if _, seen := visited[c]; seen {
				continue
			}
			visited[c] = struct{}{}
			out = append(out, c)
			next = append(next, c)
		}
		level = next
	}
	return out, nil
}

// PurgeExpiredResult reports a trash retention sweep.
type PurgeExpiredResult struct {
	PurgeResult
	Failed int
}

// PurgeExpired permanently deletes everything trashed before cutoff, at most
// batch top-level items of each kind per call (0 = no limit). Items that
// fail are logged and skipped so one bad blob does not stall the sweep.
func (s *Service) PurgeExpired(ctx context.Context, cutoff time.Time, batch int64) (*PurgeExpiredResult, error) {
	out := &PurgeExpiredResult{}

	folders, err := s.folders.ListTrashedBefore(ctx, cutoff, batch)
	if err != nil {
		return nil, fmt.Errorf("list expired folders: %w", err)
	}
	for _, candidate := range folders {
		// An earlier purge in this sweep may already have removed it.
		f, err := s.loadFolder(ctx, candidate.ID)
		if IsKind(err, NotFound) {
			continue
		}
		if err != nil {
			return out, err
		}
		if !f.IsDeleted {
			continue
		}
		res, err := s.purgeFolder(ctx, f)
		if res != nil {
			out.Folders += res.Folders
			out.Files += res.Files
			out.Bytes += res.Bytes
			out.Detached += res.Detached
		}
		if err != nil {
			out.Failed++
			s.logger.Warn("trash purge: folder failed", zap.String("folder_id", f.ID.Hex()), zap.Error(err))
		}
	}

	files, err := s.files.ListTrashedBefore(ctx, cutoff, batch)
	if err != nil {
		return out, fmt.Errorf("list expired files: %w", err)
	}
	for i := range files {
		if err := s.purgeFile(ctx, &files[i]); err != nil {
			out.Failed++
			s.logger.Warn("trash purge: file failed", zap.String("file_id", files[i].ID.Hex()), zap.Error(err))
			continue
		}
		out.Files++
		out.Bytes += files[i].Size
	}

	return out, nil
}

// Trash returns the requester's trashed folders and files, most recently
// deleted first.
func (s *Service) Trash(ctx context.Context, who Requester) ([]models.Item, error) {
	folders, err := s.folders.ListTrashed(ctx, who.ID)
	if err != nil {
		return nil, fmt.Errorf("list trashed folders: %w", err)
	}
	files, err := s.files.ListTrashed(ctx, who.ID)
	if err != nil {
		return nil, fmt.Errorf("list trashed files: %w", err)
	}

	items := make([]models.Item, 0, len(folders)+len(files))
	for _, f := range folders {
		items = append(items, models.FolderItem(f))
	}
	for _, f := range files {
		items = append(items, models.FileItem(f))
	}
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i].DeletedAt(), items[j].DeletedAt()
		if a == nil || b == nil {
			return b == nil && a != nil
		}
		return a.After(*b)
	})
	return items, nil
}
