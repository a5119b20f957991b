package drive

import (
	"context"
	"fmt"
	"time"

	folderstore "github.com/dalemusser/stratadrive/internal/app/store/folder"
	"github.com/dalemusser/stratadrive/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// CreateFolder creates a folder named name under parentID (nil = root).
func (s *Service) CreateFolder(ctx context.Context, who Requester, name string, parentID *primitive.ObjectID) (*FolderSummary, error) {
	clean, err := SanitizeName(name)
	if err != nil {
		return nil, err
	}

	if _, err := s.destinationFolder(ctx, parentID, who); err != nil {
		return nil, err
	}

	exists, err := s.folders.NameExistsInParent(ctx, who.ID, clean, parentID, nil)
	if err != nil {
		return nil, fmt.Errorf("check folder name: %w", err)
	}
	if exists {
		return nil, newErr(Conflict, "a folder with this name already exists here")
	}

	f, err := s.folders.Create(ctx, folderstore.CreateInput{
		OwnerID:  who.ID,
		Name:     clean,
		ParentID: parentID,
	})
	if err != nil {
		return nil, fmt.Errorf("create folder: %w", err)
	}

	s.logger.Info("folder created",
		zap.String("folder_id", f.ID.Hex()),
		zap.String("owner_id", who.ID.Hex()),
	)
	return &FolderSummary{Folder: *f}, nil
}

// RenameFolder renames a folder the requester owns.
func (s *Service) RenameFolder(ctx context.Context, who Requester, id primitive.ObjectID, name string) (*models.Folder, error) {
	clean, err := SanitizeName(name)
	if err != nil {
		return nil, err
	}

	f, err := s.ownedFolder(ctx, id, who)
	if err != nil {
		return nil, err
	}

	exists, err := s.folders.NameExistsInParent(ctx, f.OwnerID, clean, f.ParentID, &f.ID)
	if err != nil {
		return nil, fmt.Errorf("check folder name: %w", err)
	}
	if exists {
		return nil, newErr(Conflict, "a folder with this name already exists here")
	}

	if err := s.folders.SetName(ctx, f.ID, clean); err != nil {
		return nil, fmt.Errorf("rename folder: %w", err)
	}
	return s.loadFolder(ctx, f.ID)
}

// MoveFolder reparents a folder under destID (nil = root). Moving a folder
// into itself or one of its descendants fails with CyclicMove.
func (s *Service) MoveFolder(ctx context.Context, who Requester, id primitive.ObjectID, destID *primitive.ObjectID) (*models.Folder, error) {
	f, err := s.ownedFolder(ctx, id, who)
	if err != nil {
		return nil, err
	}

	if destID != nil {
		if *destID == f.ID {
			return nil, newErr(CyclicMove, "cannot move a folder into itself")
		}
		if _, err := s.destinationFolder(ctx, destID, who); err != nil {
			return nil, err
		}
		desc, err := s.Descendants(ctx, f.ID)
		if err != nil {
			return nil, err
		}
		for _, d := range desc {
			if d == *destID {
				return nil, newErr(CyclicMove, "cannot move a folder into one of its subfolders")
			}
		}
	}

	exists, err := s.folders.NameExistsInParent(ctx, f.OwnerID, f.Name, destID, &f.ID)
	if err != nil {
		return nil, fmt.Errorf("check folder name: %w", err)
	}
	if exists {
		return nil, newErr(Conflict, "a folder with this name already exists in the destination")
	}

	if err := s.folders.SetParent(ctx, f.ID, destID); err != nil {
		return nil, fmt.Errorf("move folder: %w", err)
	}
	return s.loadFolder(ctx, f.ID)
}

// Descendants returns id and every folder below it, breadth first.
// Trashed folders are included. A visited set guarantees termination even
// if the stored parent links contain a loop.
func (s *Service) Descendants(ctx context.Context, id primitive.ObjectID) ([]primitive.ObjectID, error) {
	visited := map[primitive.ObjectID]struct{}{id: {}}
	out := []primitive.ObjectID{id}
	level := []primitive.ObjectID{id}

	for len(level) > 0 {
		children, err := s.folders.ChildIDs(ctx, level)
		if err != nil {
			return nil, fmt.Errorf("descendants of %s: %w", id.Hex(), err)
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

// ItemCount returns the number of active folders and files directly inside id.
func (s *Service) ItemCount(ctx context.Context, id primitive.ObjectID) (int64, error) {
	nf, err := s.folders.CountActiveChildren(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("count subfolders: %w", err)
	}
	nfi, err := s.files.CountActiveInFolder(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("count files: %w", err)
	}
	return nf + nfi, nil
}

func (s *Service) summarize(ctx context.Context, folders []models.Folder) ([]FolderSummary, error) {
	out := make([]FolderSummary, 0, len(folders))
	for _, f := range folders {
		n, err := s.ItemCount(ctx, f.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, FolderSummary{Folder: f, ItemCount: n})
	}
	return out, nil
}

// GetFolder returns a folder the requester can read and records the access.
func (s *Service) GetFolder(ctx context.Context, who Requester, id primitive.ObjectID) (*FolderSummary, error) {
	f, err := s.readableFolder(ctx, id, who)
	if err != nil {
		return nil, err
	}
	s.touchFolder(ctx, f)

	n, err := s.ItemCount(ctx, f.ID)
	if err != nil {
		return nil, err
	}
	return &FolderSummary{Folder: *f, ItemCount: n}, nil
}

// Contents is the listing of a folder's direct children.
type Contents struct {
	Folder  models.Folder   `json:"folder"`
	Folders []FolderSummary `json:"folders"`
	Files   []models.File   `json:"files"`
}

// ListChildren returns the active subfolders and files of a folder, each
// sorted by name, and records the access.
func (s *Service) ListChildren(ctx context.Context, who Requester, id primitive.ObjectID) (*Contents, error) {
	f, err := s.readableFolder(ctx, id, who)
	if err != nil {
		return nil, err
	}

	subs, err := s.folders.ListChildren(ctx, f.ID)
	if err != nil {
		return nil, fmt.Errorf("list subfolders: %w", err)
	}
	summaries, err := s.summarize(ctx, subs)
	if err != nil {
		return nil, err
	}
	files, err := s.files.ListInFolder(ctx, f.ID)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}

	s.touchFolder(ctx, f)
	return &Contents{Folder: *f, Folders: summaries, Files: files}, nil
}

// touchFolder records an access. Failure is logged, not returned; a read
// should not fail because the access time could not be written.
func (s *Service) touchFolder(ctx context.Context, f *models.Folder) {
	now := time.Now()
	if err := s.folders.Touch(ctx, f.ID, now); err != nil {
		s.logger.Warn("failed to record folder access", zap.String("folder_id", f.ID.Hex()), zap.Error(err))
		return
	}
	f.LastAccessed = now
}

// FolderFilter narrows ListFolders to one parent.
type FolderFilter struct {
	ByParent bool
	ParentID *primitive.ObjectID // nil with ByParent = root level
}

// ListFolders returns the requester's active folders, newest first.
func (s *Service) ListFolders(ctx context.Context, who Requester, filter FolderFilter) ([]FolderSummary, error) {
	folders, err := s.folders.ListByOwner(ctx, who.ID, folderstore.ListOptions{
		FilterParent: filter.ByParent,
		ParentID:     filter.ParentID,
	})
	if err != nil {
		return nil, fmt.Errorf("list folders: %w", err)
	}
	return s.summarize(ctx, folders)
}

// ListSharedFolders returns active folders shared with the requester's email.
func (s *Service) ListSharedFolders(ctx context.Context, who Requester) ([]FolderSummary, error) {
	email, err := shareEmail(who.Email)
	if err != nil {
		return []FolderSummary{}, nil
	}
	folders, err := s.folders.ListSharedWith(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("list shared folders: %w", err)
	}
	return s.summarize(ctx, folders)
}

// ListRecentFolders returns the requester's most recently accessed folders.
func (s *Service) ListRecentFolders(ctx context.Context, who Requester) ([]FolderSummary, error) {
	folders, err := s.folders.ListRecent(ctx, who.ID)
	if err != nil {
		return nil, fmt.Errorf("list recent folders: %w", err)
	}
	return s.summarize(ctx, folders)
}

// ToggleFolderStar flips the starred flag.
func (s *Service) ToggleFolderStar(ctx context.Context, who Requester, id primitive.ObjectID) (*models.Folder, error) {
	f, err := s.ownedFolder(ctx, id, who)
	if err != nil {
		return nil, err
	}
	if err := s.folders.SetStarred(ctx, f.ID, !f.IsStarred); err != nil {
		return nil, fmt.Errorf("star folder: %w", err)
	}
	f.IsStarred = !f.IsStarred
	return f, nil
}

// ShareFolder adds email to the folder's share list. Sharing twice with the
// same address is a no-op.
func (s *Service) ShareFolder(ctx context.Context, who Requester, id primitive.ObjectID, rawEmail string) (*models.Folder, error) {
	email, err := shareEmail(rawEmail)
	if err != nil {
		return nil, err
	}
	f, err := s.ownedFolder(ctx, id, who)
	if err != nil {
		return nil, err
	}
	if err := s.folders.AddShare(ctx, f.ID, email); err != nil {
		return nil, fmt.Errorf("share folder: %w", err)
	}
	s.logger.Info("folder shared", zap.String("folder_id", f.ID.Hex()), zap.String("email", email))
	return s.loadFolder(ctx, f.ID)
}

// UnshareFolder removes email from the folder's share list.
func (s *Service) UnshareFolder(ctx context.Context, who Requester, id primitive.ObjectID, rawEmail string) (*models.Folder, error) {
	email, err := shareEmail(rawEmail)
	if err != nil {
		return nil, err
	}
	f, err := s.ownedFolder(ctx, id, who)
	if err != nil {
		return nil, err
	}
	if err := s.folders.RemoveShare(ctx, f.ID, email); err != nil {
		return nil, fmt.Errorf("unshare folder: %w", err)
	}
	return s.loadFolder(ctx, f.ID)
}
