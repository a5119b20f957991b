package drive

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
)

// Totals is a point-in-time count of everything the drive holds.
type Totals struct {
	Users          int64 `json:"users"`
	Folders        int64 `json:"folders"`
	TrashedFolders int64 `json:"trashed_folders"`
	Files          int64 `json:"files"`
	TrashedFiles   int64 `json:"trashed_files"`
	StoredBytes    int64 `json:"stored_bytes"`
	TrashedBytes   int64 `json:"trashed_bytes"`
}

// Totals counts users, folders and files across all owners.
func (s *Service) Totals(ctx context.Context) (Totals, error) {
	var t Totals
	var err error

	if t.Users, err = s.users.Count(ctx, bson.M{}); err != nil {
		return t, fmt.Errorf("count users: %w", err)
	}
	if t.Folders, err = s.folders.CountAll(ctx, false); err != nil {
		return t, fmt.Errorf("count folders: %w", err)
	}
	if t.TrashedFolders, err = s.folders.CountAll(ctx, true); err != nil {
		return t, fmt.Errorf("count trashed folders: %w", err)
	}

	tally, err := s.files.Tally(ctx)
	if err != nil {
		return t, fmt.Errorf("tally files: %w", err)
	}
	t.Files, t.StoredBytes = tally.Active, tally.ActiveBytes+tally.TrashedBytes
	t.TrashedFiles, t.TrashedBytes = tally.Trashed, tally.TrashedBytes
	return t, nil
}
