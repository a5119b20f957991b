// Package file provides storage for uploaded file metadata.
package file

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/dalemusser/stratadrive/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store provides access to the files collection.
type Store struct {
	c *mongo.Collection
}

// New creates a new file store.
func New(db *mongo.Database) *Store {
	return &Store{
		c: db.Collection("files"),
	}
}

// CreateInput contains the input for creating a file.
type CreateInput struct {
	OwnerID     primitive.ObjectID
	FolderID    *primitive.ObjectID
	Name        string
	Size        int64
	ContentType string
	BlobID      string
	BlobName    string
}

// Create creates a new file record.
func (s *Store) Create(ctx context.Context, input CreateInput) (*models.File, error) {
	now := time.Now()
	file := models.File{
		ID:           primitive.NewObjectID(),
		OwnerID:      input.OwnerID,
		FolderID:     input.FolderID,
		Name:         input.Name,
		NameCI:       text.Fold(input.Name),
		Size:         input.Size,
		ContentType:  input.ContentType,
		BlobID:       input.BlobID,
		BlobName:     input.BlobName,
		SharedWith:   []string{},
		LastAccessed: now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if _, err := s.c.InsertOne(ctx, file); err != nil {
		return nil, err
	}

	return &file, nil
}

// GetByID retrieves a file by ID regardless of its trash state.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (*models.File, error) {
	var file models.File
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&file); err != nil {
		return nil, err
	}
	return &file, nil
}

// Delete deletes a file record.
func (s *Store) Delete(ctx context.Context, id primitive.ObjectID) error {
	_, err := s.c.DeleteOne(ctx, bson.M{"_id": id})
	return err
}

// ListOptions contains options for listing a user's own files.
type ListOptions struct {
	ContentType string // Filter by MIME type: prefix match (e.g., "image/") or contains match with ~ prefix (e.g., "~word,document")
	Search      string // Filter by filename
}

// ListByOwner returns the owner's active files, newest first.
func (s *Store) ListByOwner(ctx context.Context, ownerID primitive.ObjectID, opts ListOptions) ([]models.File, error) {
	filter := bson.M{"owner_id": ownerID, "is_deleted": false}

	if opts.ContentType != "" {
		if strings.HasPrefix(opts.ContentType, "~") {
			// Contains matching: ~word,document means contains "word" OR "document"
			terms := strings.Split(opts.ContentType[1:], ",")
			var orConditions []bson.M
			for _, term := range terms {
				term = strings.TrimSpace(term)
				if term != "" {
					orConditions = append(orConditions, bson.M{
						"content_type": bson.M{"$regex": regexp.QuoteMeta(term), "$options": "i"},
					})
				}
			}
			if len(orConditions) > 0 {
				filter["$or"] = orConditions
			}
		} else {
			filter["content_type"] = bson.M{"$regex": "^" + regexp.QuoteMeta(opts.ContentType)}
		}
	}

	if opts.Search != "" {
		filter["name_ci"] = bson.M{"$regex": regexp.QuoteMeta(text.Fold(opts.Search))}
	}

	return s.find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
}

// ListInFolder returns the active files directly in folderID sorted by name.
func (s *Store) ListInFolder(ctx context.Context, folderID primitive.ObjectID) ([]models.File, error) {
	return s.find(ctx, bson.M{"folder_id": folderID, "is_deleted": false},
		options.Find().SetSort(bson.D{{Key: "name", Value: 1}, {Key: "_id", Value: 1}}))
}

// ListTrashedInFolders returns the trashed files whose folder is in folderIDs.
func (s *Store) ListTrashedInFolders(ctx context.Context, folderIDs []primitive.ObjectID) ([]models.File, error) {
	if len(folderIDs) == 0 {
		return []models.File{}, nil
	}
	return s.find(ctx, bson.M{"folder_id": bson.M{"$in": folderIDs}, "is_deleted": true}, nil)
}

// DetachActiveInFolders moves the active files whose folder is in folderIDs
// to the root. Returns the number of files moved.
func (s *Store) DetachActiveInFolders(ctx context.Context, folderIDs []primitive.ObjectID) (int64, error) {
	if len(folderIDs) == 0 {
		return 0, nil
	}
	res, err := s.c.UpdateMany(ctx,
		bson.M{"folder_id": bson.M{"$in": folderIDs}, "is_deleted": false},
		bson.M{"$set": bson.M{"folder_id": nil, "updated_at": time.Now()}})
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

// ListSharedWith returns active files whose share list contains email.
func (s *Store) ListSharedWith(ctx context.Context, email string) ([]models.File, error) {
	return s.find(ctx, bson.M{"shared_with": email, "is_deleted": false},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
}

// ListStarred returns the owner's active starred files.
func (s *Store) ListStarred(ctx context.Context, ownerID primitive.ObjectID) ([]models.File, error) {
	return s.find(ctx, bson.M{"owner_id": ownerID, "is_starred": true, "is_deleted": false},
		options.Find().SetSort(bson.D{{Key: "name_ci", Value: 1}}))
}

// ListTrashed returns the owner's trashed files, most recently deleted first.
func (s *Store) ListTrashed(ctx context.Context, ownerID primitive.ObjectID) ([]models.File, error) {
	return s.find(ctx, bson.M{"owner_id": ownerID, "is_deleted": true},
		options.Find().SetSort(bson.D{{Key: "deleted_at", Value: -1}}))
}

// ListTrashedBefore returns trashed files (any owner) deleted before cutoff.
func (s *Store) ListTrashedBefore(ctx context.Context, cutoff time.Time, limit int64) ([]models.File, error) {
	opts := options.Find().SetSort(bson.D{{Key: "deleted_at", Value: 1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	return s.find(ctx, bson.M{"is_deleted": true, "deleted_at": bson.M{"$lt": cutoff}}, opts)
}

// CountActiveInFolder returns the number of active files directly in folderID.
func (s *Store) CountActiveInFolder(ctx context.Context, folderID primitive.ObjectID) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{"folder_id": folderID, "is_deleted": false})
}

// SumSizesByOwner returns the total size of every file the owner holds,
// trashed or not.
func (s *Store) SumSizesByOwner(ctx context.Context, ownerID primitive.ObjectID) (int64, error) {
	cur, err := s.c.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"owner_id": ownerID}}},
		{{Key: "$group", Value: bson.M{"_id": nil, "total": bson.M{"$sum": "$size"}}}},
	})
	if err != nil {
		return 0, err
	}
	defer cur.Close(ctx)

	var rows []struct {
		Total int64 `bson:"total"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].Total, nil
}

// Tally counts files and bytes, split by trash state.
type Tally struct {
	Active       int64
	ActiveBytes  int64
	Trashed      int64
	TrashedBytes int64
}

// Tally returns counts and byte totals across every owner.
func (s *Store) Tally(ctx context.Context) (Tally, error) {
	cur, err := s.c.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$group", Value: bson.M{
			"_id":   "$is_deleted",
			"count": bson.M{"$sum": 1},
			"bytes": bson.M{"$sum": "$size"},
		}}},
	})
	if err != nil {
		return Tally{}, err
	}
	defer cur.Close(ctx)

	var rows []struct {
		Deleted bool  `bson:"_id"`
		Count   int64 `bson:"count"`
		Bytes   int64 `bson:"bytes"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return Tally{}, err
	}
	var t Tally
	for _, row := range rows {
		if row.Deleted {
			t.Trashed, t.TrashedBytes = row.Count, row.Bytes
		} else {
			t.Active, t.ActiveBytes = row.Count, row.Bytes
		}
	}
	return t, nil
}

// SetName renames a file.
func (s *Store) SetName(ctx context.Context, id primitive.ObjectID, name string) error {
	return s.set(ctx, id, bson.M{"name": name, "name_ci": text.Fold(name)})
}

// SetFolder moves a file into folderID (nil = root level).
func (s *Store) SetFolder(ctx context.Context, id primitive.ObjectID, folderID *primitive.ObjectID) error {
	return s.set(ctx, id, bson.M{"folder_id": folderID})
}

// SetStarred sets the starred flag.
func (s *Store) SetStarred(ctx context.Context, id primitive.ObjectID, starred bool) error {
	return s.set(ctx, id, bson.M{"is_starred": starred})
}

// SetDeleted trashes (deletedAt non-nil) or restores a single file.
func (s *Store) SetDeleted(ctx context.Context, id primitive.ObjectID, deletedAt *time.Time) error {
	return s.set(ctx, id, bson.M{"is_deleted": deletedAt != nil, "deleted_at": deletedAt})
}

// SetDeletedInFolders trashes or restores every file whose folder is in
// folderIDs. Returns the number of files modified.
func (s *Store) SetDeletedInFolders(ctx context.Context, folderIDs []primitive.ObjectID, deletedAt *time.Time) (int64, error) {
	if len(folderIDs) == 0 {
		return 0, nil
	}
	res, err := s.c.UpdateMany(ctx, bson.M{"folder_id": bson.M{"$in": folderIDs}}, bson.M{"$set": bson.M{
		"is_deleted": deletedAt != nil,
		"deleted_at": deletedAt,
		"updated_at": time.Now(),
	}})
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

// Touch records an access at t.
func (s *Store) Touch(ctx context.Context, id primitive.ObjectID, t time.Time) error {
	_, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"last_accessed": t}})
	return err
}

// AddShare appends email to the share list unless already present.
func (s *Store) AddShare(ctx context.Context, id primitive.ObjectID, email string) error {
	_, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$addToSet": bson.M{"shared_with": email},
		"$set":      bson.M{"updated_at": time.Now()},
	})
	return err
}

// RemoveShare removes email from the share list.
func (s *Store) RemoveShare(ctx context.Context, id primitive.ObjectID, email string) error {
	_, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$pull": bson.M{"shared_with": email},
		"$set":  bson.M{"updated_at": time.Now()},
	})
	return err
}

func (s *Store) set(ctx context.Context, id primitive.ObjectID, set bson.M) error {
	set["updated_at"] = time.Now()
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

func (s *Store) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.File, error) {
	var findOpts []*options.FindOptions
	if opts != nil {
		findOpts = append(findOpts, opts)
	}
	cursor, err := s.c.Find(ctx, filter, findOpts...)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	files := []models.File{}
	if err := cursor.All(ctx, &files); err != nil {
		return nil, err
	}
	return files, nil
}

// FileTypeCategory returns a category string for a content type.
func FileTypeCategory(contentType string) string {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return "image"
	case strings.HasPrefix(contentType, "video/"):
		return "video"
	case strings.HasPrefix(contentType, "audio/"):
		return "audio"
	case contentType == "application/pdf":
		return "pdf"
	case strings.Contains(contentType, "spreadsheet") || strings.Contains(contentType, "excel"):
		return "spreadsheet"
	case strings.Contains(contentType, "document") || strings.Contains(contentType, "word"):
		return "document"
	case strings.Contains(contentType, "presentation") || strings.Contains(contentType, "powerpoint"):
		return "presentation"
	case strings.Contains(contentType, "zip") || strings.Contains(contentType, "compressed") || strings.Contains(contentType, "archive"):
		return "archive"
	default:
		return "file"
	}
}
