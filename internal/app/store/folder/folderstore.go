// Package folder provides storage for drive folders.
package folder

import (
	"context"
	"time"

	"github.com/dalemusser/stratadrive/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// RecentLimit is the number of folders returned by ListRecent.
const RecentLimit = 10

// Store provides access to the folders collection.
type Store struct {
	c *mongo.Collection
}

// New creates a new folder store.
func New(db *mongo.Database) *Store {
	return &Store{
		c: db.Collection("folders"),
	}
}

// CreateInput contains the input for creating a folder.
type CreateInput struct {
	OwnerID  primitive.ObjectID
	Name     string
	ParentID *primitive.ObjectID
}

// Create creates a new folder.
func (s *Store) Create(ctx context.Context, input CreateInput) (*models.Folder, error) {
	now := time.Now()
	folder := models.Folder{
		ID:           primitive.NewObjectID(),
		OwnerID:      input.OwnerID,
		Name:         input.Name,
		NameCI:       text.Fold(input.Name),
		ParentID:     input.ParentID,
		SharedWith:   []string{},
		LastAccessed: now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if _, err := s.c.InsertOne(ctx, folder); err != nil {
		return nil, err
	}

	return &folder, nil
}

// GetByID retrieves a folder by ID regardless of its trash state.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Folder, error) {
	var folder models.Folder
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&folder); err != nil {
		return nil, err
	}
	return &folder, nil
}

// NameExistsInParent checks if an active folder with the given name exists
// under parentID for the owner. Pass excludeID to exclude a specific folder
// (useful for rename and move).
func (s *Store) NameExistsInParent(ctx context.Context, ownerID primitive.ObjectID, name string, parentID *primitive.ObjectID, excludeID *primitive.ObjectID) (bool, error) {
	filter := bson.M{
		"owner_id":   ownerID,
		"parent_id":  parentID,
		"name":       name,
		"is_deleted": false,
	}

	if excludeID != nil {
		filter["_id"] = bson.M{"$ne": *excludeID}
	}

	count, err := s.c.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

// ListChildren returns the active subfolders of parentID sorted by name.
func (s *Store) ListChildren(ctx context.Context, parentID primitive.ObjectID) ([]models.Folder, error) {
	return s.find(ctx, bson.M{"parent_id": parentID, "is_deleted": false},
		options.Find().SetSort(bson.D{{Key: "name", Value: 1}, {Key: "_id", Value: 1}}))
}

// ListOptions contains options for listing a user's own folders.
type ListOptions struct {
	// FilterParent restricts the listing to ParentID (nil = root level).
	FilterParent bool
	ParentID     *primitive.ObjectID
}

// ListByOwner returns the owner's active folders, newest first.
func (s *Store) ListByOwner(ctx context.Context, ownerID primitive.ObjectID, opts ListOptions) ([]models.Folder, error) {
	filter := bson.M{"owner_id": ownerID, "is_deleted": false}
	if opts.FilterParent {
		filter["parent_id"] = opts.ParentID
	}
	return s.find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
}

// ListSharedWith returns active folders whose share list contains email.
func (s *Store) ListSharedWith(ctx context.Context, email string) ([]models.Folder, error) {
	return s.find(ctx, bson.M{"shared_with": email, "is_deleted": false},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
}

// ListRecent returns the owner's most recently accessed active folders.
func (s *Store) ListRecent(ctx context.Context, ownerID primitive.ObjectID) ([]models.Folder, error) {
	return s.find(ctx, bson.M{"owner_id": ownerID, "is_deleted": false},
		options.Find().SetSort(bson.D{{Key: "last_accessed", Value: -1}}).SetLimit(RecentLimit))
}

// ListStarred returns the owner's active starred folders.
func (s *Store) ListStarred(ctx context.Context, ownerID primitive.ObjectID) ([]models.Folder, error) {
	return s.find(ctx, bson.M{"owner_id": ownerID, "is_starred": true, "is_deleted": false},
		options.Find().SetSort(bson.D{{Key: "name_ci", Value: 1}}))
}

// ListTrashed returns the owner's trashed folders, most recently deleted first.
func (s *Store) ListTrashed(ctx context.Context, ownerID primitive.ObjectID) ([]models.Folder, error) {
	return s.find(ctx, bson.M{"owner_id": ownerID, "is_deleted": true},
		options.Find().SetSort(bson.D{{Key: "deleted_at", Value: -1}}))
}

// ListTrashedBefore returns trashed folders (any owner) deleted before cutoff.
func (s *Store) ListTrashedBefore(ctx context.Context, cutoff time.Time, limit int64) ([]models.Folder, error) {
	opts := options.Find().SetSort(bson.D{{Key: "deleted_at", Value: 1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	return s.find(ctx, bson.M{"is_deleted": true, "deleted_at": bson.M{"$lt": cutoff}}, opts)
}

// CountActiveChildren returns the number of active direct subfolders.
func (s *Store) CountActiveChildren(ctx context.Context, parentID primitive.ObjectID) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{"parent_id": parentID, "is_deleted": false})
}

// CountAll returns the number of folders in the given trash state.
func (s *Store) CountAll(ctx context.Context, deleted bool) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{"is_deleted": deleted})
}

// ChildIDs returns the ids of all direct subfolders of the given parents,
// trashed or not.
func (s *Store) ChildIDs(ctx context.Context, parentIDs []primitive.ObjectID) ([]primitive.ObjectID, error) {
	return s.childIDs(ctx, parentIDs, bson.M{})
}

// TrashedChildIDs returns the ids of the trashed direct subfolders of the
// given parents.
func (s *Store) TrashedChildIDs(ctx context.Context, parentIDs []primitive.ObjectID) ([]primitive.ObjectID, error) {
	return s.childIDs(ctx, parentIDs, bson.M{"is_deleted": true})
}

func (s *Store) childIDs(ctx context.Context, parentIDs []primitive.ObjectID, filter bson.M) ([]primitive.ObjectID, error) {
	if len(parentIDs) == 0 {
		return nil, nil
	}
	filter["parent_id"] = bson.M{"$in": parentIDs}
	cur, err := s.c.Find(ctx, filter, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var rows []struct {
		ID primitive.ObjectID `bson:"_id"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}
	ids := make([]primitive.ObjectID, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	return ids, nil
}

// DetachActiveChildren moves the active direct subfolders of parentIDs to
// the root. Returns the number of folders moved.
func (s *Store) DetachActiveChildren(ctx context.Context, parentIDs []primitive.ObjectID) (int64, error) {
	if len(parentIDs) == 0 {
		return 0, nil
	}
	res, err := s.c.UpdateMany(ctx,
		bson.M{"parent_id": bson.M{"$in": parentIDs}, "is_deleted": false},
		bson.M{"$set": bson.M{"parent_id": nil, "updated_at": time.Now()}})
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

// SetName renames a folder.
func (s *Store) SetName(ctx context.Context, id primitive.ObjectID, name string) error {
	return s.set(ctx, id, bson.M{"name": name, "name_ci": text.Fold(name)})
}

// SetParent moves a folder under parentID (nil = root).
func (s *Store) SetParent(ctx context.Context, id primitive.ObjectID, parentID *primitive.ObjectID) error {
	return s.set(ctx, id, bson.M{"parent_id": parentID})
}

// SetStarred sets the starred flag.
func (s *Store) SetStarred(ctx context.Context, id primitive.ObjectID, starred bool) error {
	return s.set(ctx, id, bson.M{"is_starred": starred})
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

// SetDeletedMany marks every folder in ids as trashed at deletedAt, or as
// active when deletedAt is nil. Returns the number of folders modified.
func (s *Store) SetDeletedMany(ctx context.Context, ids []primitive.ObjectID, deletedAt *time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := s.c.UpdateMany(ctx, bson.M{"_id": bson.M{"$in": ids}}, bson.M{"$set": bson.M{
		"is_deleted": deletedAt != nil,
		"deleted_at": deletedAt,
		"updated_at": time.Now(),
	}})
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

// DeleteTrashed removes the folder documents in ids that are in the trash.
// Active folders in ids are left alone.
func (s *Store) DeleteTrashed(ctx context.Context, ids []primitive.ObjectID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := s.c.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}, "is_deleted": true})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
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

func (s *Store) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.Folder, error) {
	cursor, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	folders := []models.Folder{}
	if err := cursor.All(ctx, &folders); err != nil {
		return nil, err
	}
	return folders, nil
}
