package file

import (
	"testing"
	"time"

	"github.com/dalemusser/stratadrive/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

func newInput(owner primitive.ObjectID, folderID *primitive.ObjectID, name string, size int64) CreateInput {
	return CreateInput{
		OwnerID:     owner,
		FolderID:    folderID,
		Name:        name,
		Size:        size,
		ContentType: "text/plain",
		BlobID:      "blob-" + name,
		BlobName:    owner.Hex() + "/" + name,
	}
}

func TestStore_Create(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	owner := primitive.NewObjectID()
	file, err := store.Create(ctx, newInput(owner, nil, "report.txt", 42))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if file.ID.IsZero() {
		t.Error("ID should not be zero")
	}
	if !file.IsInRoot() {
		t.Error("file without folder should be in root")
	}

	got, err := store.GetByID(ctx, file.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Size != 42 || got.BlobID != "blob-report.txt" || got.OwnerID != owner {
		t.Errorf("GetByID() = %+v", got)
	}
}

func TestStore_Delete(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	file, _ := store.Create(ctx, newInput(primitive.NewObjectID(), nil, "x.txt", 1))
	if err := store.Delete(ctx, file.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.GetByID(ctx, file.ID); err != mongo.ErrNoDocuments {
		t.Errorf("GetByID() after Delete error = %v, want mongo.ErrNoDocuments", err)
	}
}

func TestStore_ListByOwner_Filters(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	owner := primitive.NewObjectID()
	img := newInput(owner, nil, "photo.png", 10)
	img.ContentType = "image/png"
	doc := newInput(owner, nil, "Quarterly Report.docx", 20)
	doc.ContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	store.Create(ctx, img)
	store.Create(ctx, doc)
	store.Create(ctx, newInput(primitive.NewObjectID(), nil, "other.png", 5))

	tests := []struct {
		name string
		opts ListOptions
		want int
	}{
		{"all", ListOptions{}, 2},
		{"prefix", ListOptions{ContentType: "image/"}, 1},
		{"contains", ListOptions{ContentType: "~word,excel"}, 1},
		{"search folded", ListOptions{Search: "quarterly"}, 1},
		{"search regex chars are literal", ListOptions{Search: "re(port"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files, err := store.ListByOwner(ctx, owner, tt.opts)
			if err != nil {
				t.Fatalf("ListByOwner() error = %v", err)
			}
			if len(files) != tt.want {
				t.Errorf("ListByOwner() = %d files, want %d", len(files), tt.want)
			}
		})
	}
}

func TestStore_ListInFolder_SortedActiveOnly(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	owner := primitive.NewObjectID()
	folderID := primitive.NewObjectID()
	store.Create(ctx, newInput(owner, &folderID, "b.txt", 1))
	store.Create(ctx, newInput(owner, &folderID, "A.txt", 1))
	gone, _ := store.Create(ctx, newInput(owner, &folderID, "gone.txt", 1))
	now := time.Now()
	store.SetDeleted(ctx, gone.ID, &now)

	files, err := store.ListInFolder(ctx, folderID)
	if err != nil {
		t.Fatalf("ListInFolder() error = %v", err)
	}
	if len(files) != 2 || files[0].Name != "A.txt" || files[1].Name != "b.txt" {
		t.Errorf("ListInFolder() = %v, want [A.txt b.txt]", files)
	}

	n, _ := store.CountActiveInFolder(ctx, folderID)
	if n != 2 {
		t.Errorf("CountActiveInFolder() = %d, want 2", n)
	}

	trashed, _ := store.ListTrashedInFolders(ctx, []primitive.ObjectID{folderID})
	if len(trashed) != 1 || trashed[0].ID != gone.ID {
		t.Errorf("ListTrashedInFolders() = %v, want [gone.txt]", trashed)
	}

	moved, err := store.DetachActiveInFolders(ctx, []primitive.ObjectID{folderID})
	if err != nil || moved != 2 {
		t.Errorf("DetachActiveInFolders() = %d, %v; want 2, nil", moved, err)
	}
	if left, _ := store.ListInFolder(ctx, folderID); len(left) != 0 {
		t.Errorf("ListInFolder() after detach = %d, want 0", len(left))
	}
	g, _ := store.GetByID(ctx, gone.ID)
	if g.FolderID == nil || *g.FolderID != folderID {
		t.Errorf("trashed file folder = %v, want %v", g.FolderID, folderID)
	}
}

func TestStore_SetDeletedInFolders(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	owner := primitive.NewObjectID()
	f1, f2 := primitive.NewObjectID(), primitive.NewObjectID()
	a, _ := store.Create(ctx, newInput(owner, &f1, "a", 1))
	b, _ := store.Create(ctx, newInput(owner, &f2, "b", 1))
	outside, _ := store.Create(ctx, newInput(owner, nil, "c", 1))

	at := time.Now().Truncate(time.Millisecond)
	n, err := store.SetDeletedInFolders(ctx, []primitive.ObjectID{f1, f2}, &at)
	if err != nil || n != 2 {
		t.Fatalf("SetDeletedInFolders() = %d, %v; want 2, nil", n, err)
	}

	for _, id := range []primitive.ObjectID{a.ID, b.ID} {
		got, _ := store.GetByID(ctx, id)
		if !got.IsDeleted || got.DeletedAt == nil || !got.DeletedAt.Equal(at) {
			t.Errorf("file %v deleted=%v at=%v, want deleted at %v", id, got.IsDeleted, got.DeletedAt, at)
		}
	}
	got, _ := store.GetByID(ctx, outside.ID)
	if got.IsDeleted {
		t.Error("file outside the folder set should not be trashed")
	}

	store.SetDeletedInFolders(ctx, []primitive.ObjectID{f1, f2}, nil)
	trashed, _ := store.ListTrashed(ctx, owner)
	if len(trashed) != 0 {
		t.Errorf("ListTrashed() after restore = %d, want 0", len(trashed))
	}
}

func TestStore_SumSizesByOwner(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	owner := primitive.NewObjectID()
	if total, _ := store.SumSizesByOwner(ctx, owner); total != 0 {
		t.Errorf("SumSizesByOwner() empty = %d, want 0", total)
	}

	store.Create(ctx, newInput(owner, nil, "a", 100))
	trashed, _ := store.Create(ctx, newInput(owner, nil, "b", 50))
	now := time.Now()
	store.SetDeleted(ctx, trashed.ID, &now)
	store.Create(ctx, newInput(primitive.NewObjectID(), nil, "c", 999))

	total, err := store.SumSizesByOwner(ctx, owner)
	if err != nil {
		t.Fatalf("SumSizesByOwner() error = %v", err)
	}
	if total != 150 {
		t.Errorf("SumSizesByOwner() = %d, want 150", total)
	}
}

func TestStore_SharesAndStars(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	owner := primitive.NewObjectID()
	f, _ := store.Create(ctx, newInput(owner, nil, "s.txt", 1))

	store.AddShare(ctx, f.ID, "friend@example.com")
	store.AddShare(ctx, f.ID, "friend@example.com")
	store.SetStarred(ctx, f.ID, true)

	got, _ := store.GetByID(ctx, f.ID)
	if len(got.SharedWith) != 1 || !got.IsStarred {
		t.Errorf("file = shares %v starred %v, want one share and starred", got.SharedWith, got.IsStarred)
	}

	shared, _ := store.ListSharedWith(ctx, "friend@example.com")
	starred, _ := store.ListStarred(ctx, owner)
	if len(shared) != 1 || len(starred) != 1 {
		t.Errorf("ListSharedWith() = %d, ListStarred() = %d, want 1 and 1", len(shared), len(starred))
	}

	store.RemoveShare(ctx, f.ID, "friend@example.com")
	shared, _ = store.ListSharedWith(ctx, "friend@example.com")
	if len(shared) != 0 {
		t.Errorf("ListSharedWith() after RemoveShare = %d, want 0", len(shared))
	}
}

func TestFileTypeCategory(t *testing.T) {
	tests := []struct {
		contentType string
		want        string
	}{
		{"image/png", "image"},
		{"image/jpeg", "image"},
		{"video/mp4", "video"},
		{"audio/mpeg", "audio"},
		{"application/pdf", "pdf"},
		{"application/vnd.ms-excel", "spreadsheet"},
		{"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "spreadsheet"},
		{"application/msword", "document"},
		{"application/vnd.openxmlformats-officedocument.wordprocessingml.document", "document"},
		{"application/vnd.ms-powerpoint", "presentation"},
		{"application/zip", "archive"},
		{"application/x-compressed", "archive"},
		{"text/plain", "file"},
		{"unknown/type", "file"},
	}

	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			got := FileTypeCategory(tt.contentType)
			if got != tt.want {
				t.Errorf("FileTypeCategory(%q) = %q, want %q", tt.contentType, got, tt.want)
			}
		})
	}
}
