package drive

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func countFiles(t *testing.T, fx *fixture, owner primitive.ObjectID) int64 {
	t.Helper()
	n, err := fx.db.Collection("files").CountDocuments(fx.ctx, bson.M{"owner_id": owner})
	require.NoError(t, err)
	return n
}

func TestUpload(t *testing.T) {
	fx := newFixture(t)
	docs := fx.folder(t, fx.owner, "Docs", nil)

	f, err := fx.svc.Upload(fx.ctx, fx.owner, UploadInput{
		FolderID:    &docs.ID,
		Name:        "my report (final).pdf",
		Size:        5,
		ContentType: "application/pdf",
		Body:        strings.NewReader("hello"),
	})
	require.NoError(t, err)

	assert.Equal(t, "my report (final).pdf", f.Name)
	assert.EqualValues(t, 5, f.Size)
	assert.Equal(t, docs.ID, *f.FolderID)
	assert.True(t, strings.HasPrefix(f.BlobName, fx.owner.ID.Hex()+"/"))
	assert.True(t, strings.HasSuffix(f.BlobName, "-my_report__final_.pdf"))

	data, ok := fx.blobs.Read(f.BlobName)
	require.True(t, ok)
	assert.Equal(t, "hello", string(data))
	assert.EqualValues(t, 5, fx.usage(t, fx.owner))
}

func TestUpload_DefaultsAndValidation(t *testing.T) {
	fx := newFixture(t)

	f, err := fx.svc.Upload(fx.ctx, fx.owner, UploadInput{Name: "blob", Size: 1, Body: strings.NewReader("x")})
	require.NoError(t, err)
	assert.Equal(t, "application/octet-stream", f.ContentType)
	assert.Nil(t, f.FolderID)

	_, err = fx.svc.Upload(fx.ctx, fx.owner, UploadInput{Name: "", Size: 1, Body: strings.NewReader("x")})
	assert.True(t, IsKind(err, InvalidInput))

	_, err = fx.svc.Upload(fx.ctx, fx.owner, UploadInput{Name: "a", Size: 1})
	assert.True(t, IsKind(err, InvalidInput))

	theirs := fx.folder(t, fx.eve, "Theirs", nil)
	_, err = fx.svc.Upload(fx.ctx, fx.owner, UploadInput{FolderID: &theirs.ID, Name: "a", Size: 1, Body: strings.NewReader("x")})
	assert.True(t, IsKind(err, Forbidden))
}

func TestUpload_QuotaBoundary(t *testing.T) {
	fx := newFixture(t)
	fx.setUsage(t, fx.owner, 262_143_990)

	fx.upload(t, fx.owner, nil, "ten.bin", 10)
	assert.EqualValues(t, 262_144_000, fx.usage(t, fx.owner))

	_, err := fx.svc.Upload(fx.ctx, fx.owner, UploadInput{Name: "one.bin", Size: 1, Body: strings.NewReader("x")})
	assert.True(t, IsKind(err, QuotaExceeded), "got %v", err)

	assert.EqualValues(t, 262_144_000, fx.usage(t, fx.owner))
	assert.EqualValues(t, 1, countFiles(t, fx, fx.owner.ID))
	assert.Equal(t, 1, fx.blobs.Len())
}

func TestUpload_BlobFailure(t *testing.T) {
	fx := newFixture(t)
	fx.blobs.FailOn("upload", errors.New("bucket unreachable"))

	_, err := fx.svc.Upload(fx.ctx, fx.owner, UploadInput{Name: "a.txt", Size: 3, Body: strings.NewReader("abc")})
	assert.True(t, IsKind(err, UpstreamFailure), "got %v", err)

	assert.Zero(t, fx.usage(t, fx.owner))
	assert.Zero(t, countFiles(t, fx, fx.owner.ID))
}

func TestUpload_Cancelled(t *testing.T) {
	fx := newFixture(t)
	ctx, cancel := context.WithCancel(fx.ctx)
	cancel()

	_, err := fx.svc.Upload(ctx, fx.owner, UploadInput{Name: "a.txt", Size: 3, Body: strings.NewReader("abc")})
	require.Error(t, err)

	assert.Zero(t, fx.usage(t, fx.owner))
	assert.Zero(t, countFiles(t, fx, fx.owner.ID))
	assert.Zero(t, fx.blobs.Len())
}

func TestUpload_ConcurrentCommits(t *testing.T) {
	fx := newFixture(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := fx.svc.Upload(fx.ctx, fx.owner, UploadInput{Name: "f.txt", Size: 100, Body: strings.NewReader(strings.Repeat("x", 100))})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1000, fx.usage(t, fx.owner))
	assert.EqualValues(t, 10, countFiles(t, fx, fx.owner.ID))
}

func TestScenario_TrashFolderKeepsUsage(t *testing.T) {
	fx := newFixture(t)

	docs := fx.folder(t, fx.owner, "Docs", nil)
	a := fx.upload(t, fx.owner, &docs.ID, "a.txt", 1000)

	_, err := fx.svc.SoftDeleteFolder(fx.ctx, fx.owner, docs.ID)
	require.NoError(t, err)

	assert.True(t, fx.reloadFolder(t, docs.ID).IsDeleted)
	assert.True(t, fx.reloadFile(t, a.ID).IsDeleted)
	assert.EqualValues(t, 1000, fx.usage(t, fx.owner))
}

func TestDownloadURL(t *testing.T) {
	fx := newFixture(t)
	f := fx.upload(t, fx.owner, nil, "a.txt", 1)

	url, expires, err := fx.svc.DownloadURL(fx.ctx, fx.owner, f.ID)
	require.NoError(t, err)
	assert.Contains(t, url, "memory://")
	assert.False(t, expires.IsZero())

	_, _, err = fx.svc.DownloadURL(fx.ctx, fx.bob, f.ID)
	assert.True(t, IsKind(err, Forbidden))

	_, err = fx.svc.ShareFile(fx.ctx, fx.owner, f.ID, "bob@x.com")
	require.NoError(t, err)
	_, _, err = fx.svc.DownloadURL(fx.ctx, fx.bob, f.ID)
	require.NoError(t, err)

	_, _, err = fx.svc.DownloadURL(fx.ctx, fx.owner, primitive.NewObjectID())
	assert.True(t, IsKind(err, NotFound))

	fx.blobs.FailOn("sign", errors.New("signer down"))
	_, _, err = fx.svc.DownloadURL(fx.ctx, fx.owner, f.ID)
	assert.True(t, IsKind(err, UpstreamFailure))
}

func TestFileMutations(t *testing.T) {
	fx := newFixture(t)
	docs := fx.folder(t, fx.owner, "Docs", nil)
	f := fx.upload(t, fx.owner, nil, "a.txt", 1)

	renamed, err := fx.svc.RenameFile(fx.ctx, fx.owner, f.ID, "b.txt")
	require.NoError(t, err)
	assert.Equal(t, "b.txt", renamed.Name)
	_, err = fx.svc.RenameFile(fx.ctx, fx.owner, f.ID, "../b.txt")
	assert.True(t, IsKind(err, InvalidInput))

	moved, err := fx.svc.MoveFile(fx.ctx, fx.owner, f.ID, &docs.ID)
	require.NoError(t, err)
	assert.Equal(t, docs.ID, *moved.FolderID)
	assert.Equal(t, docs.ID, *fx.reloadFile(t, f.ID).FolderID)

	starred, err := fx.svc.ToggleFileStar(fx.ctx, fx.owner, f.ID)
	require.NoError(t, err)
	assert.True(t, starred.IsStarred)

	// Sharee cannot mutate.
	_, err = fx.svc.ShareFile(fx.ctx, fx.owner, f.ID, "bob@x.com")
	require.NoError(t, err)
	_, err = fx.svc.RenameFile(fx.ctx, fx.bob, f.ID, "mine.txt")
	assert.True(t, IsKind(err, Forbidden))
	_, err = fx.svc.MoveFile(fx.ctx, fx.bob, f.ID, nil)
	assert.True(t, IsKind(err, Forbidden))
	_, err = fx.svc.ToggleFileStar(fx.ctx, fx.bob, f.ID)
	assert.True(t, IsKind(err, Forbidden))

	shared, err := fx.svc.ListSharedFiles(fx.ctx, fx.bob)
	require.NoError(t, err)
	require.Len(t, shared, 1)

	unshared, err := fx.svc.UnshareFile(fx.ctx, fx.owner, f.ID, "bob@x.com")
	require.NoError(t, err)
	assert.Empty(t, unshared.SharedWith)
}

func TestShareFile_Idempotent(t *testing.T) {
	fx := newFixture(t)
	f := fx.upload(t, fx.owner, nil, "a.txt", 1)

	for i := 0; i < 2; i++ {
		_, err := fx.svc.ShareFile(fx.ctx, fx.owner, f.ID, "bob@x.com")
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"bob@x.com"}, fx.reloadFile(t, f.ID).SharedWith)
}

func TestListFiles(t *testing.T) {
	fx := newFixture(t)
	fx.upload(t, fx.owner, nil, "Photo.jpg", 2)
	fx.upload(t, fx.owner, nil, "notes.txt", 3)
	trashed := fx.upload(t, fx.owner, nil, "old.txt", 4)
	fx.upload(t, fx.eve, nil, "theirs.txt", 5)

	_, err := fx.svc.SoftDeleteFile(fx.ctx, fx.owner, trashed.ID)
	require.NoError(t, err)

	files, usage, err := fx.svc.ListFiles(fx.ctx, fx.owner, FileFilter{})
	require.NoError(t, err)
	assert.Len(t, files, 2)
	assert.EqualValues(t, 9, usage.Used)

	files, _, err = fx.svc.ListFiles(fx.ctx, fx.owner, FileFilter{Search: "photo"})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "Photo.jpg", files[0].Name)
}

func TestReconcileQuota(t *testing.T) {
	fx := newFixture(t)
	fx.upload(t, fx.owner, nil, "a.txt", 30)
	trashed := fx.upload(t, fx.owner, nil, "b.txt", 12)
	_, err := fx.svc.SoftDeleteFile(fx.ctx, fx.owner, trashed.ID)
	require.NoError(t, err)

	rec, err := fx.svc.ReconcileQuota(fx.ctx, fx.owner.ID)
	require.NoError(t, err)
	assert.False(t, rec.Drifted())

	fx.setUsage(t, fx.owner, 999)
	rec, err = fx.svc.ReconcileQuota(fx.ctx, fx.owner.ID)
	require.NoError(t, err)
	assert.True(t, rec.Drifted())
	assert.True(t, rec.Corrected)
	assert.EqualValues(t, 999, rec.Recorded)
	assert.EqualValues(t, 42, rec.Actual)
	assert.EqualValues(t, 42, fx.usage(t, fx.owner))

	_, err = fx.svc.ReconcileQuota(fx.ctx, primitive.NewObjectID())
	assert.True(t, IsKind(err, NotFound))
}

func TestReconcileQuota_CommitDuringSum(t *testing.T) {
	fx := newFixture(t)
	fx.upload(t, fx.owner, nil, "a.txt", 30)
	fx.setUsage(t, fx.owner, 100)

	// An upload's usage change lands after the files were summed.
	fx.svc.testHookAfterSum = func() {
		require.NoError(t, fx.svc.quota.Commit(fx.ctx, fx.owner.ID, 5))
	}
	rec, err := fx.svc.ReconcileQuota(fx.ctx, fx.owner.ID)
	require.NoError(t, err)
	assert.True(t, rec.Drifted())
	assert.True(t, rec.Skipped)
	assert.False(t, rec.Corrected)
	assert.EqualValues(t, 105, fx.usage(t, fx.owner), "the commit must not be overwritten")

	fx.svc.testHookAfterSum = nil
	fx.setUsage(t, fx.owner, 100)
	rec, err = fx.svc.ReconcileQuota(fx.ctx, fx.owner.ID)
	require.NoError(t, err)
	assert.True(t, rec.Corrected)
	assert.EqualValues(t, 30, fx.usage(t, fx.owner))
}

func TestReconcileQuota_ConcurrentUploads(t *testing.T) {
	fx := newFixture(t)
	fx.upload(t, fx.owner, nil, "seed.txt", 10)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, err := fx.svc.Upload(fx.ctx, fx.owner, UploadInput{
				Name: fmt.Sprintf("f%d.txt", i),
				Size: 3,
				Body: strings.NewReader("abc"),
			})
			assert.NoError(t, err)
		}(i)
		go func() {
			defer wg.Done()
			_, err := fx.svc.ReconcileQuota(fx.ctx, fx.owner.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// Whatever interleaving happened, a quiet pass settles on the file total.
	rec, err := fx.svc.ReconcileQuota(fx.ctx, fx.owner.ID)
	require.NoError(t, err)
	assert.False(t, rec.Skipped)
	assert.EqualValues(t, 40, rec.Actual)
	assert.EqualValues(t, 40, fx.usage(t, fx.owner))
}
