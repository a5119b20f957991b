package drive

import (
	"context"
	"strings"
	"testing"

	"github.com/dalemusser/stratadrive/internal/app/system/blobstore"
	"github.com/dalemusser/stratadrive/internal/domain/models"
	"github.com/dalemusser/stratadrive/internal/testutil"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

type fixture struct {
	svc   *Service
	db    *mongo.Database
	blobs *blobstore.Memory
	ctx   context.Context
	owner Requester
	bob   Requester
	eve   Requester
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.SetupTestDB(t)
	blobs := blobstore.NewMemory()

	ctx, cancel := testutil.TestContext()
	t.Cleanup(cancel)

	mk := func(email string) Requester {
		u := testutil.InsertUser(t, db, email, 0)
		return Requester{ID: u.ID, Email: u.Email}
	}

	return &fixture{
		svc:   New(db, blobs, Config{}, zap.NewNop()),
		db:    db,
		blobs: blobs,
		ctx:   ctx,
		owner: mk("owner@example.com"),
		bob:   mk("bob@x.com"),
		eve:   mk("eve@example.com"),
	}
}

func (fx *fixture) folder(t *testing.T, who Requester, name string, parent *primitive.ObjectID) *models.Folder {
	t.Helper()
	f, err := fx.svc.CreateFolder(fx.ctx, who, name, parent)
	require.NoError(t, err)
	return &f.Folder
}

func (fx *fixture) upload(t *testing.T, who Requester, folder *primitive.ObjectID, name string, size int) *models.File {
	t.Helper()
	f, err := fx.svc.Upload(fx.ctx, who, UploadInput{
		FolderID:    folder,
		Name:        name,
		Size:        int64(size),
		ContentType: "text/plain",
		Body:        strings.NewReader(strings.Repeat("x", size)),
	})
	require.NoError(t, err)
	return f
}

func (fx *fixture) usage(t *testing.T, who Requester) int64 {
	t.Helper()
	u, err := fx.svc.Usage(fx.ctx, who)
	require.NoError(t, err)
	return u.Used
}

// setUsage writes storage_used directly, bypassing the ledger, to stage drift.
func (fx *fixture) setUsage(t *testing.T, who Requester, used int64) {
	t.Helper()
	_, err := fx.db.Collection("users").UpdateOne(fx.ctx, bson.M{"_id": who.ID}, bson.M{"$set": bson.M{"storage_used": used}})
	require.NoError(t, err)
}

func (fx *fixture) reloadFolder(t *testing.T, id primitive.ObjectID) *models.Folder {
	t.Helper()
	f, err := fx.svc.folders.GetByID(fx.ctx, id)
	require.NoError(t, err)
	return f
}

func (fx *fixture) reloadFile(t *testing.T, id primitive.ObjectID) *models.File {
	t.Helper()
	f, err := fx.svc.files.GetByID(fx.ctx, id)
	require.NoError(t, err)
	return f
}

func idPtr(id primitive.ObjectID) *primitive.ObjectID { return &id }
