package userstore

import (
	"context"
	"errors"

	"github.com/dalemusser/stratadrive/internal/app/system/auth"
	"github.com/dalemusser/stratadrive/internal/app/system/timeouts"
	"github.com/dalemusser/stratadrive/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

var identityProjection = bson.M{"_id": 1, "email": 1, "full_name": 1}

// Identity loads only the fields a request needs to know who is calling.
func (s *Store) Identity(ctx context.Context, id primitive.ObjectID) (models.User, error) {
	var u models.User
	err := s.c.FindOne(ctx, bson.M{"_id": id}, options.FindOne().SetProjection(identityProjection)).Decode(&u)
	return u, err
}

// Fetcher resolves token subjects to accounts for auth.RequireUser, so a
// deleted account stops working even while its token is unexpired.
type Fetcher struct {
	store  *Store
	logger *zap.Logger
}

func NewFetcher(db *mongo.Database, logger *zap.Logger) *Fetcher {
	return &Fetcher{store: New(db), logger: logger}
}

// FetchUser returns nil when the account is gone or the lookup fails.
func (f *Fetcher) FetchUser(ctx context.Context, id primitive.ObjectID) *auth.User {
	ctx, cancel := context.WithTimeout(ctx, timeouts.Short())
	defer cancel()

	u, err := f.store.Identity(ctx, id)
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		f.logger.Debug("token for missing user", zap.String("user_id", id.Hex()))
		return nil
	case err != nil:
		f.logger.Warn("fetch user failed", zap.String("user_id", id.Hex()), zap.Error(err))
		return nil
	}
	return &auth.User{ID: u.ID, Email: u.Email, Name: u.FullName}
}
