// Package txn runs a group of writes in a MongoDB transaction when the
// deployment supports one, and directly when it does not.
package txn

import (
	"context"
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Run calls fn inside a transaction on db's client. fn must do all of its
// database work through the ctx it is given.
//
// A standalone mongod cannot run transactions. In that case fn is run
// again without one and a warning is logged, so the writes are applied
// but not atomically.
func Run(ctx context.Context, db *mongo.Database, log *zap.Logger, fn func(ctx context.Context) error) error {
	if log == nil {
		log = zap.NewNop()
	}

	session, err := db.Client().StartSession()
	if err != nil {
		log.Warn("txn: no session, running without a transaction", zap.Error(err))
		return fn(ctx)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		return nil, fn(sc)
	})
	if err != nil && Unsupported(err) {
		log.Warn("txn: transactions unavailable, running without one", zap.Error(err))
		return fn(ctx)
	}
	return err
}

// unsupportedCodes are server error codes meaning the deployment cannot
// run a multi-document transaction: 20 (IllegalOperation on a standalone)
// and 263 (OperationNotSupportedInTransaction).
var unsupportedCodes = map[int32]bool{20: true, 263: true}

// Unsupported reports whether err means transactions are unavailable, as
// opposed to a transaction that ran and failed.
func Unsupported(err error) bool {
	if err == nil {
		return false
	}
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) && unsupportedCodes[cmdErr.Code] {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "transaction numbers are only allowed") ||
		strings.Contains(msg, "transactions are not supported")
}
