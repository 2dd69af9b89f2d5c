package mongodb

import (
	"context"

	"github.com/Xyvin-Technologies-Pvt-Ltd/backend-loyalty-demo-sub000/internal/repositories"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
	"golang.org/x/exp/slog"
)

// Compile-time check to ensure UnitOfWork implements the interface
var _ repositories.UnitOfWork = (*UnitOfWork)(nil)

// UnitOfWork runs ledger operations atomically when the deployment supports
// multi-document transactions (replica set / sharded cluster). On a
// standalone node it degrades to best-effort sequential writes with no
// rollback; the degradation is an explicit capability reported by
// Transactional, never a silent fallback.
type UnitOfWork struct {
	client        *mongo.Client
	transactional bool
}

// NewUnitOfWork creates a UnitOfWork. transactional reflects the deployment
// topology (see pkg/mongodb SupportsTransactions).
func NewUnitOfWork(client *mongo.Client, transactional bool) *UnitOfWork {
	if !transactional {
		slog.Warn("MongoDB transactions unavailable; ledger operations run best-effort without rollback")
	}
	return &UnitOfWork{client: client, transactional: transactional}
}

// Transactional reports whether WithinTransaction provides real atomicity
func (u *UnitOfWork) Transactional() bool {
	return u.transactional
}

// WithinTransaction executes fn inside a session transaction when supported.
// The context handed to fn is a session context, so repository calls made
// with it join the transaction. The driver retries fn on transient
// transaction errors, so fn must be safe to re-run from the top.
func (u *UnitOfWork) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if !u.transactional {
		return fn(ctx)
	}

	session, err := u.client.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)

	txOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	}, txOpts)
	return err
}
