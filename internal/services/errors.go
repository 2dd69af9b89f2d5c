package services

import (
	"errors"
	"fmt"

	"github.com/Xyvin-Technologies-Pvt-Ltd/backend-loyalty-demo-sub000/internal/repositories"
	"go.mongodb.org/mongo-driver/mongo"
)

// Ledger error taxonomy. Handlers map these to distinct HTTP outcomes;
// batch jobs use them to decide whether a failure is retryable.
var (
	// ErrValidation: malformed input, rejected before any write.
	ErrValidation = errors.New("validation error")

	// ErrInsufficientBalance: business rejection; no lot or balance
	// mutation happened. Never retried.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrNotFound: customer, tier, transaction or criteria absent.
	ErrNotFound = errors.New("not found")

	// ErrConfiguration: required configuration absent and no documented
	// default applies; the operation fails closed.
	ErrConfiguration = errors.New("configuration error")

	// ErrTransientStore: lock/write conflict or store timeout; safe for
	// the caller to retry with backoff.
	ErrTransientStore = errors.New("transient store error")

	// ErrAlreadyCancelled: the redemption was cancelled before.
	ErrAlreadyCancelled = errors.New("redemption already cancelled")

	// ErrInvalidCredentials: admin login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// DuplicateRequestError reports that the idempotency key was already
// processed. It is a no-op success, not a failure: Prior carries the
// transaction recorded by the first submission.
type DuplicateRequestError struct {
	IdempotencyKey string
}

func (e *DuplicateRequestError) Error() string {
	return fmt.Sprintf("duplicate request: idempotency key %q already processed", e.IdempotencyKey)
}

// isNotFound recognizes the not-found condition from either store backend.
func isNotFound(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments) || errors.Is(err, repositories.ErrNotFound)
}

// isDuplicateKey recognizes a unique-index violation from either backend.
func isDuplicateKey(err error) bool {
	return mongo.IsDuplicateKeyError(err) || errors.Is(err, repositories.ErrDuplicateKey)
}

// isTransient recognizes store conflicts worth retrying: Mongo transient
// transaction and write-conflict labels, plus driver timeouts.
func isTransient(err error) bool {
	if errors.Is(err, ErrTransientStore) {
		return true
	}
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.HasErrorLabel("TransientTransactionError") ||
			cmdErr.HasErrorLabel("UnknownTransactionCommitResult") ||
			cmdErr.Name == "WriteConflict"
	}
	return mongo.IsTimeout(err)
}
