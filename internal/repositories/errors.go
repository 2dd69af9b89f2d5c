package repositories

import "errors"

// Store-level sentinel errors. The Mongo implementations surface driver
// errors directly (mongo.ErrNoDocuments, duplicate-key write errors); the
// memory implementations return these. Services treat both spellings as the
// same condition via errors.Is/IsDuplicateKey helpers.
var (
	ErrNotFound     = errors.New("repository: document not found")
	ErrDuplicateKey = errors.New("repository: duplicate key")
)
