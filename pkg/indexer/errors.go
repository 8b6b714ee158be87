package indexer

import "errors"

var (
	// ErrEntityNotRegistered is returned by operations that require a
	// registered entity, such as ReindexEntity.
	ErrEntityNotRegistered = errors.New("entity not registered")

	// ErrEmptyQuery is returned by Search for a blank query.
	ErrEmptyQuery = errors.New("search query is empty")
)
