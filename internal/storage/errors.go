package storage

import "attestry/pkg/platform/sentinel"

// Storage aliases the shared sentinels so store users can branch on facts
// without importing the sentinel package everywhere.
var (
	ErrNotFound     = sentinel.ErrNotFound
	ErrConflict     = sentinel.ErrConflict
	ErrInvalidState = sentinel.ErrInvalidState
	ErrInsufficient = sentinel.ErrInsufficient
	ErrOverflow     = sentinel.ErrOverflow
)
