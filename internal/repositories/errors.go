package repositories

import "errors"

// ErrNotFound is returned by single-record getters when no record matches.
// List operations return an empty slice instead.
var ErrNotFound = errors.New("record not found")

// ErrSystemTemplate is returned when attempting to delete or mutate a
// system role template.
var ErrSystemTemplate = errors.New("system role templates are immutable")

// ErrTemplateInUse is returned when deleting a role template that is still
// referenced by active assignments.
var ErrTemplateInUse = errors.New("role template has active assignments")
