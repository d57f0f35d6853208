// Package catalog defines errors shared by CatalogWriter implementations.
package catalog

import "errors"

// ErrDuplicate reports that a record conflicting with an existing row was
// rejected. It is distinguishable from other write failures so callers
// can tell "already cataloged" from "catalog unavailable".
var ErrDuplicate = errors.New("catalog: duplicate record")

// ErrNotFound reports that no record exists for the requested id.
var ErrNotFound = errors.New("catalog: record not found")
