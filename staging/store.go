// Package staging holds raw court tables between the parallel units of a run
// and the final consolidation. Keys are unique per task, so units never
// contend on the same object.
package staging

import (
	"context"
	"errors"
	"io"
	"time"
)

// Driver names a staging backend.
type Driver string

const (
	DriverMemory     Driver = "memory"
	DriverFilesystem Driver = "fs"
	DriverS3         Driver = "s3"
)

var (
	ErrExists   = errors.New("staged object already exists")
	ErrNotFound = errors.New("staged object not found")
)

// Info describes a staged object.
type Info struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Store is a create-only object store. List returns keys sorted
// lexicographically.
type Store interface {
	Driver() Driver
	Put(ctx context.Context, key string, r io.Reader) (Info, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]Info, error)
}
