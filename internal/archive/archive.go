// Package archive exposes the write-once object store that keeps audit
// reports, and selects its backend from configuration. Other packages depend
// on this package rather than on the infra backends.
package archive

import (
	"context"
	"fmt"

	"cylindercore/internal/archive/core"
	"cylindercore/internal/infra/archive/fs"
	"cylindercore/internal/infra/archive/memory"
	"cylindercore/internal/infra/archive/s3"
)

type (
	// Store is the archive object store contract.
	Store = core.Store
	// Driver identifies a backend.
	Driver = core.Driver
	// Info describes a stored object.
	Info = core.Info
	// PutOptions specifies optional parameters for Put.
	PutOptions = core.PutOptions
	// SignedURLOptions configures URL pre-signing.
	SignedURLOptions = core.SignedURLOptions
	// S3Config holds the parameters of the S3 backend.
	S3Config = s3.Config
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

var (
	ErrExists      = core.ErrExists
	ErrNotFound    = core.ErrNotFound
	ErrUnsupported = core.ErrUnsupported
)

// Config selects and parameterises a backend.
type Config struct {
	Driver Driver // fs|s3|memory, default fs
	FSRoot string
	S3     S3Config
}

// Open returns the Store described by cfg.
func Open(ctx context.Context, cfg Config) (Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverFilesystem
	}
	switch driver {
	case DriverFilesystem:
		return fs.New(cfg.FSRoot)
	case DriverS3:
		return s3.New(ctx, cfg.S3)
	case DriverMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown archive driver %q", driver)
	}
}

// NewMemory returns an empty in-memory store.
func NewMemory() Store { return memory.New() }
