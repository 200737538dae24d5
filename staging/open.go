package staging

import (
	"context"
	"fmt"
)

// Options selects and configures a staging backend.
type Options struct {
	Driver Driver
	FSRoot string
	S3     S3Config
}

// Open returns the store named by opts.Driver. The zero value selects the
// in-memory store.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case "", DriverMemory:
		return NewMemory(), nil
	case DriverFilesystem:
		return NewFilesystem(opts.FSRoot)
	case DriverS3:
		return NewS3(ctx, opts.S3)
	default:
		return nil, fmt.Errorf("unknown staging driver %q", opts.Driver)
	}
}
