package outbound

import (
	"context"
)

// ObjectStoragePort defines object storage operations.
type ObjectStoragePort interface {
	// Put uploads an object. It returns only after the write is durable.
	Put(ctx context.Context, key string, data []byte, contentType string) error
}
