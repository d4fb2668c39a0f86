package remote

import (
	"bytes"
	"context"
	"errors"
	"io"

	"wardroster/internal/blob"
	"wardroster/pkg/domain"
)

const contentType = "application/json"

// BlobResources stores the roster as a single blob keyed by prefix+name. The
// resource id is the blob key.
type BlobResources struct {
	store  blob.Store
	prefix string
}

// NewBlobResources adapts store. prefix is prepended to every resource name.
func NewBlobResources(store blob.Store, prefix string) *BlobResources {
	return &BlobResources{store: store, prefix: prefix}
}

func (b *BlobResources) Find(ctx context.Context, name string) (Resource, bool, error) {
	key := b.prefix + name
	info, err := b.store.Head(ctx, key)
	if errors.Is(err, blob.ErrNotFound) {
		return Resource{}, false, nil
	}
	if err != nil {
		return Resource{}, false, domain.TransportError{Op: "find", Err: err}
	}
	return resourceFrom(name, info), true, nil
}

func (b *BlobResources) Create(ctx context.Context, name string, content []byte) (Resource, error) {
	info, err := b.store.Put(ctx, b.prefix+name, bytes.NewReader(content), blob.PutOptions{ContentType: contentType})
	if err != nil {
		return Resource{}, domain.TransportError{Op: "create", Err: err}
	}
	return resourceFrom(name, info), nil
}

func (b *BlobResources) Update(ctx context.Context, id string, content []byte) (Resource, error) {
	info, err := b.store.Replace(ctx, id, bytes.NewReader(content), blob.PutOptions{ContentType: contentType})
	if err != nil {
		return Resource{}, domain.TransportError{Op: "update", Err: err}
	}
	return resourceFrom(b.name(id), info), nil
}

func (b *BlobResources) Read(ctx context.Context, id string) ([]byte, error) {
	_, rc, err := b.store.Get(ctx, id)
	if err != nil {
		return nil, domain.TransportError{Op: "read", Err: err}
	}
	defer rc.Close()
	content, err := io.ReadAll(rc)
	if err != nil {
		return nil, domain.TransportError{Op: "read", Err: err}
	}
	return content, nil
}

func (b *BlobResources) name(key string) string {
	if len(key) >= len(b.prefix) && key[:len(b.prefix)] == b.prefix {
		return key[len(b.prefix):]
	}
	return key
}

func resourceFrom(name string, info blob.Info) Resource {
	return Resource{ID: info.Key, Name: name, ModifiedTime: info.LastModified}
}
