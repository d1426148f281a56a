package generation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersister_Persist(t *testing.T) {
	ctx := context.Background()
	ownerID := uuid.New()
	jobID := uuid.New()

	t.Run("stores declared type under the output key", func(t *testing.T) {
		storage := newMemStorage()
		p := NewPersister(storage, 1024, nil)

		obj, err := p.Persist(ctx, PersistInput{OwnerID: ownerID, JobID: jobID, VariantIndex: 2, Data: pngBytes, MimeType: "image/png"})

		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("generations/%s/%s/2.png", ownerID, jobID), obj.Key)
		assert.Equal(t, "image/png", obj.MimeType)
		assert.Equal(t, int64(len(pngBytes)), obj.Size)
		sum := sha256.Sum256(pngBytes)
		assert.Equal(t, hex.EncodeToString(sum[:]), obj.ContentHash)
		assert.Equal(t, pngBytes, storage.objects[obj.Key])
	})

	t.Run("image/jpg is normalized", func(t *testing.T) {
		p := NewPersister(newMemStorage(), 1024, nil)

		obj, err := p.Persist(ctx, PersistInput{OwnerID: ownerID, JobID: jobID, Data: []byte("jpeg"), MimeType: "image/jpg"})

		require.NoError(t, err)
		assert.Equal(t, "image/jpeg", obj.MimeType)
		assert.Contains(t, obj.Key, "/0.jpg")
	})

	t.Run("sniffs undeclared type", func(t *testing.T) {
		p := NewPersister(newMemStorage(), 1024, nil)

		obj, err := p.Persist(ctx, PersistInput{OwnerID: ownerID, JobID: jobID, Data: pngBytes})

		require.NoError(t, err)
		assert.Equal(t, "image/png", obj.MimeType)
	})

	t.Run("rejects disallowed type", func(t *testing.T) {
		p := NewPersister(newMemStorage(), 1024, nil)

		_, err := p.Persist(ctx, PersistInput{OwnerID: ownerID, JobID: jobID, Data: []byte("<svg/>"), MimeType: "image/svg+xml"})
		assert.ErrorIs(t, err, ErrInvalidOutput)
	})

	t.Run("rejects empty and oversize images", func(t *testing.T) {
		p := NewPersister(newMemStorage(), 4, nil)

		_, err := p.Persist(ctx, PersistInput{OwnerID: ownerID, JobID: jobID, MimeType: "image/png"})
		assert.ErrorIs(t, err, ErrInvalidOutput)

		_, err = p.Persist(ctx, PersistInput{OwnerID: ownerID, JobID: jobID, Data: pngBytes, MimeType: "image/png"})
		assert.ErrorIs(t, err, ErrInvalidOutput)
	})

	t.Run("storage failure", func(t *testing.T) {
		storage := newMemStorage()
		storage.putErr = errors.New("bucket unavailable")
		p := NewPersister(storage, 1024, nil)

		_, err := p.Persist(ctx, PersistInput{OwnerID: ownerID, JobID: jobID, Data: pngBytes, MimeType: "image/png"})
		assert.ErrorIs(t, err, ErrStorageWrite)
		assert.False(t, isInvalidOutput(err))
	})
}
