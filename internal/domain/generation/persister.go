package generation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"mime"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/thumbforge/server/internal/port/outbound"
	"github.com/thumbforge/server/internal/utils/metrics"
)

// allowedOutputTypes maps accepted output MIME types to their key extension.
var allowedOutputTypes = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpg",
	"image/webp": "webp",
	"image/gif":  "gif",
}

// PersistInput is one provider image to store.
type PersistInput struct {
	OwnerID      uuid.UUID
	JobID        uuid.UUID
	VariantIndex int
	Data         []byte
	MimeType     string
}

// StoredObject describes bytes that were durably written.
type StoredObject struct {
	Key         string
	MimeType    string
	Size        int64
	ContentHash string
}

// Persister validates provider images and writes them to object storage.
type Persister struct {
	storage  outbound.ObjectStoragePort
	maxBytes int64
	metrics  *metrics.Metrics
}

// NewPersister creates an output persister.
func NewPersister(storage outbound.ObjectStoragePort, maxBytes int64, m *metrics.Metrics) *Persister {
	if maxBytes <= 0 {
		maxBytes = DefaultConfig().MaxOutputBytes
	}
	return &Persister{
		storage:  storage,
		maxBytes: maxBytes,
		metrics:  m,
	}
}

// Persist checks type and size, hashes the bytes and stores them under
// generations/<owner>/<job>/<variant>.<ext>. It returns only after the write succeeded.
func (p *Persister) Persist(ctx context.Context, in PersistInput) (*StoredObject, error) {
	size := int64(len(in.Data))
	if size == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrInvalidOutput)
	}
	if size > p.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrInvalidOutput, size, p.maxBytes)
	}

	contentType, ext, err := resolveOutputType(in.MimeType, in.Data)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(in.Data)
	obj := &StoredObject{
		Key:         OutputKey(in.OwnerID, in.JobID, in.VariantIndex, ext),
		MimeType:    contentType,
		Size:        size,
		ContentHash: hex.EncodeToString(sum[:]),
	}

	start := time.Now()
	if err := p.storage.Put(ctx, obj.Key, in.Data, contentType); err != nil {
		p.metrics.RecordStorageWrite("error", size, time.Since(start))
		return nil, fmt.Errorf("%w: %v", ErrStorageWrite, err)
	}
	p.metrics.RecordStorageWrite("success", size, time.Since(start))

	return obj, nil
}

// OutputKey returns the object key of one output.
func OutputKey(ownerID, jobID uuid.UUID, variantIndex int, ext string) string {
	return fmt.Sprintf("generations/%s/%s/%d.%s", ownerID, jobID, variantIndex, ext)
}

// resolveOutputType uses the declared MIME type when present and sniffs the bytes otherwise.
func resolveOutputType(declared string, data []byte) (string, string, error) {
	contentType := normalizeMime(declared)
	if contentType == "" {
		contentType = normalizeMime(mimetype.Detect(data).String())
	}
	ext, ok := allowedOutputTypes[contentType]
	if !ok {
		if contentType == "" {
			contentType = "unknown"
		}
		return "", "", fmt.Errorf("%w: type %s is not allowed", ErrInvalidOutput, contentType)
	}
	return contentType, ext, nil
}

func normalizeMime(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(raw)
	if err != nil {
		return strings.ToLower(raw)
	}
	if mediaType == "image/jpg" {
		return "image/jpeg"
	}
	return mediaType
}
