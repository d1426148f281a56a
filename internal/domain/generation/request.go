package generation

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/thumbforge/server/internal/port/inbound"
	"github.com/thumbforge/server/internal/port/outbound"
)

const (
	defaultFramesMime = "image/png"
	defaultSource     = "web"
	maxSourceLength   = 64
)

var imageMimePattern = regexp.MustCompile(`^image/[a-z0-9][a-z0-9.+-]*$`)

// JobSpec is a validated generation request.
type JobSpec struct {
	Prompt     string
	Frames     []inbound.SourceFrame
	Variants   int
	TemplateID *uuid.UUID
	ParentID   *uuid.UUID
	Source     string
}

// Validator turns raw input into a JobSpec. Its only reads are the two ownership lookups.
type Validator struct {
	templateDB   outbound.TemplateDatabasePort
	generationDB outbound.GenerationDatabasePort
	maxVariants  int
}

// NewValidator creates a request validator.
func NewValidator(templateDB outbound.TemplateDatabasePort, generationDB outbound.GenerationDatabasePort, maxVariants int) *Validator {
	if maxVariants < 1 {
		maxVariants = DefaultConfig().MaxVariants
	}
	return &Validator{
		templateDB:   templateDB,
		generationDB: generationDB,
		maxVariants:  maxVariants,
	}
}

// Validate checks required fields, normalizes optional ones and verifies ownership
// of the referenced template and parent job.
func (v *Validator) Validate(ctx context.Context, ownerID uuid.UUID, in *inbound.GenerationInput) (*JobSpec, error) {
	if in == nil {
		return nil, ErrMissingData
	}

	prompt := strings.TrimSpace(in.Prompt)
	if prompt == "" || len(in.Frames) == 0 {
		return nil, ErrMissingData
	}

	framesMime := NormalizeFramesMime(in.FramesMime)
	frames := make([]inbound.SourceFrame, 0, len(in.Frames))
	for i, raw := range in.Frames {
		frame, err := decodeFrame(raw, framesMime)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		frames = append(frames, frame)
	}

	spec := &JobSpec{
		Prompt:   prompt,
		Frames:   frames,
		Variants: ClampVariants(in.Variants, v.maxVariants),
		Source:   normalizeSource(in.Source),
	}

	if in.TemplateID != nil && strings.TrimSpace(*in.TemplateID) != "" {
		id, err := v.ownedTemplate(ctx, ownerID, *in.TemplateID)
		if err != nil {
			return nil, err
		}
		spec.TemplateID = &id
	}

	if in.ParentGenerationID != nil && strings.TrimSpace(*in.ParentGenerationID) != "" {
		id, err := v.ownedParent(ctx, ownerID, *in.ParentGenerationID)
		if err != nil {
			return nil, err
		}
		spec.ParentID = &id
	}

	return spec, nil
}

func (v *Validator) ownedTemplate(ctx context.Context, ownerID uuid.UUID, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, ErrInvalidTemplateID
	}
	if v.templateDB == nil {
		return uuid.Nil, ErrNotConfigured
	}
	tpl, err := v.templateDB.FindOwned(ctx, id, ownerID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("lookup template: %w", err)
	}
	if tpl == nil {
		return uuid.Nil, ErrInvalidTemplateID
	}
	return id, nil
}

func (v *Validator) ownedParent(ctx context.Context, ownerID uuid.UUID, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, ErrInvalidParentID
	}
	job, err := v.generationDB.FindOwned(ctx, id, ownerID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("lookup parent generation: %w", err)
	}
	if job == nil {
		return uuid.Nil, ErrInvalidParentID
	}
	return id, nil
}

// ClampVariants coerces a JSON variants value to an integer in [1, limit].
// Missing or non-numeric values count as 1; fractions are truncated.
func ClampVariants(raw any, limit int) int {
	n := 1
	switch val := raw.(type) {
	case float64:
		n = truncate(val)
	case int:
		n = val
	case int64:
		n = int(val)
	case json.Number:
		if f, err := val.Float64(); err == nil {
			n = truncate(f)
		}
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			n = truncate(f)
		}
	}
	if n < 1 {
		return 1
	}
	if n > limit {
		return limit
	}
	return n
}

func truncate(f float64) int {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 1
	}
	if f > math.MaxInt32 {
		return math.MaxInt32
	}
	if f < math.MinInt32 {
		return math.MinInt32
	}
	return int(math.Trunc(f))
}

// NormalizeFramesMime returns mime if it names an image type, otherwise image/png.
func NormalizeFramesMime(mime string) string {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if !imageMimePattern.MatchString(mime) {
		return defaultFramesMime
	}
	return mime
}

func normalizeSource(source string) string {
	source = strings.TrimSpace(source)
	if source == "" {
		return defaultSource
	}
	if len(source) > maxSourceLength {
		source = source[:maxSourceLength]
	}
	return source
}

// decodeFrame accepts bare base64 or a data: URL and returns the decoded bytes.
func decodeFrame(raw, framesMime string) (inbound.SourceFrame, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return inbound.SourceFrame{}, ErrMissingData
	}

	mime := framesMime
	payload := raw
	if strings.HasPrefix(raw, "data:") {
		header, body, ok := strings.Cut(raw, ",")
		if !ok || !strings.HasSuffix(header, ";base64") {
			return inbound.SourceFrame{}, ErrInvalidFrame
		}
		if declared := strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64"); declared != "" {
			mime = NormalizeFramesMime(declared)
		}
		payload = body
	}

	data, err := decodeBase64(payload)
	if err != nil || len(data) == 0 {
		return inbound.SourceFrame{}, ErrInvalidFrame
	}
	return inbound.SourceFrame{Data: data, MimeType: mime}, nil
}

func decodeBase64(s string) ([]byte, error) {
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if data, err := enc.DecodeString(s); err == nil {
			return data, nil
		}
	}
	return nil, ErrInvalidFrame
}
