package generation

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thumbforge/server/internal/model"
	"github.com/thumbforge/server/internal/port/inbound"
)

func TestClampVariants(t *testing.T) {
	tests := []struct {
		name string
		raw  any
		want int
	}{
		{"missing defaults to one", nil, 1},
		{"zero clamps up", float64(0), 1},
		{"negative clamps up", float64(-3), 1},
		{"above limit clamps down", float64(99), 8},
		{"fraction truncates", float64(2.9), 2},
		{"int", 4, 4},
		{"json number", json.Number("5"), 5},
		{"numeric string", "3", 3},
		{"garbage string", "many", 1},
		{"bool is not a number", true, 1},
		{"huge value", float64(1e12), 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClampVariants(tt.raw, 8))
		})
	}
}

func TestNormalizeFramesMime(t *testing.T) {
	assert.Equal(t, "image/jpeg", NormalizeFramesMime("image/jpeg"))
	assert.Equal(t, "image/webp", NormalizeFramesMime(" IMAGE/WEBP "))
	assert.Equal(t, "image/svg+xml", NormalizeFramesMime("image/svg+xml"))
	assert.Equal(t, "image/png", NormalizeFramesMime(""))
	assert.Equal(t, "image/png", NormalizeFramesMime("text/html"))
	assert.Equal(t, "image/png", NormalizeFramesMime("image/"))
}

func TestValidator_Validate(t *testing.T) {
	ctx := context.Background()
	ownerID := uuid.New()

	newValidator := func() (*Validator, *memGenerationDB, *memTemplateDB) {
		jobs := newMemGenerationDB()
		templates := &memTemplateDB{templates: map[uuid.UUID]*model.Template{}}
		return NewValidator(templates, jobs, 8), jobs, templates
	}

	t.Run("missing prompt", func(t *testing.T) {
		v, _, _ := newValidator()
		_, err := v.Validate(ctx, ownerID, &inbound.GenerationInput{Prompt: "  ", Frames: []string{framePayload()}})
		assert.ErrorIs(t, err, ErrMissingData)
	})

	t.Run("missing frames", func(t *testing.T) {
		v, _, _ := newValidator()
		_, err := v.Validate(ctx, ownerID, &inbound.GenerationInput{Prompt: "cat"})
		assert.ErrorIs(t, err, ErrMissingData)
	})

	t.Run("invalid frame counts as missing data", func(t *testing.T) {
		v, _, _ := newValidator()
		_, err := v.Validate(ctx, ownerID, &inbound.GenerationInput{Prompt: "cat", Frames: []string{"!!not base64!!"}})
		assert.ErrorIs(t, err, ErrInvalidFrame)
		assert.ErrorIs(t, err, ErrMissingData)
	})

	t.Run("normalizes optional fields", func(t *testing.T) {
		v, _, _ := newValidator()
		spec, err := v.Validate(ctx, ownerID, &inbound.GenerationInput{
			Prompt:     "  a cat  ",
			Frames:     []string{framePayload()},
			FramesMime: "text/plain",
			Variants:   float64(99),
		})

		require.NoError(t, err)
		assert.Equal(t, "a cat", spec.Prompt)
		assert.Equal(t, 8, spec.Variants)
		assert.Equal(t, "web", spec.Source)
		require.Len(t, spec.Frames, 1)
		assert.Equal(t, "image/png", spec.Frames[0].MimeType)
		assert.Equal(t, pngBytes, spec.Frames[0].Data)
		assert.Nil(t, spec.TemplateID)
		assert.Nil(t, spec.ParentID)
	})

	t.Run("data url frame keeps its declared type", func(t *testing.T) {
		v, _, _ := newValidator()
		frame := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString([]byte("jpeg-bytes"))
		spec, err := v.Validate(ctx, ownerID, &inbound.GenerationInput{Prompt: "cat", Frames: []string{frame}})

		require.NoError(t, err)
		assert.Equal(t, "image/jpeg", spec.Frames[0].MimeType)
		assert.Equal(t, []byte("jpeg-bytes"), spec.Frames[0].Data)
	})

	t.Run("long source is truncated", func(t *testing.T) {
		v, _, _ := newValidator()
		spec, err := v.Validate(ctx, ownerID, &inbound.GenerationInput{
			Prompt: "cat",
			Frames: []string{framePayload()},
			Source: strings.Repeat("x", 100),
		})

		require.NoError(t, err)
		assert.Len(t, spec.Source, 64)
	})

	t.Run("owned template is accepted", func(t *testing.T) {
		v, _, templates := newValidator()
		tplID := uuid.New()
		templates.templates[tplID] = &model.Template{ID: tplID, OwnerID: ownerID}
		raw := tplID.String()

		spec, err := v.Validate(ctx, ownerID, &inbound.GenerationInput{Prompt: "cat", Frames: []string{framePayload()}, TemplateID: &raw})

		require.NoError(t, err)
		require.NotNil(t, spec.TemplateID)
		assert.Equal(t, tplID, *spec.TemplateID)
	})

	t.Run("template of another owner is rejected", func(t *testing.T) {
		v, _, templates := newValidator()
		tplID := uuid.New()
		templates.templates[tplID] = &model.Template{ID: tplID, OwnerID: uuid.New()}
		raw := tplID.String()

		_, err := v.Validate(ctx, ownerID, &inbound.GenerationInput{Prompt: "cat", Frames: []string{framePayload()}, TemplateID: &raw})
		assert.ErrorIs(t, err, ErrInvalidTemplateID)
	})

	t.Run("malformed template id is rejected", func(t *testing.T) {
		v, _, _ := newValidator()
		raw := "not-a-uuid"
		_, err := v.Validate(ctx, ownerID, &inbound.GenerationInput{Prompt: "cat", Frames: []string{framePayload()}, TemplateID: &raw})
		assert.ErrorIs(t, err, ErrInvalidTemplateID)
	})

	t.Run("empty template id is ignored", func(t *testing.T) {
		v, _, _ := newValidator()
		raw := ""
		spec, err := v.Validate(ctx, ownerID, &inbound.GenerationInput{Prompt: "cat", Frames: []string{framePayload()}, TemplateID: &raw})
		require.NoError(t, err)
		assert.Nil(t, spec.TemplateID)
	})

	t.Run("parent of another owner is rejected", func(t *testing.T) {
		v, jobs, _ := newValidator()
		parent := &model.GenerationJob{ID: uuid.New(), OwnerID: uuid.New()}
		require.NoError(t, jobs.Create(ctx, parent))
		raw := parent.ID.String()

		_, err := v.Validate(ctx, ownerID, &inbound.GenerationInput{Prompt: "cat", Frames: []string{framePayload()}, ParentGenerationID: &raw})
		assert.ErrorIs(t, err, ErrInvalidParentID)
	})

	t.Run("owned parent is accepted", func(t *testing.T) {
		v, jobs, _ := newValidator()
		parent := &model.GenerationJob{ID: uuid.New(), OwnerID: ownerID}
		require.NoError(t, jobs.Create(ctx, parent))
		raw := parent.ID.String()

		spec, err := v.Validate(ctx, ownerID, &inbound.GenerationInput{Prompt: "cat", Frames: []string{framePayload()}, ParentGenerationID: &raw})
		require.NoError(t, err)
		assert.Equal(t, parent.ID, *spec.ParentID)
	})

	t.Run("lookup failure is not a validation error", func(t *testing.T) {
		jobs := newMemGenerationDB()
		v := NewValidator(failingTemplateDB{}, jobs, 8)
		raw := uuid.NewString()

		_, err := v.Validate(ctx, ownerID, &inbound.GenerationInput{Prompt: "cat", Frames: []string{framePayload()}, TemplateID: &raw})
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrInvalidTemplateID)
	})
}

type failingTemplateDB struct{}

func (failingTemplateDB) FindOwned(ctx context.Context, id, ownerID uuid.UUID) (*model.Template, error) {
	return nil, errors.New("connection refused")
}
