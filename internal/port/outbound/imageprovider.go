package outbound

import (
	"context"
)

// ProviderSourceImage is an input image sent alongside the prompt.
type ProviderSourceImage struct {
	Data     []byte
	MimeType string
}

// ImageGenerationRequest is one call to an image-generation provider.
type ImageGenerationRequest struct {
	Prompt string
	Images []ProviderSourceImage
}

// ProviderImage is one image returned by a provider.
type ProviderImage struct {
	Data          []byte
	MimeType      string // empty when the provider did not say
	RevisedPrompt string
}

// ImageProviderPort defines an external image-generation provider.
type ImageProviderPort interface {
	// Name returns the provider name.
	Name() string

	// Generate performs one generation call. Zero images is a valid success.
	Generate(ctx context.Context, req *ImageGenerationRequest) ([]*ProviderImage, error)
}
