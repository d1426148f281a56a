package imageprovider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/thumbforge/server/internal/infra/config"
	"github.com/thumbforge/server/internal/port/outbound"
)

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 4 << 10

var imageExtensions = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpg",
	"image/webp": "webp",
	"image/gif":  "gif",
}

// ErrNoImages is returned when a 200 response carries no image data.
var ErrNoImages = errors.New("provider returned no images")

// APIError is a non-2xx response from the provider.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider returned %d: %s", e.StatusCode, e.Message)
}

// retryable reports whether the failure says something about provider health
// rather than about the request.
func (e *APIError) retryable() bool {
	return e.StatusCode >= http.StatusInternalServerError || e.StatusCode == http.StatusTooManyRequests
}

// OpenAIAdapter implements ImageProviderPort for the OpenAI images API and
// compatible gateways.
type OpenAIAdapter struct {
	client  *http.Client
	baseURL string
	apiKey  string
	model   string
	name    string
	breaker *gobreaker.CircuitBreaker[[]*outbound.ProviderImage]
}

// NewOpenAIAdapter creates a new OpenAI image adapter with the given HTTP client.
func NewOpenAIAdapter(client *http.Client, cfg *config.ProviderConfig) *OpenAIAdapter {
	if client == nil {
		client = http.DefaultClient
	}
	name := cfg.Name
	if name == "" {
		name = "openai"
	}
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	timeout := cfg.CircuitTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, ErrNoImages) {
				return true
			}
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return !apiErr.retryable()
			}
			return false
		},
	}

	return &OpenAIAdapter{
		client:  client,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		name:    name,
		breaker: gobreaker.NewCircuitBreaker[[]*outbound.ProviderImage](settings),
	}
}

// Name returns the provider name.
func (a *OpenAIAdapter) Name() string {
	return a.name
}

// openAIImageResponse represents an OpenAI images response.
type openAIImageResponse struct {
	Created      int64  `json:"created"`
	OutputFormat string `json:"output_format,omitempty"`
	Data         []struct {
		B64JSON       string `json:"b64_json,omitempty"`
		URL           string `json:"url,omitempty"`
		RevisedPrompt string `json:"revised_prompt,omitempty"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}

// Generate performs one image edit call with the source images attached.
// An open circuit fails fast without reaching the provider.
func (a *OpenAIAdapter) Generate(ctx context.Context, req *outbound.ImageGenerationRequest) ([]*outbound.ProviderImage, error) {
	images, err := a.breaker.Execute(func() ([]*outbound.ProviderImage, error) {
		return a.generate(ctx, req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("provider %s unavailable: %w", a.name, err)
	}
	return images, err
}

func (a *OpenAIAdapter) generate(ctx context.Context, req *outbound.ImageGenerationRequest) ([]*outbound.ProviderImage, error) {
	httpReq, err := a.newRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, readAPIError(resp)
	}

	var body openAIImageResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if body.Error != nil {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: body.Error.Message}
	}

	if len(body.Data) == 0 {
		return nil, ErrNoImages
	}

	mimeType := ""
	if body.OutputFormat != "" {
		mimeType = "image/" + strings.ToLower(body.OutputFormat)
	}

	images := make([]*outbound.ProviderImage, 0, len(body.Data))
	for i, d := range body.Data {
		if d.B64JSON == "" {
			return nil, fmt.Errorf("image %d: missing b64_json", i)
		}
		data, err := base64.StdEncoding.DecodeString(d.B64JSON)
		if err != nil {
			return nil, fmt.Errorf("image %d: decode b64_json: %w", i, err)
		}
		images = append(images, &outbound.ProviderImage{
			Data:          data,
			MimeType:      mimeType,
			RevisedPrompt: d.RevisedPrompt,
		})
	}
	return images, nil
}

// newRequest builds a multipart edits request, or a JSON generations request
// when there are no source images.
func (a *OpenAIAdapter) newRequest(ctx context.Context, req *outbound.ImageGenerationRequest) (*http.Request, error) {
	if len(req.Images) == 0 {
		payload, err := json.Marshal(map[string]any{
			"model":  a.model,
			"prompt": req.Prompt,
			"n":      1,
		})
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/images/generations", bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)
		return httpReq, nil
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fields := map[string]string{
		"model":  a.model,
		"prompt": req.Prompt,
		"n":      "1",
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := w.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("write field %s: %w", k, err)
		}
	}
	for i, img := range req.Images {
		if err := writeImagePart(w, i, img); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/images/edits", &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", w.FormDataContentType())
	httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)
	return httpReq, nil
}

func writeImagePart(w *multipart.Writer, index int, img outbound.ProviderSourceImage) error {
	mimeType := img.MimeType
	ext, ok := imageExtensions[mimeType]
	if !ok {
		mimeType, ext = "image/png", "png"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image[]"; filename="frame-%d.%s"`, index, ext))
	h.Set("Content-Type", mimeType)
	part, err := w.CreatePart(h)
	if err != nil {
		return fmt.Errorf("create image part: %w", err)
	}
	if _, err := part.Write(img.Data); err != nil {
		return fmt.Errorf("write image part: %w", err)
	}
	return nil
}

func readAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var body openAIImageResponse
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != nil && body.Error.Message != "" {
		return &APIError{StatusCode: resp.StatusCode, Message: body.Error.Message}
	}
	msg := strings.TrimSpace(string(raw))
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &APIError{StatusCode: resp.StatusCode, Message: msg}
}

// Compile-time interface check
var _ outbound.ImageProviderPort = (*OpenAIAdapter)(nil)
