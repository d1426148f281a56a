package imageprovider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thumbforge/server/internal/infra/config"
	"github.com/thumbforge/server/internal/port/outbound"
)

func newTestAdapter(t *testing.T, handler http.HandlerFunc) (*OpenAIAdapter, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	adapter := NewOpenAIAdapter(server.Client(), &config.ProviderConfig{
		BaseURL:          server.URL + "/",
		APIKey:           "sk-test",
		Model:            "gpt-image-1",
		FailureThreshold: 2,
		CircuitTimeout:   time.Minute,
	})
	return adapter, &hits
}

func editRequest() *outbound.ImageGenerationRequest {
	return &outbound.ImageGenerationRequest{
		Prompt: "bold thumbnail",
		Images: []outbound.ProviderSourceImage{
			{Data: []byte("frame-one"), MimeType: "image/jpeg"},
			{Data: []byte("frame-two"), MimeType: "image/png"},
		},
	}
}

func TestOpenAIAdapter_Generate(t *testing.T) {
	adapter, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/images/edits", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		assert.Equal(t, "bold thumbnail", r.FormValue("prompt"))
		assert.Equal(t, "gpt-image-1", r.FormValue("model"))
		files := r.MultipartForm.File["image[]"]
		if !assert.Len(t, files, 2) {
			return
		}
		assert.Equal(t, "image/jpeg", files[0].Header.Get("Content-Type"))
		f, err := files[0].Open()
		if !assert.NoError(t, err) {
			return
		}
		data, _ := io.ReadAll(f)
		assert.Equal(t, "frame-one", string(data))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"created":       1,
			"output_format": "png",
			"data": []map[string]string{
				{"b64_json": base64.StdEncoding.EncodeToString([]byte("out-image")), "revised_prompt": "a bolder thumbnail"},
			},
		})
	})

	images, err := adapter.Generate(context.Background(), editRequest())

	require.NoError(t, err)
	require.Len(t, images, 1)
	assert.Equal(t, []byte("out-image"), images[0].Data)
	assert.Equal(t, "image/png", images[0].MimeType)
	assert.Equal(t, "a bolder thumbnail", images[0].RevisedPrompt)
	assert.Equal(t, "openai", adapter.Name())
}

func TestOpenAIAdapter_EmptyResultIsError(t *testing.T) {
	adapter, hits := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"created":1,"data":[]}`)
	})

	for range 3 {
		images, err := adapter.Generate(context.Background(), editRequest())
		assert.ErrorIs(t, err, ErrNoImages)
		assert.Empty(t, images)
	}
	// An empty answer says nothing about provider health.
	assert.Equal(t, int32(3), hits.Load())
}

func TestOpenAIAdapter_APIError(t *testing.T) {
	adapter, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"message":"prompt rejected","type":"invalid_request_error"}}`)
	})

	_, err := adapter.Generate(context.Background(), editRequest())

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "prompt rejected", apiErr.Message)
}

func TestOpenAIAdapter_CircuitBreaker(t *testing.T) {
	t.Run("server errors open the circuit", func(t *testing.T) {
		adapter, hits := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})

		for range 2 {
			_, err := adapter.Generate(context.Background(), editRequest())
			require.Error(t, err)
		}
		_, err := adapter.Generate(context.Background(), editRequest())

		assert.ErrorIs(t, err, gobreaker.ErrOpenState)
		assert.Equal(t, int32(2), hits.Load())
	})

	t.Run("client errors do not trip", func(t *testing.T) {
		adapter, hits := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
		})

		for range 3 {
			_, err := adapter.Generate(context.Background(), editRequest())
			require.Error(t, err)
			assert.NotErrorIs(t, err, gobreaker.ErrOpenState)
		}
		assert.Equal(t, int32(3), hits.Load())
	})
}

func TestOpenAIAdapter_GenerationsWithoutImages(t *testing.T) {
	adapter, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/images/generations", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_, _ = io.WriteString(w, `{"created":1,"data":[{"b64_json":"aGk="}]}`)
	})

	images, err := adapter.Generate(context.Background(), &outbound.ImageGenerationRequest{Prompt: "hi"})

	require.NoError(t, err)
	require.Len(t, images, 1)
	assert.Equal(t, []byte("hi"), images[0].Data)
	assert.Empty(t, images[0].MimeType)
}
