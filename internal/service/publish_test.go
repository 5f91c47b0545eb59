package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"secretary-backend/internal/config"
	"secretary-backend/internal/model"
	"secretary-backend/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPublishClient(backendURL string) *PublishClient {
	cfg := &config.Config{
		Backend: config.BackendConfig{BaseURL: backendURL, APIKey: "test-key"},
	}
	return NewPublishClient(cfg, utils.NewHTTPClient(5*time.Second))
}

func TestPublishSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/secretary/sessions/s1/publish", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req model.PublishRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "f1", req.FileID)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"uuid":"u-123","cms_link":"https://cms.example/p/123"}`)
	}))
	defer srv.Close()

	p := newTestPublishClient(srv.URL)
	result, err := p.Publish(context.Background(), "s1", "f1")
	require.NoError(t, err)
	assert.Equal(t, "u-123", result.UUID)
	assert.Equal(t, "https://cms.example/p/123", result.Link())
}

func TestPublishCamelCaseLinkFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"uuid":"u-456","cmsLink":"https://cms.example/p/456"}`)
	}))
	defer srv.Close()

	p := newTestPublishClient(srv.URL)
	result, err := p.Publish(context.Background(), "s1", "f1")
	require.NoError(t, err)
	assert.Equal(t, "https://cms.example/p/456", result.Link())
}

func TestPublishFailureSurfacesBackendDetail(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"detail message", `{"detail":{"message":"quota exceeded","error":"code 42"}}`, "quota exceeded"},
		{"detail error fallback", `{"detail":{"error":"code 42"}}`, "code 42"},
		{"raw body fallback", "  plain failure text\n", "plain failure text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnprocessableEntity)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			p := newTestPublishClient(srv.URL)
			_, err := p.Publish(context.Background(), "s1", "f1")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestExtractErrorDetail(t *testing.T) {
	assert.Equal(t, "m", ExtractErrorDetail([]byte(`{"detail":{"message":"m","error":"e"}}`)))
	assert.Equal(t, "e", ExtractErrorDetail([]byte(`{"detail":{"error":"e"}}`)))
	assert.Equal(t, "raw", ExtractErrorDetail([]byte(" raw \n")))
	assert.Equal(t, "{}", ExtractErrorDetail([]byte("{}")))
}
