package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/rekko-console/internal/domain"
)

func testConfig(url string) Config {
	return Config{
		BaseURL:      url,
		Timeout:      5 * time.Second,
		RetryCount:   2,
		RetryBackoff: time.Millisecond,
		Token:        "service-token",
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"code": code, "message": message},
	})
}

func TestClient_GetConfig(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantErr    error
		wantErrMsg string
		validate   func(*testing.T, domain.Config)
	}{
		{
			name:   "matching configuration",
			status: http.StatusOK,
			body:   `{"id":"6f1c2d4e-8a7b-4c3d-9e8f-1a2b3c4d5e6f","client_id":42,"type":"matching","distance_method":"cosine","threshold":0.8,"minimum_confidence":0.9,"max_angle":30,"created_by":"ops"}`,
			validate: func(t *testing.T, cfg domain.Config) {
				m, ok := cfg.(*domain.MatchingConfig)
				require.True(t, ok)
				assert.Equal(t, int64(42), m.ClientID)
				assert.Equal(t, domain.DistanceCosine, m.DistanceMethod)
				assert.Equal(t, 0.8, m.Threshold)
			},
		},
		{
			name:    "not found maps to ErrConfigNotFound",
			status:  http.StatusNotFound,
			body:    `{"error":{"code":"CONFIG_NOT_FOUND","message":"Configuration not found"}}`,
			wantErr: domain.ErrConfigNotFound,
		},
		{
			name:       "forbidden surfaces remote message",
			status:     http.StatusForbidden,
			body:       `{"error":{"code":"FORBIDDEN","message":"Access denied"}}`,
			wantErrMsg: "Access denied",
		},
		{
			name:       "invalid json response",
			status:     http.StatusOK,
			body:       `not json`,
			wantErrMsg: "invalid response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				assert.Equal(t, "/v1/configs/matching/42", r.URL.Path)
				assert.Equal(t, "Bearer service-token", r.Header.Get("Authorization"))

				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			cfg, err := NewClient(testConfig(server.URL)).GetConfig(context.Background(), domain.ConfigTypeMatching, 42, false)

			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, cfg)
			case tt.wantErrMsg != "":
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErrMsg)
			default:
				require.NoError(t, err)
				tt.validate(t, cfg)
			}
		})
	}
}

func TestClient_GetRetriesServerErrors(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			writeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "try later")
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"clients": []domain.Client{{ID: 1, Name: "Acme", Status: domain.ClientStatusActive}}})
	}))
	defer server.Close()

	clients, err := NewClient(testConfig(server.URL)).ListClients(context.Background(), false)
	require.NoError(t, err)
	assert.Len(t, clients, 1)
	assert.Equal(t, int32(3), attempts.Load(), "expected exactly 3 attempts")
}

func TestClient_RetryExhaustionKeepsRemoteMessage(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "database is down")
	}))
	defer server.Close()

	_, err := NewClient(testConfig(server.URL)).ListClients(context.Background(), false)
	require.Error(t, err)
	assert.Equal(t, "database is down", err.Error())

	var remote *domain.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, http.StatusInternalServerError, remote.StatusCode)
	assert.Equal(t, int32(3), attempts.Load(), "initial attempt + 2 retries")
}

func TestClient_MutationsAreNotRetried(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		writeError(w, http.StatusBadGateway, "UPSTREAM", "upstream failed")
	}))
	defer server.Close()

	err := NewClient(testConfig(server.URL)).DeleteConfig(context.Background(), domain.ConfigTypeLiveness, 1)
	require.EqualError(t, err, "upstream failed")
	assert.Equal(t, int32(1), attempts.Load())
}

func TestClient_CreateConfig(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/configs/silent-liveness/7", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer operator-token", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(24), body["fps"])
		assert.NotContains(t, body, "threshold")
		assert.NotContains(t, body, "required_movements")

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"6f1c2d4e-8a7b-4c3d-9e8f-1a2b3c4d5e6f","client_id":7,"fps":24,"timeout_sec":10,"min_frames":5,"min_duration_sec":1,"decision_threshold":0.5,"created_by":"ops@rekko.io"}`))
	}))
	defer server.Close()

	ctx := WithBearerToken(context.Background(), "operator-token")
	params := domain.SilentLivenessParams{FPS: 24, TimeoutSec: 10, MinFrames: 5, MinDurationSec: 1, DecisionThreshold: 0.5}

	cfg, err := NewClient(testConfig(server.URL)).CreateConfig(ctx, domain.ConfigTypeSilentLiveness, 7, params)
	require.NoError(t, err)
	assert.Equal(t, domain.ConfigTypeSilentLiveness, cfg.Type())
	assert.Equal(t, "ops@rekko.io", cfg.Meta().CreatedBy)
}

func TestClient_ConflictCarriesCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusConflict, "CONFIG_ALREADY_EXISTS", "Configuration already exists for this client")
	}))
	defer server.Close()

	_, err := NewClient(testConfig(server.URL)).CreateConfig(context.Background(), domain.ConfigTypeMatching, 7,
		domain.MatchingParams{DistanceMethod: domain.DistanceCosine, Threshold: 0.5, MinimumConfidence: 0.5})

	assert.ErrorIs(t, err, domain.ErrConfigExists)
	assert.Equal(t, "Configuration already exists for this client", err.Error())
}

func TestClient_SetClientStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/v1/clients/3/status", r.URL.Path)

		var body statusRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, domain.ClientStatusSuspended, body.Status)

		_ = json.NewEncoder(w).Encode(domain.Client{ID: 3, Name: "Initech", Status: body.Status})
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL)).SetClientStatus(context.Background(), 3, domain.ClientStatusSuspended)
	require.NoError(t, err)
	assert.Equal(t, domain.ClientStatusSuspended, client.Status)
}

func TestClient_UnreachableService(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	cfg := testConfig(url)
	cfg.RetryCount = 0

	_, err := NewClient(cfg).ListClients(context.Background(), false)
	assert.ErrorIs(t, err, domain.ErrBackendUnavailable)
}

func TestClient_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewClient(testConfig(server.URL)).ListClients(ctx, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, 100*time.Millisecond, backoff(100*time.Millisecond, 1))
	assert.Equal(t, 200*time.Millisecond, backoff(100*time.Millisecond, 2))
	assert.Equal(t, 400*time.Millisecond, backoff(100*time.Millisecond, 3))
	assert.Equal(t, maxBackoff, backoff(time.Second, 20))
}
