package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/facegate/internal/server/biometric"
	"github.com/iudanet/facegate/internal/server/face"
	"github.com/iudanet/facegate/internal/server/gateway"
	"github.com/iudanet/facegate/internal/server/storage"
	"github.com/iudanet/facegate/pkg/api"
)

type mockFaceService struct {
	err      error
	login    gateway.FaceLogin
	gotEmail string
	gotImage []byte
	calls    int
}

func (m *mockFaceService) EnrollFace(ctx context.Context, email string, image []byte) error {
	m.calls++
	m.gotEmail, m.gotImage = email, image
	return m.err
}

func (m *mockFaceService) LoginByFace(ctx context.Context, image []byte) (gateway.FaceLogin, error) {
	m.calls++
	m.gotImage = image
	return m.login, m.err
}

func multipartBody(t *testing.T, fields map[string]string, image []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if image != nil {
		fw, err := mw.CreateFormFile("file", "face.jpg")
		require.NoError(t, err)
		_, err = fw.Write(image)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestFaceHandler_Store_ErrorMapping(t *testing.T) {
	tests := []struct {
		err        error
		name       string
		wantStatus int
	}{
		{name: "success", wantStatus: http.StatusOK},
		{name: "duplicate face", err: biometric.ErrDuplicateFace, wantStatus: http.StatusBadRequest},
		{name: "liveness", err: biometric.ErrLivenessFailed, wantStatus: http.StatusBadRequest},
		{name: "not verified", err: biometric.ErrFaceNotVerified, wantStatus: http.StatusBadRequest},
		{name: "unknown email", err: gateway.ErrAccountNotFound, wantStatus: http.StatusNotFound},
		{name: "already enrolled", err: fmt.Errorf("failed to attach face: %w", storage.ErrFaceAlreadyEnrolled), wantStatus: http.StatusConflict},
		{name: "extraction failure", err: biometric.ErrEncodingFailed, wantStatus: http.StatusInternalServerError},
		{name: "face service timeout", err: fmt.Errorf("%w: %w", gateway.ErrUpstreamTimeout, face.ErrTimeout), wantStatus: http.StatusServiceUnavailable},
		{name: "face service down", err: fmt.Errorf("%w: %w", gateway.ErrUpstream, face.ErrUnavailable), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockFaceService{err: tt.err}
			h := NewFaceHandler(setupTestLogger(), svc)

			req := httptest.NewRequest(http.MethodPost, "/api/face/store?email=a@x.io", bytes.NewReader([]byte("jpeg-bytes")))
			req.Header.Set("Content-Type", "image/jpeg")
			w := httptest.NewRecorder()
			h.Store(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, "a@x.io", svc.gotEmail)
			assert.Equal(t, []byte("jpeg-bytes"), svc.gotImage)

			if tt.wantStatus == http.StatusServiceUnavailable {
				assert.Equal(t, "1", w.Header().Get("Retry-After"))
			}
			if tt.wantStatus == http.StatusInternalServerError && tt.err != biometric.ErrEncodingFailed {
				assert.Equal(t, "internal server error", decodeError(t, w).Message)
			}
		})
	}
}

func TestFaceHandler_Store_Body(t *testing.T) {
	t.Run("multipart with form email", func(t *testing.T) {
		svc := &mockFaceService{}
		h := NewFaceHandler(setupTestLogger(), svc)

		body, ct := multipartBody(t, map[string]string{"email": "form@x.io"}, []byte("png-bytes"))
		req := httptest.NewRequest(http.MethodPost, "/api/face/store", body)
		req.Header.Set("Content-Type", ct)
		w := httptest.NewRecorder()
		h.Store(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "form@x.io", svc.gotEmail)
		assert.Equal(t, []byte("png-bytes"), svc.gotImage)
	})

	t.Run("multipart with query email", func(t *testing.T) {
		svc := &mockFaceService{}
		h := NewFaceHandler(setupTestLogger(), svc)

		body, ct := multipartBody(t, nil, []byte("png-bytes"))
		req := httptest.NewRequest(http.MethodPost, "/api/face/store?email=query@x.io", body)
		req.Header.Set("Content-Type", ct)
		w := httptest.NewRecorder()
		h.Store(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "query@x.io", svc.gotEmail)
	})

	t.Run("multipart without file", func(t *testing.T) {
		svc := &mockFaceService{}
		h := NewFaceHandler(setupTestLogger(), svc)

		body, ct := multipartBody(t, map[string]string{"email": "a@x.io"}, nil)
		req := httptest.NewRequest(http.MethodPost, "/api/face/store", body)
		req.Header.Set("Content-Type", ct)
		w := httptest.NewRecorder()
		h.Store(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "image is required", decodeError(t, w).Message)
		assert.Zero(t, svc.calls)
	})

	t.Run("empty raw body", func(t *testing.T) {
		svc := &mockFaceService{}
		h := NewFaceHandler(setupTestLogger(), svc)

		req := httptest.NewRequest(http.MethodPost, "/api/face/store?email=a@x.io", nil)
		req.Header.Set("Content-Type", "application/octet-stream")
		w := httptest.NewRecorder()
		h.Store(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Zero(t, svc.calls)
	})

	t.Run("missing email", func(t *testing.T) {
		svc := &mockFaceService{}
		h := NewFaceHandler(setupTestLogger(), svc)

		req := httptest.NewRequest(http.MethodPost, "/api/face/store", bytes.NewReader([]byte("img")))
		w := httptest.NewRecorder()
		h.Store(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "email is required", decodeError(t, w).Message)
		assert.Zero(t, svc.calls)
	})

	t.Run("unsupported content type", func(t *testing.T) {
		svc := &mockFaceService{}
		h := NewFaceHandler(setupTestLogger(), svc)

		req := httptest.NewRequest(http.MethodPost, "/api/face/store?email=a@x.io", bytes.NewReader([]byte(`{}`)))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		h.Store(w, req)

		assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
		assert.Zero(t, svc.calls)
	})
}

func TestFaceHandler_Match(t *testing.T) {
	expires := time.Date(2024, 1, 1, 12, 5, 0, 0, time.UTC)

	t.Run("success", func(t *testing.T) {
		svc := &mockFaceService{login: gateway.FaceLogin{
			AccountID: "acc-1",
			Email:     "a@x.io",
			Session:   gateway.Session{Token: "jwt", ExpiresAt: expires},
		}}
		h := NewFaceHandler(setupTestLogger(), svc)

		req := httptest.NewRequest(http.MethodPost, "/api/face/match", bytes.NewReader([]byte("img")))
		req.Header.Set("Content-Type", "image/png")
		w := httptest.NewRecorder()
		h.Match(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var resp api.FaceMatchResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, "a@x.io", resp.Email)
		assert.Equal(t, "jwt", resp.Token)
		assert.True(t, expires.Equal(resp.ExpiresAt))
	})

	t.Run("no match", func(t *testing.T) {
		h := NewFaceHandler(setupTestLogger(), &mockFaceService{err: biometric.ErrNoMatch})

		req := httptest.NewRequest(http.MethodPost, "/api/face/match", bytes.NewReader([]byte("img")))
		w := httptest.NewRecorder()
		h.Match(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, biometric.ErrNoMatch.Error(), decodeError(t, w).Message)
	})

	t.Run("vanished account", func(t *testing.T) {
		h := NewFaceHandler(setupTestLogger(), &mockFaceService{err: gateway.ErrAccountNotFound})

		req := httptest.NewRequest(http.MethodPost, "/api/face/match", bytes.NewReader([]byte("img")))
		w := httptest.NewRecorder()
		h.Match(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
