package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/iudanet/facegate/internal/server/gateway"
	"github.com/iudanet/facegate/pkg/api"
)

// multipartMemory - сколько multipart тела держать в памяти до временных файлов
const multipartMemory = 8 << 20

// imageField - имя поля multipart формы с изображением
const imageField = "file"

var (
	errImageMissing     = errors.New("image is required")
	errUnsupportedMedia = errors.New("unsupported content type")
)

// FaceService описывает биометрические операции gateway
type FaceService interface {
	EnrollFace(ctx context.Context, email string, image []byte) error
	LoginByFace(ctx context.Context, image []byte) (gateway.FaceLogin, error)
}

// FaceHandler обрабатывает регистрацию лица и вход по лицу
type FaceHandler struct {
	responder
	svc FaceService
}

// NewFaceHandler создает новый handler для /api/face
func NewFaceHandler(logger *slog.Logger, svc FaceService) *FaceHandler {
	return &FaceHandler{responder: responder{logger: logger}, svc: svc}
}

// Store обрабатывает POST /api/face/store?email=...
// Тело: изображение (octet-stream, image/*) или multipart поле "file"
func (h *FaceHandler) Store(w http.ResponseWriter, r *http.Request) {
	image, email, ok := h.readImage(w, r)
	if !ok {
		return
	}

	if email == "" {
		h.sendError(w, "email is required", http.StatusBadRequest)
		return
	}

	if err := h.svc.EnrollFace(r.Context(), email, image); err != nil {
		h.serviceError(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "face enrolled")
	h.sendJSON(w, api.MessageResponse{Message: "Face stored successfully"}, http.StatusOK)
}

// Match обрабатывает POST /api/face/match
func (h *FaceHandler) Match(w http.ResponseWriter, r *http.Request) {
	image, _, ok := h.readImage(w, r)
	if !ok {
		return
	}

	login, err := h.svc.LoginByFace(r.Context(), image)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}

	h.sendJSON(w, api.FaceMatchResponse{
		Email:     login.Email,
		Token:     login.Session.Token,
		ExpiresAt: login.Session.ExpiresAt,
	}, http.StatusOK)
}

// readImage извлекает изображение и email из запроса. При ошибке ответ уже отправлен
func (h *FaceHandler) readImage(w http.ResponseWriter, r *http.Request) ([]byte, string, bool) {
	image, email, err := extractImage(r)
	if err == nil {
		return image, email, true
	}

	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		h.sendError(w, "request body too large", http.StatusRequestEntityTooLarge)
	case errors.Is(err, errUnsupportedMedia):
		h.sendError(w, err.Error(), http.StatusUnsupportedMediaType)
	case errors.Is(err, errImageMissing):
		h.sendError(w, err.Error(), http.StatusBadRequest)
	default:
		h.logger.WarnContext(r.Context(), "failed to read image", slog.Any("error", err))
		h.sendError(w, "invalid request body", http.StatusBadRequest)
	}
	return nil, "", false
}

func extractImage(r *http.Request) ([]byte, string, error) {
	mediaType := ""
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mt, _, err := mime.ParseMediaType(ct)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", errUnsupportedMedia, err)
		}
		mediaType = mt
	}

	switch {
	case mediaType == "multipart/form-data":
		return extractMultipart(r)
	case mediaType == "", mediaType == "application/octet-stream", strings.HasPrefix(mediaType, "image/"):
		image, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read body: %w", err)
		}
		if len(image) == 0 {
			return nil, "", errImageMissing
		}
		return image, r.URL.Query().Get("email"), nil
	default:
		return nil, "", fmt.Errorf("%w: %s", errUnsupportedMedia, mediaType)
	}
}

func extractMultipart(r *http.Request) ([]byte, string, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return nil, "", fmt.Errorf("failed to parse multipart form: %w", err)
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	file, _, err := r.FormFile(imageField)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, "", errImageMissing
		}
		return nil, "", fmt.Errorf("failed to open form file: %w", err)
	}
	defer func() {
		_ = file.Close()
	}()

	image, err := io.ReadAll(file)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read form file: %w", err)
	}
	if len(image) == 0 {
		return nil, "", errImageMissing
	}

	// FormValue учитывает и поле формы, и query параметр
	return image, r.FormValue("email"), nil
}
