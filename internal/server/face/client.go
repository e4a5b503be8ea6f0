// Package face is an HTTP client of the external face-analysis service.
package face

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultTimeout bounds every round-trip to the face service
const DefaultTimeout = 10 * time.Second

// maxResponseSize ограничивает размер читаемого ответа
const maxResponseSize = 1 << 20

const tracerName = "github.com/iudanet/facegate/internal/server/face"

var (
	// ErrTimeout indicates that the face service didn't answer in time
	ErrTimeout = errors.New("face service timeout")

	// ErrUnavailable indicates transport failure or non-2xx status
	ErrUnavailable = errors.New("face service unavailable")

	// ErrBadResponse indicates that the response body couldn't be decoded
	ErrBadResponse = errors.New("face service bad response")
)

// Encoding is a numeric face descriptor produced by the face service
type Encoding []float64

// Candidate is one enrolled encoding sent for comparison.
// Key is echoed back by services that support it
type Candidate struct {
	Key      string
	Encoding Encoding
}

// MatchResult is the raw answer of /match-face.
// Index is -1 when nothing matched, Key is empty if the service doesn't echo keys
type MatchResult struct {
	Key   string
	Index int
}

type matchRequest struct {
	Target    string     `json:"target"`
	Encodings []Encoding `json:"encodings"`
	Keys      []string   `json:"keys"`
}

type matchResponse struct {
	Index *int   `json:"index"`
	Key   string `json:"key,omitempty"`
}

type livenessResponse struct {
	Live *bool `json:"live"`
}

type verifyResponse struct {
	Verified *bool `json:"verified"`
}

type extractResponse struct {
	Encoding Encoding `json:"encoding"`
}

// Client представляет HTTP клиент сервиса анализа лиц
type Client struct {
	httpClient *http.Client
	tracer     trace.Tracer
	baseURL    string
	timeout    time.Duration
}

// Option configures Client
type Option func(*Client)

// WithTimeout overrides per-call timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHTTPClient overrides underlying http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient создает новый клиент face-сервиса
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		timeout:    DefaultTimeout,
		tracer:     otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MatchFace сравнивает изображение со всеми кандидатами
func (c *Client) MatchFace(ctx context.Context, candidates []Candidate, image []byte) (MatchResult, error) {
	req := matchRequest{
		Encodings: make([]Encoding, len(candidates)),
		Keys:      make([]string, len(candidates)),
		Target:    base64.StdEncoding.EncodeToString(image),
	}
	for i, cand := range candidates {
		req.Encodings[i] = cand.Encoding
		req.Keys[i] = cand.Key
	}

	body, err := json.Marshal(req)
	if err != nil {
		return MatchResult{}, fmt.Errorf("failed to marshal match request: %w", err)
	}

	var resp matchResponse
	if err := c.do(ctx, "/match-face", "application/json", body, &resp,
		attribute.Int("face.candidates", len(candidates))); err != nil {
		return MatchResult{}, err
	}

	if resp.Index == nil {
		return MatchResult{}, fmt.Errorf("%w: missing index", ErrBadResponse)
	}
	if *resp.Index < -1 || *resp.Index >= len(candidates) {
		return MatchResult{}, fmt.Errorf("%w: index %d out of range", ErrBadResponse, *resp.Index)
	}

	return MatchResult{Index: *resp.Index, Key: resp.Key}, nil
}

// CheckLiveness проверяет, что на изображении живой человек
func (c *Client) CheckLiveness(ctx context.Context, image []byte) (bool, error) {
	var resp livenessResponse
	if err := c.do(ctx, "/check-liveness", "application/octet-stream", image, &resp); err != nil {
		return false, err
	}
	if resp.Live == nil {
		return false, fmt.Errorf("%w: missing live", ErrBadResponse)
	}
	return *resp.Live, nil
}

// VerifyFace проверяет, что на изображении обнаружено лицо
func (c *Client) VerifyFace(ctx context.Context, image []byte) (bool, error) {
	var resp verifyResponse
	if err := c.do(ctx, "/verify-face", "application/octet-stream", image, &resp); err != nil {
		return false, err
	}
	if resp.Verified == nil {
		return false, fmt.Errorf("%w: missing verified", ErrBadResponse)
	}
	return *resp.Verified, nil
}

// ExtractEncoding извлекает encoding лица. nil без ошибки - лицо не извлечено
func (c *Client) ExtractEncoding(ctx context.Context, image []byte) (Encoding, error) {
	var resp extractResponse
	if err := c.do(ctx, "/extract-encoding", "application/octet-stream", image, &resp); err != nil {
		return nil, err
	}
	if len(resp.Encoding) == 0 {
		return nil, nil
	}
	return resp.Encoding, nil
}

// do выполняет один ограниченный по времени запрос к сервису
func (c *Client) do(ctx context.Context, path, contentType string, body []byte, result any, attrs ...attribute.KeyValue) (err error) {
	ctx, span := c.tracer.Start(ctx, "face"+path, trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(append(attrs,
			attribute.String("face.endpoint", path),
			attribute.Int("face.request_bytes", len(body)),
		)...))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			return fmt.Errorf("%w: %s: %v", ErrTimeout, path, err)
		}
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, path, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	// Читаем тело ответа
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		if isTimeout(ctx, err) {
			return fmt.Errorf("%w: %s: %v", ErrTimeout, path, err)
		}
		return fmt.Errorf("%w: failed to read response body: %v", ErrUnavailable, err)
	}

	// Проверяем статус код
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s returned status %d", ErrUnavailable, path, resp.StatusCode)
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrBadResponse, path, err)
	}

	return nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
