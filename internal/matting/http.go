package matting

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

const (
	removePath       = "/api/remove"
	maxResponseBytes = 256 << 20
	maxErrorSnippet  = 512
)

// HTTPModel posts the image to a matting server speaking the
// multipart /api/remove protocol (rembg-compatible).
type HTTPModel struct {
	endpoint  string
	modelName string
	client    *http.Client
}

// NewHTTPModel returns a model for the server at endpoint. timeout bounds
// each request; zero means no limit beyond the caller's context.
func NewHTTPModel(endpoint, modelName string, timeout time.Duration) *HTTPModel {
	return &HTTPModel{
		endpoint:  strings.TrimRight(endpoint, "/"),
		modelName: modelName,
		client:    &http.Client{Timeout: timeout},
	}
}

func (m *HTTPModel) Name() string {
	if m.modelName == "" {
		return "http"
	}
	return "http:" + m.modelName
}

func (m *HTTPModel) Remove(ctx context.Context, png []byte) ([]byte, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "image.png")
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(png); err != nil {
		return nil, err
	}
	if m.modelName != "" {
		if err := writer.WriteField("model", m.modelName); err != nil {
			return nil, err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint+removePath, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "image/png")
	if id := JobIDFromContext(ctx); id != "" {
		req.Header.Set("X-Request-Id", id)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("matting server unreachable: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read matting server reply: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(data))
		if len(msg) > maxErrorSnippet {
			msg = msg[:maxErrorSnippet]
		}
		return nil, fmt.Errorf("matting server returned %s: %s", resp.Status, msg)
	}
	return data, nil
}
