package server

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"image-background-remover/internal/matting"
)

type stubModel struct {
	got   []byte
	jobID string
	err   error
}

func (m *stubModel) Name() string { return "stub" }

func (m *stubModel) Remove(ctx context.Context, data []byte) ([]byte, error) {
	m.got = data
	m.jobID = matting.JobIDFromContext(ctx)
	if m.err != nil {
		return nil, m.err
	}
	return []byte("matted"), nil
}

func newTestServer(model matting.Model) *Server {
	logger := logrus.New()
	logger.SetOutput(bytes.NewBuffer(nil))
	return New(model, logger, false)
}

func multipartBody(t *testing.T, field string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	part, err := w.CreateFormFile(field, "upload")
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.WriteField("model", "u2net"))
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func samplePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 6, 4))
	img.SetNRGBA(1, 1, color.NRGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestHealth(t *testing.T) {
	srv := newTestServer(&stubModel{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "stub", body["model"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestRemovePassesPNGThrough(t *testing.T) {
	model := &stubModel{}
	srv := newTestServer(model)
	input := samplePNG(t)

	body, contentType := multipartBody(t, "file", input)
	req := httptest.NewRequest(http.MethodPost, "/api/remove", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Request-Id", "abc123")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, "matted", rec.Body.String())
	assert.Equal(t, input, model.got)
	assert.Equal(t, "abc123", model.jobID)
	assert.Equal(t, "abc123", rec.Header().Get("X-Request-Id"))
}

func TestRemoveConvertsOtherFormatsToPNG(t *testing.T) {
	model := &stubModel{}
	srv := newTestServer(model)

	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, 10, 10)), nil))
	body, contentType := multipartBody(t, "file", buf.Bytes())
	req := httptest.NewRequest(http.MethodPost, "/api/remove", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	cfg, format, err := image.DecodeConfig(bytes.NewReader(model.got))
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, 10, cfg.Width)
}

func TestRemoveRejectsBadRequests(t *testing.T) {
	srv := newTestServer(&stubModel{})

	body, contentType := multipartBody(t, "image", samplePNG(t))
	req := httptest.NewRequest(http.MethodPost, "/api/remove", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body, contentType = multipartBody(t, "file", []byte("not an image"))
	req = httptest.NewRequest(http.MethodPost, "/api/remove", body)
	req.Header.Set("Content-Type", contentType)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRemoveRejectsOversizedHeader(t *testing.T) {
	model := &stubModel{}
	srv := newTestServer(model)

	data := samplePNG(t)
	binary.BigEndian.PutUint32(data[16:], 40000)
	binary.BigEndian.PutUint32(data[20:], 40000)
	binary.BigEndian.PutUint32(data[29:], crc32.ChecksumIEEE(data[12:29]))

	body, contentType := multipartBody(t, "file", data)
	req := httptest.NewRequest(http.MethodPost, "/api/remove", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "too large")
	assert.Nil(t, model.got, "model must not see the upload")
}

func TestRemoveModelFailure(t *testing.T) {
	srv := newTestServer(&stubModel{err: errors.New("out of memory")})

	body, contentType := multipartBody(t, "file", samplePNG(t))
	req := httptest.NewRequest(http.MethodPost, "/api/remove", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "out of memory")
}

func TestHTTPModelAgainstServer(t *testing.T) {
	srv := newTestServer(matting.NewColorKeyModel(0))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	img := image.NewNRGBA(image.Rect(0, 0, 30, 30))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = 255, 255, 255, 255
	}
	for y := 10; y < 20; y++ {
		for x := 10; x < 20; x++ {
			img.SetNRGBA(x, y, color.NRGBA{B: 200, A: 255})
		}
	}

	logger := logrus.New()
	logger.SetOutput(bytes.NewBuffer(nil))
	inv := matting.NewInvoker(matting.NewHTTPModel(ts.URL, "colorkey", 0), logger)

	out, err := inv.RemoveBackground(context.Background(), img)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 30, 30), out.Bounds())
	assert.Equal(t, uint8(0), out.NRGBAAt(0, 0).A)
	assert.Equal(t, uint8(255), out.NRGBAAt(15, 15).A)
}
