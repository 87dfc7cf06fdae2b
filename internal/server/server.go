// Package server exposes a matting model over the multipart /api/remove
// protocol so the desktop app's HTTP backend can run on another machine.
package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gin-gonic/gin"
	"github.com/segmentio/ksuid"
	"github.com/sirupsen/logrus"

	imgio "image-background-remover/internal/io"
	"image-background-remover/internal/matting"
)

const (
	defaultMaxUpload = 64 << 20
	requestIDHeader  = "X-Request-Id"
	shutdownTimeout  = 10 * time.Second
)

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

type Server struct {
	model     matting.Model
	logger    logrus.FieldLogger
	engine    *gin.Engine
	maxUpload int64
}

func New(model matting.Model, logger logrus.FieldLogger, debug bool) *Server {
	if debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		model:     model,
		logger:    logger,
		engine:    gin.New(),
		maxUpload: defaultMaxUpload,
	}
	s.engine.Use(gin.Recovery(), s.requestID(), s.accessLog())
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/healthz", s.health)
	api := s.engine.Group("/api")
	api.POST("/remove", s.remove)
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithFields(logrus.Fields{
			"addr":  addr,
			"model": s.model.Name(),
		}).Info("Matting server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down matting server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"model":  s.model.Name(),
	})
}

func (s *Server) remove(c *gin.Context) {
	log := s.logger.WithField("request_id", c.GetString(requestIDHeader))

	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing form file \"file\""})
		return
	}
	if header.Size > s.maxUpload {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("upload exceeds %d bytes", s.maxUpload)})
		return
	}

	f, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	data, err := io.ReadAll(io.LimitReader(f, s.maxUpload))
	f.Close()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	input, err := toPNG(data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported image: " + err.Error()})
		return
	}

	if requested := c.PostForm("model"); requested != "" {
		log = log.WithField("requested_model", requested)
	}

	ctx := matting.WithJobID(c.Request.Context(), c.GetString(requestIDHeader))
	start := time.Now()
	out, err := s.model.Remove(ctx, input)
	if err != nil {
		log.WithError(err).Error("Model call failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	log.WithFields(logrus.Fields{
		"in_bytes":  len(input),
		"out_bytes": len(out),
		"duration":  time.Since(start).Round(time.Millisecond).String(),
	}).Info("Background removed")

	c.Data(http.StatusOK, "image/png", out)
}

// toPNG passes PNG uploads through and re-encodes anything else the
// decoders understand. Oversized headers are rejected before decoding.
func toPNG(data []byte) ([]byte, error) {
	if _, _, err := imgio.CheckHeader(data); err != nil {
		return nil, err
	}
	if bytes.HasPrefix(data, pngSignature) {
		return data, nil
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = ksuid.New().String()
		}
		c.Set(requestIDHeader, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.WithFields(logrus.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency":    time.Since(start).Round(time.Microsecond).String(),
			"client":     c.ClientIP(),
			"request_id": c.GetString(requestIDHeader),
		}).Debug("Request handled")
	}
}
