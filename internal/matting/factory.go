package matting

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"image-background-remover/internal/config"
)

// NewModel builds the model selected by cfg.Backend.
func NewModel(cfg *config.Config) (Model, error) {
	switch cfg.Backend {
	case config.BackendHTTP:
		return NewHTTPModel(cfg.Endpoint, cfg.ModelName, 0), nil
	case config.BackendCommand:
		return NewCommandModel(cfg.Command)
	case config.BackendONNX:
		return NewONNXModel(cfg.ModelPath, cfg.ModelInputSize)
	case config.BackendColorKey:
		return NewColorKeyModel(cfg.ColorKeyTolerance), nil
	default:
		return nil, fmt.Errorf("unknown matting backend %q", cfg.Backend)
	}
}

// New builds an Invoker for the configured backend.
func New(cfg *config.Config, logger logrus.FieldLogger) (*Invoker, error) {
	model, err := NewModel(cfg)
	if err != nil {
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"backend": cfg.Backend,
		"model":   model.Name(),
	}).Info("Matting backend ready")

	return NewInvoker(model, logger,
		WithMaxInputSide(cfg.MaxInputSide),
		WithFeather(cfg.Feather),
		WithTimeout(cfg.Timeout()),
		WithAlphaThreshold(cfg.AlphaThreshold),
	), nil
}
