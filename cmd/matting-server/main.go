// Matting server - serves a background-removal model over HTTP
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"image-background-remover/internal/config"
	"image-background-remover/internal/matting"
	"image-background-remover/internal/server"
)

func main() {
	debugMode := flag.Bool("debug", false, "Enable debug mode with verbose logging")
	configPath := flag.String("config", "", "Path to a JSON configuration file")
	listen := flag.String("listen", "", "Listen address (overrides listen_addr)")
	backend := flag.String("backend", "", "Model served: onnx, command or colorkey (overrides backend)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err == nil {
		err = cfg.ApplyEnv()
	}
	applyFlags(cfg, *debugMode, *backend, *listen)

	logger := initLogger(cfg.Debug)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}
	if cfg.Backend == config.BackendHTTP {
		logger.Fatal("The matting server cannot use the http backend")
	}

	model, err := matting.NewModel(cfg)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialise matting model")
	}
	if closer, ok := model.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(model, logger, cfg.Debug)
	if err := srv.Run(ctx, cfg.ListenAddr); err != nil {
		logger.WithError(err).Error("Matting server stopped")
		os.Exit(1)
	}
	logger.Info("Matting server shut down gracefully")
}

// applyFlags lets command-line flags override the file and environment
// settings. Empty flags leave the configured values alone.
func applyFlags(cfg *config.Config, debug bool, backend, listen string) {
	if debug {
		cfg.Debug = true
	}
	if backend != "" {
		cfg.Backend = backend
	}
	if listen != "" {
		cfg.ListenAddr = listen
	}
}

// initLogger initializes the logger with appropriate level
func initLogger(debugMode bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	if debugMode {
		logger.SetLevel(logrus.DebugLevel)
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
			ForceColors:   true,
		})
	} else {
		logger.SetLevel(logrus.InfoLevel)
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	return logger
}
