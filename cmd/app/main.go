// Image Background Remover - desktop application
package main

import (
	"flag"
	"os"

	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/theme"
	"github.com/sirupsen/logrus"

	"image-background-remover/internal/config"
	"image-background-remover/internal/gui"
	"image-background-remover/internal/matting"
)

const (
	AppName    = "Image Background Remover"
	AppID      = "io.github.bgremover.desktop"
	AppVersion = "1.0.0"
)

func main() {
	// Parse command line flags
	debugMode := flag.Bool("debug", false, "Enable debug mode with verbose logging")
	configPath := flag.String("config", "", "Path to a JSON configuration file")
	backend := flag.String("backend", "", "Matting backend: command, http, onnx or colorkey")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err == nil {
		err = cfg.ApplyEnv()
	}
	if *debugMode {
		cfg.Debug = true
	}
	if *backend != "" {
		cfg.Backend = *backend
	}

	logger := initLogger(cfg.Debug)
	if err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}

	logger.WithFields(logrus.Fields{
		"version":    AppVersion,
		"debug_mode": cfg.Debug,
		"backend":    cfg.Backend,
	}).Info("Starting " + AppName)

	remover, err := matting.New(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialise matting backend")
	}

	myApp := app.NewWithID(AppID)
	myApp.SetIcon(theme.ContentCutIcon())
	myApp.Settings().SetTheme(theme.DefaultTheme())

	mainApp := gui.NewApplication(myApp, cfg, remover, logger)
	mainApp.ShowAndRun()

	logger.Info("Application shutting down gracefully")
	os.Exit(0)
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
		logger.Debug("Debug logging enabled")
	} else {
		logger.SetLevel(logrus.InfoLevel)
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	return logger
}
