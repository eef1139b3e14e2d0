// Package app wires all components and runs them.
package app

import (
	"context"
	"github.com/lefinal/masc-devices/devicelist"
	"github.com/lefinal/masc-devices/discovery"
	"github.com/lefinal/masc-devices/errors"
	"github.com/lefinal/masc-devices/logging"
	"github.com/lefinal/masc-devices/metrics"
	"github.com/lefinal/masc-devices/portal"
	"github.com/lefinal/masc-devices/store"
	"github.com/lefinal/masc-devices/webserver"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
	"os"
)

// App is a complete device list backend instance.
type App struct {
	// config is the main config used for the App.
	config Config
}

// NewApp creates a new App with the given Config. Run it with App.Boot.
func NewApp(config Config) *App {
	return &App{
		config: config,
	}
}

// Boot sets everything up based on the set config and runs until the given
// context.Context is done.
func (app *App) Boot(ctx context.Context) error {
	err := ValidateConfig(app.config)
	if err != nil {
		return errors.Wrap(err, "validate config", nil)
	}
	logger, publishLog := setupLogging(ctx, app.config.Log)
	defer func() {
		_ = logger.Sync()
	}()
	err = app.boot(ctx, logger, publishLog)
	if err != nil {
		err = errors.Wrap(err, "boot", nil)
		errors.Log(logger, err)
		return err
	}
	return nil
}

func (app *App) boot(ctx context.Context, logger *zap.Logger, publishLog <-chan logging.LogEntry) error {
	logger.Info("booting up")
	// Connect database.
	logger.Debug("connecting to database")
	db, err := store.Connect(ctx, logger.Named("db"), app.config.DBConn, app.config.MaxDBConnections)
	if err != nil {
		return errors.Wrap(err, "connect database", nil)
	}
	defer db.Close()
	mall := store.NewMall(logger.Named("store"), db)
	logger.Debug("database ready")
	// Create portal base.
	portalBase, err := portal.NewBase(logger.Named("portal"), portal.Config{MQTTAddr: app.config.MQTTAddr})
	if err != nil {
		return errors.Wrap(err, "new portal base", nil)
	}
	// Create device list.
	appMetrics := metrics.NewMetrics()
	reconciler := devicelist.NewReconciler(logger.Named("reconciler"), devicelist.Config{
		FallbackModelID:        app.config.Devices.FallbackModelID,
		DebugTransportWired:    app.config.Devices.DebugTransportWired,
		AlwaysShowWiredSection: app.config.Devices.AlwaysShowWiredSection,
	}, appMetrics)
	stream := discovery.NewStream(logger.Named("discovery"), portalBase.NewPortal("discovery"), discovery.Config{
		Transports: app.config.Devices.Transports,
	})
	// Create web server.
	webServer, err := webserver.NewWebServer(logger.Named("web-server"), webserver.Config{
		ServeAddr: app.config.ServeAddr,
	})
	if err != nil {
		return errors.Wrap(err, "create web server", nil)
	}
	webServer.PopulateRoutes(ctx, reconciler, promhttp.HandlerFor(appMetrics.Registry, promhttp.HandlerOpts{}))
	// Create services.
	s, err := createServices(app.config, logger, portalBase, mall, reconciler, stream, webServer, publishLog)
	if err != nil {
		return errors.Wrap(err, "create services", nil)
	}
	logger.Info("setup completed. running...")
	err = s.run(ctx, logger)
	if err != nil {
		return errors.Wrap(err, "run services", nil)
	}
	logger.Info("shut down")
	return nil
}

// setupLogging creates the zap.Logger with all cores based on the given
// LogConfig. Entries to publish are sent to the returned channel.
func setupLogging(ctx context.Context, config LogConfig) (*zap.Logger, <-chan logging.LogEntry) {
	encConfig := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	cores := make([]zapcore.Core, 0)
	// Setup stdout logger with colorful level output.
	stdOutEncConfig := encConfig
	stdOutEncConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cores = append(cores, zapcore.NewCore(
		zapcore.NewConsoleEncoder(stdOutEncConfig),
		zapcore.Lock(os.Stdout),
		zap.LevelEnablerFunc(func(level zapcore.Level) bool {
			return level >= config.StdoutLogLevel && level < zap.ErrorLevel
		})))
	// Setup error logger.
	cores = append(cores, zapcore.NewCore(
		zapcore.NewConsoleEncoder(encConfig),
		zapcore.Lock(os.Stderr),
		zap.LevelEnablerFunc(func(level zapcore.Level) bool {
			return level >= zap.ErrorLevel
		})))
	// Setup high priority logger.
	if config.HighPriorityOutput.Valid {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encConfig),
			zapcore.AddSync(&lumberjack.Logger{
				Filename: config.HighPriorityOutput.String,
				MaxSize:  config.MaxSize,
				MaxAge:   config.KeepDays,
			}),
			zap.LevelEnablerFunc(func(level zapcore.Level) bool {
				return level >= zap.WarnLevel
			})))
	}
	// Setup debug logger.
	if config.DebugOutput.Valid {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encConfig),
			zapcore.AddSync(&lumberjack.Logger{
				Filename: config.DebugOutput.String,
				MaxSize:  config.MaxSize,
				MaxAge:   config.KeepDays,
			}),
			zap.LevelEnablerFunc(func(level zapcore.Level) bool {
				return level >= zap.DebugLevel
			})))
	}
	// Setup publish logger.
	publishCore, publishLog := logging.NewNoPublishOmitCore(ctx, zap.DebugLevel)
	cores = append(cores, publishCore)
	// Combine.
	logger := zap.New(zapcore.NewTee(cores...))
	return logger, publishLog
}
