package app

import (
	"context"
	"fmt"
	"github.com/lefinal/masc-devices/debugstatssvc"
	"github.com/lefinal/masc-devices/devicelist"
	"github.com/lefinal/masc-devices/devicelistsvc"
	"github.com/lefinal/masc-devices/errors"
	"github.com/lefinal/masc-devices/logging"
	"github.com/lefinal/masc-devices/logpublishsvc"
	"github.com/lefinal/masc-devices/portal"
	"github.com/lefinal/masc-devices/service"
	"github.com/lefinal/masc-devices/webserver"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"time"
)

type services map[string]service.Service

// serviceFunc allows using a function as service.Service.
type serviceFunc func(ctx context.Context) error

func (f serviceFunc) Run(ctx context.Context) error {
	return f(ctx)
}

func createServices(appConfig Config, logger *zap.Logger, portalBase portal.Base, mall devicelistsvc.Store,
	reconciler *devicelist.Reconciler, stream devicelist.Stream, webServer *webserver.WebServer,
	logEntriesIn <-chan logging.LogEntry) (services, error) {
	services := make(services)
	// Portal connection.
	services["portal"] = serviceFunc(portalBase.Open)
	// Debug stats service.
	s, err := debugstatssvc.NewService(logger.Named("debug-stats"), debugstatssvc.Config{
		IsEnabled: appConfig.Log.SystemDebugStatsInterval.Valid && appConfig.Log.SystemDebugStatsInterval.Int > 0,
		Interval:  time.Duration(appConfig.Log.SystemDebugStatsInterval.Int) * time.Minute,
	})
	if err != nil {
		return nil, errors.Wrap(err, "new debug stats service", nil)
	}
	services["debug-stats"] = s
	// Device list service.
	services["device-list"] = devicelistsvc.NewService(logger.Named("device-list"),
		portalBase.NewPortal("device-list"), mall, reconciler, stream)
	// Log publishing service. Its own logs are not published again.
	services["log-publish"] = logpublishsvc.New(logger.Named("log-publish").With(logging.NoPublish()),
		portalBase.NewPortal("log-publish", logging.NoPublish()), logEntriesIn)
	// Web server.
	services["web-server"] = webServer
	return services, nil
}

func (s services) run(ctx context.Context, logger *zap.Logger) error {
	wg, lifetime := errgroup.WithContext(ctx)
	// Run each.
	for name, serviceToRun := range s {
		// Copy values.
		name, serviceToRun := name, serviceToRun
		wg.Go(func() error {
			logger.Debug(fmt.Sprintf("service %s up", name))
			defer logger.Debug(fmt.Sprintf("service %s down", name))
			if err := serviceToRun.Run(lifetime); err != nil {
				return errors.Wrap(err, "run service", errors.Details{"service_name": name})
			}
			return nil
		})
	}
	return wg.Wait()
}
