package app

import (
	"context"
	"github.com/lefinal/masc-devices/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"testing"
	"time"
)

func TestBootInvalidConfig(t *testing.T) {
	err := NewApp(Config{}).Boot(context.Background())
	require.Error(t, err, "should fail")
	e, _ := errors.Cast(err)
	assert.Equal(t, errors.ErrBadRequest, e.Code, "should fail with invalid config")
}

func TestSetupLogging(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	logger, publishLog := setupLogging(ctx, LogConfig{StdoutLogLevel: zap.ErrorLevel})
	logger.Debug("hello")
	logger.Debug("hidden", zap.Bool("no_publish", true))
	require.Len(t, publishLog, 1, "should publish entry")
	assert.Equal(t, "hello", (<-publishLog).Message)
}

func TestServicesRun(t *testing.T) {
	logger := zap.New(zapcore.NewNopCore())
	t.Run("stop on context done", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		stopped := atomic.NewInt32(0)
		s := services{
			"a": serviceFunc(func(ctx context.Context) error {
				<-ctx.Done()
				stopped.Inc()
				return nil
			}),
			"b": serviceFunc(func(ctx context.Context) error {
				<-ctx.Done()
				stopped.Inc()
				return nil
			}),
		}
		cancel()
		assert.NoError(t, s.run(ctx, logger), "should not fail")
		assert.Equal(t, int32(2), stopped.Load(), "should stop all services")
	})
	t.Run("stop all on error", func(t *testing.T) {
		timeout, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		s := services{
			"failing": serviceFunc(func(_ context.Context) error {
				return errors.NewInternalError("sad life", nil)
			}),
			"waiting": serviceFunc(func(ctx context.Context) error {
				<-ctx.Done()
				return nil
			}),
		}
		err := s.run(timeout, logger)
		require.Error(t, err, "should fail")
		assert.NoError(t, timeout.Err(), "should not time out")
		e, _ := errors.Cast(err)
		assert.Equal(t, "failing", e.Details["service_name"], "should include service name")
	})
}
