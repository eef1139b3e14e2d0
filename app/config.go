package app

import (
	nativeerrors "errors"
	"github.com/gobuffalo/nulls"
	"github.com/go-viper/mapstructure/v2"
	"github.com/lefinal/masc-devices/errors"
	"github.com/lefinal/masc-devices/store"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
	"reflect"
	"strings"
)

// EnvPrefix is the prefix for environment variables overriding config values.
const EnvPrefix = "MASC_DEVICES"

// Config is the configuration needed in order to boot an App.
type Config struct {
	// DBConn is the connection string for the PostgreSQL database.
	DBConn string `mapstructure:"db_conn"`
	// MaxDBConnections limits the database connection pool.
	MaxDBConnections int `mapstructure:"max_db_connections"`
	// MQTTAddr is the address of the MQTT broker.
	MQTTAddr string `mapstructure:"mqtt_addr"`
	// ServeAddr is the address the web server listens on.
	ServeAddr string `mapstructure:"serve_addr"`
	// Devices configures the device list.
	Devices DevicesConfig `mapstructure:"devices"`
	// Log configures logging.
	Log LogConfig `mapstructure:"log"`
}

// DevicesConfig configures device discovery and listing.
type DevicesConfig struct {
	// FallbackModelID is used for devices without model id.
	FallbackModelID string `mapstructure:"fallback_model_id"`
	// DebugTransportWired lists debug transport devices as wired.
	DebugTransportWired bool `mapstructure:"debug_transport_wired"`
	// AlwaysShowWiredSection shows the wired section even if empty.
	AlwaysShowWiredSection bool `mapstructure:"always_show_wired_section"`
	// Transports to discover. Empty means all.
	Transports []string `mapstructure:"transports"`
}

// LogConfig configures logging.
type LogConfig struct {
	// StdoutLogLevel is the minimum level for logging to stdout.
	StdoutLogLevel zapcore.Level `mapstructure:"stdout_log_level"`
	// HighPriorityOutput is the optional file for warnings and errors.
	HighPriorityOutput nulls.String `mapstructure:"high_priority_output"`
	// DebugOutput is the optional file for all log entries.
	DebugOutput nulls.String `mapstructure:"debug_output"`
	// MaxSize is the maximum size in megabytes of a log file before rotation.
	MaxSize int `mapstructure:"max_size"`
	// KeepDays is the number of days to keep rotated log files.
	KeepDays int `mapstructure:"keep_days"`
	// SystemDebugStatsInterval is the interval in minutes for logging system
	// debug stats. Disabled if not set or zero.
	SystemDebugStatsInterval nulls.Int `mapstructure:"system_debug_stats_interval"`
}

// configKeys are all keys of Config. Each one can be overridden with an
// environment variable, for example MASC_DEVICES_DEVICES_TRANSPORTS for
// devices.transports.
var configKeys = []string{
	"db_conn",
	"max_db_connections",
	"mqtt_addr",
	"serve_addr",
	"devices.fallback_model_id",
	"devices.debug_transport_wired",
	"devices.always_show_wired_section",
	"devices.transports",
	"log.stdout_log_level",
	"log.high_priority_output",
	"log.debug_output",
	"log.max_size",
	"log.keep_days",
	"log.system_debug_stats_interval",
}

// envName returns the environment variable name for the given config key.
func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// bindEnv binds all configKeys to their environment variables. Viper only
// considers environment variables for keys it knows when unmarshalling.
func bindEnv(v *viper.Viper) error {
	for _, key := range configKeys {
		err := v.BindEnv(key, envName(key))
		if err != nil {
			return errors.NewInvalidConfigError("bind env", errors.Details{
				"key": key,
				"err": err.Error(),
			})
		}
	}
	return nil
}

// setDefaults sets the default values for Config.
func setDefaults(v *viper.Viper) {
	v.SetDefault("serve_addr", ":8080")
	v.SetDefault("max_db_connections", store.DefaultMaxDBConnections)
	v.SetDefault("devices.fallback_model_id", "nanoX")
	v.SetDefault("log.stdout_log_level", "info")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.keep_days", 7)
}

// LoadConfig loads the Config from the given file, environment variables
// prefixed with EnvPrefix and defaults. If configFile is empty, the config is
// searched as masc-devices.* in the working directory and
// /etc/masc-devices.
func LoadConfig(v *viper.Viper, configFile string) (Config, error) {
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	err := bindEnv(v)
	if err != nil {
		return Config{}, err
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("masc-devices")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/masc-devices")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !nativeerrors.As(err, &notFoundErr) || configFile != "" {
			return Config{}, errors.NewInvalidConfigError("read config", errors.Details{
				"file": configFile,
				"err":  err.Error(),
			})
		}
	}
	var config Config
	err = v.Unmarshal(&config, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		mapstructure.TextUnmarshallerHookFunc(),
		nullsDecodeHook,
	)))
	if err != nil {
		return Config{}, errors.NewInvalidConfigError("unmarshal config", errors.Details{"err": err.Error()})
	}
	return config, nil
}

// nullsDecodeHook decodes plain values into nulls.String and nulls.Int.
func nullsDecodeHook(_ reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if data != nil && reflect.TypeOf(data) == to {
		return data, nil
	}
	switch to {
	case reflect.TypeOf(nulls.String{}):
		if data == nil {
			return nulls.String{}, nil
		}
		s, err := cast.ToStringE(data)
		if err != nil {
			return nil, err
		}
		return nulls.NewString(s), nil
	case reflect.TypeOf(nulls.Int{}):
		if data == nil {
			return nulls.Int{}, nil
		}
		i, err := cast.ToIntE(data)
		if err != nil {
			return nil, err
		}
		return nulls.NewInt(i), nil
	}
	return data, nil
}

// ValidateConfig makes sure that all required fields are set and values are
// in range.
func ValidateConfig(config Config) error {
	if config.DBConn == "" {
		return errors.NewInvalidConfigError("missing db connection string", nil)
	}
	if config.MQTTAddr == "" {
		return errors.NewInvalidConfigError("missing mqtt address", nil)
	}
	if config.ServeAddr == "" {
		return errors.NewInvalidConfigError("missing serve address", nil)
	}
	if config.MaxDBConnections < 0 {
		return errors.NewInvalidConfigError("max db connections must not be negative",
			errors.Details{"was": config.MaxDBConnections})
	}
	if (config.Log.HighPriorityOutput.Valid || config.Log.DebugOutput.Valid) && config.Log.MaxSize <= 0 {
		return errors.NewInvalidConfigError("max log file size must be positive when logging to files",
			errors.Details{"was": config.Log.MaxSize})
	}
	if config.Log.SystemDebugStatsInterval.Valid && config.Log.SystemDebugStatsInterval.Int < 0 {
		return errors.NewInvalidConfigError("system debug stats interval must not be negative",
			errors.Details{"was": config.Log.SystemDebugStatsInterval.Int})
	}
	return nil
}
