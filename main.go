package main

import (
	"context"
	"fmt"
	"github.com/lefinal/masc-devices/app"
	"github.com/lefinal/masc-devices/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	rootCmd := &cobra.Command{
		Use:   "masc-devices",
		Short: "Device list backend",
		Long: `Device list backend.

Keeps a list of selectable hardware wallet devices based on live discovery
and previously paired devices. The list is published via MQTT and served via
HTTP and websocket.`,
		SilenceUsage: true,
	}
	rootCmd.AddCommand(newRunCmd())
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func newRunCmd() *cobra.Command {
	v := viper.New()
	var configFile string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the device list backend",
		Long: `Run the device list backend until interrupted.

Configuration is read from the given file, masc-devices.* in the working
directory or /etc/masc-devices. Values can be overridden with environment
variables prefixed with MASC_DEVICES_, for example MASC_DEVICES_DB_CONN.

Examples:
  masc-devices run --config config.yaml
  masc-devices run --serve-addr :9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := app.LoadConfig(v, configFile)
			if err != nil {
				return fmt.Errorf("load config: %s", errors.Prettify(err))
			}
			return app.NewApp(config).Boot(cmd.Context())
		},
	}
	cmd.Flags().StringVarP(&configFile, "config", "c", "", "config file")
	cmd.Flags().String("serve-addr", "", "address to serve HTTP on")
	_ = v.BindPFlag("serve_addr", cmd.Flags().Lookup("serve-addr"))
	cmd.Flags().String("mqtt-addr", "", "address of the MQTT broker")
	_ = v.BindPFlag("mqtt_addr", cmd.Flags().Lookup("mqtt-addr"))
	return cmd
}
