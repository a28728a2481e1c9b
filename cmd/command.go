package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kilianp07/smartcharge/config"
	"github.com/kilianp07/smartcharge/infra/mqtt"
)

var commandCmd = &cobra.Command{
	Use:   "cmd <command> [args...]",
	Short: "Send a command to the running service",
	Long: "Send a command to the running service over MQTT and print the reply.\n\nCommands:\n" +
		"  status | start | stop | enable | disable | target <20-100>\n" +
		"  window <HH:MM> <HH:MM> | rates <cheap> <standard> | charger <kW>\n" +
		"  readyby <HH:MM>|off | rate measured on|off | rate set <kW> | rate clear\n" +
		"  battery <kWh>|auto | soh <pct>|auto | version",
	Args: cobra.MinimumNArgs(1),
	RunE: runCommand,
}

func init() {
	rootCmd.AddCommand(commandCmd)
}

func runCommand(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	mqttCfg := cfg.MQTT
	// A second connection with the service's client id would drop the service.
	mqttCfg.ClientID = fmt.Sprintf("%s-cli-%s", cfg.MQTT.ClientID, uuid.NewString()[:8])
	mqttCfg.LWTTopic = ""
	client, err := mqtt.NewPahoClient(mqttCfg)
	if err != nil {
		return fmt.Errorf("mqtt client: %w", err)
	}
	defer client.Disconnect()

	topics := mqtt.Topics{Prefix: cfg.Vehicle.TopicPrefix, ClientID: cfg.Vehicle.ClientID}
	cc := mqtt.NewCommandClient(client, topics, cfg.Vehicle.CommandTimeout())
	resp, err := cc.Send(ctx, strings.Join(args, " "))
	if resp.Reply != "" {
		fmt.Fprintln(cmd.OutOrStdout(), resp.Reply)
	}
	return err
}
