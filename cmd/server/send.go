package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"ardrone-svr/internal/config"
	"ardrone-svr/internal/dispatcher"
	"ardrone-svr/internal/observability"
	"ardrone-svr/internal/server"
	"ardrone-svr/internal/session"
)

var sendCmd = &cobra.Command{
	Use:   "send <command> [key=value ...]",
	Short: "Send a single named command (" + strings.Join(dispatcher.Names(), ", ") + ")",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSend,
}

func parseParams(args []string) (dispatcher.Params, error) {
	p := dispatcher.Params{}
	for _, a := range args {
		k, val, ok := strings.Cut(a, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid parameter %q (expected key=value)", a)
		}
		p[k] = val
	}
	return p, nil
}

func runSend(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	params, err := parseParams(args[1:])
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.LogLevel)
	sess := session.New(session.Config{Terminator: cfg.Terminator, MaxFrameBytes: cfg.MaxFrameBytes}, logger)
	if err := sess.Run(args[0], params); err != nil {
		return err
	}

	tx, err := server.NewControlSender(server.SenderConfig{DroneAddr: cfg.ControlAddr()}, sess, logger)
	if err != nil {
		return err
	}
	defer tx.Close()
	// sin AT*REF: un REF con el bit de despegue apagado aterrizaría al dron
	if _, err := tx.Flush(sess); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "sent %s to %s\n", args[0], cfg.ControlAddr())
	return nil
}
