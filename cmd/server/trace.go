package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"ardrone-svr/internal/config"
	"ardrone-svr/internal/observability"
	"ardrone-svr/internal/pipeline"
	"ardrone-svr/internal/replay"
)

var traceCmd = &cobra.Command{
	Use:   "trace <capture.pcap>",
	Short: "Decode navdata and AT commands from a packet capture",
	Args:  cobra.ExactArgs(1),
	RunE:  runTrace,
}

func runTrace(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	logger := observability.NewLogger(cfg.LogLevel)
	dec := pipeline.NewDecoder(pipeline.DecoderConfig{
		LengthMode:     cfg.LengthMode,
		StrictChecksum: cfg.StrictChecksum,
	}, logger)

	out := cmd.OutOrStdout()
	st, err := replay.Trace(f, replay.Options{
		DroneIP:     cfg.DroneIP,
		NavdataPort: uint16(cfg.NavdataPort),
		ControlPort: uint16(cfg.ControlPort),
	}, dec, func(e replay.Event) {
		ts := e.Time.Format("15:04:05.000")
		switch {
		case e.Err != nil:
			fmt.Fprintf(out, "%s %s error: %v\n", ts, e.Kind, e.Err)
		case e.Command != nil:
			fmt.Fprintf(out, "%s %s %s\n", ts, e.Command.Name, strings.Join(e.Command.Args, ","))
		case e.Update != nil:
			for _, c := range e.Update.Changes {
				fmt.Fprintf(out, "%s navdata seq=%d %s\n", ts, e.Update.Frame.Sequence, c)
			}
		}
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "packets=%d navdata=%d commands=%d errors=%d\n", st.Packets, st.Navdata, st.Commands, st.Errors)
	return nil
}
