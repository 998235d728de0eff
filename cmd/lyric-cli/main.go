package main

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/joshp123/gohome-lyric/internal/service"
)

const defaultAddr = "localhost:9010"

func main() {
	app := &cli.App{
		Name:  "lyric-cli",
		Usage: "control Lyric thermostats through the lyric daemon",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				EnvVars: []string{"LYRIC_GRPC_ADDR"},
				Value:   defaultAddr,
				Usage:   "daemon gRPC address",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "print JSON instead of tables",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Value: 15 * time.Second,
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "locations",
				Usage:  "list locations",
				Action: locationsCmd,
			},
			{
				Name:      "devices",
				Usage:     "list the devices of a location",
				ArgsUsage: "<location>",
				Action:    devicesCmd,
			},
			{
				Name:      "state",
				Usage:     "print the full device state",
				ArgsUsage: "<location> <device>",
				Action:    stateCmd,
			},
			{
				Name:      "set",
				Usage:     "change mode, setpoints or hold",
				ArgsUsage: "<location> <device>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "mode", Usage: "Heat, Cool, Off or Auto"},
					&cli.Float64Flag{Name: "heat", Usage: "heat setpoint"},
					&cli.Float64Flag{Name: "cool", Usage: "cool setpoint"},
					&cli.StringFlag{Name: "hold", Usage: "NoHold, TemporaryHold, PermanentHold or HoldUntil"},
					&cli.StringFlag{Name: "until", Usage: "next period time (HH:MM:SS) for HoldUntil"},
					&cli.BoolFlag{Name: "auto-changeover", Usage: "enable automatic changeover"},
				},
				Action: setCmd,
			},
			{
				Name:      "fan",
				Usage:     "change the fan mode",
				ArgsUsage: "<location> <device> [mode]",
				Action:    fanCmd,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "lyric-cli: %v\n", err)
		os.Exit(1)
	}
}

func dial(c *cli.Context) (*service.Client, func(), error) {
	conn, err := grpc.NewClient(c.String("addr"), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", c.String("addr"), err)
	}
	return service.NewClient(conn), func() { _ = conn.Close() }, nil
}
