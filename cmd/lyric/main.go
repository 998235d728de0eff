package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/joshp123/gohome-lyric/internal/config"
)

func main() {
	app := &cli.App{
		Name:   "lyric",
		Usage:  "Honeywell Lyric thermostat bridge",
		Action: serveCommand,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				EnvVars: []string{"LYRIC_CONFIG"},
				Value:   config.DefaultPath,
				Usage:   "path to the YAML config file",
			},
			&cli.StringFlag{
				Name:    "env-file",
				EnvVars: []string{"LYRIC_ENV_FILE"},
				Usage:   "dotenv file loaded before the config",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the poller, gRPC and HTTP servers",
				Action: serveCommand,
			},
			{
				Name:   "check-config",
				Usage:  "load and validate the config, then exit",
				Action: checkConfigCommand,
			},
			oauthCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
