package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/joshp123/gohome-lyric/internal/config"
	"github.com/joshp123/gohome-lyric/internal/oauth"
	"github.com/joshp123/gohome-lyric/internal/oauthflow"
)

func oauthCommand() *cli.Command {
	persistFlags := []cli.Flag{
		&cli.StringFlag{Name: "state-path", Usage: "override lyric.state_path"},
		&cli.BoolFlag{Name: "skip-blob", Usage: "do not mirror the state to blob storage"},
		&cli.BoolFlag{Name: "json", Usage: "print the result as JSON"},
	}
	return &cli.Command{
		Name:  "oauth",
		Usage: "obtain or persist Honeywell OAuth credentials",
		Subcommands: []*cli.Command{
			{
				Name:  "auth-code",
				Usage: "authorize in the browser and store the refresh token",
				Flags: append([]cli.Flag{
					&cli.StringFlag{Name: "redirect-url", Required: true, Usage: "callback URL registered for the app"},
					&cli.BoolFlag{Name: "no-open", Usage: "do not open the browser"},
					&cli.DurationFlag{Name: "timeout", Value: 5 * time.Minute},
				}, persistFlags...),
				Action: authCodeCmd,
			},
			{
				Name:   "persist",
				Usage:  "install an existing state file",
				Flags:  append([]cli.Flag{&cli.StringFlag{Name: "state", Required: true}}, persistFlags...),
				Action: persistCmd,
			},
		},
	}
}

func authCodeCmd(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	bootstrap, err := oauth.LoadBootstrap(cfg.Lyric.BootstrapFile)
	if err != nil {
		return err
	}
	decl := oauth.Honeywell(cfg.Lyric.StatePath)
	flow, err := oauthflow.NewAuthCode(decl, bootstrap, c.String("redirect-url"))
	if err != nil {
		return err
	}

	prompt := c.App.Writer
	if c.Bool("json") {
		prompt = c.App.ErrWriter
	}
	fmt.Fprintf(prompt, "Open this URL to authorize:\n%s\n\n", flow.URL())
	if !c.Bool("no-open") {
		_ = openBrowser(flow.URL())
	}
	fmt.Fprint(prompt, "Waiting for the callback (or paste the code / redirect URL): ")

	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	defer cancel()
	code, err := flow.WaitForCode(ctx, os.Stdin)
	if err != nil {
		return err
	}
	state, err := flow.Exchange(ctx, code)
	if err != nil {
		return err
	}
	return persist(c, cfg, decl, state)
}

func persistCmd(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	state, err := oauth.LoadState(c.String("state"))
	if err != nil {
		return err
	}
	return persist(c, cfg, oauth.Honeywell(cfg.Lyric.StatePath), state)
}

func persist(c *cli.Context, cfg *config.Config, decl oauth.Declaration, state oauth.State) error {
	var store oauth.BlobStore
	if !c.Bool("skip-blob") && cfg.OAuth.BlobEndpoint != "" {
		s, err := oauth.NewS3Store(cfg.OAuth)
		if err != nil {
			return err
		}
		store = s
	}
	result, err := oauthflow.PersistState(c.Context, decl, state, store, c.String("state-path"))
	if err != nil {
		return err
	}
	return printPersistResult(c.App.Writer, result, c.Bool("json"))
}

func printPersistResult(w io.Writer, result oauthflow.PersistResult, jsonOut bool) error {
	if jsonOut {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}
	_, err := fmt.Fprintf(w, "\nState file: %s\nBlob persisted: %t\n", result.StatePath, result.BlobSaved)
	return err
}

func openBrowser(target string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", target).Start()
	case "linux":
		return exec.Command("xdg-open", target).Start()
	default:
		return nil
	}
}
