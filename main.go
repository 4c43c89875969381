package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/tabsense/tabsense/internal/serve"
	"github.com/tabsense/tabsense/internal/watch"
)

func main() {
	app := &cli.App{
		Name:  "tabsense",
		Usage: "observe browser tabs, summarize their content and build a knowledge graph",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Value: "config.yaml",
				Usage: "path to the YAML config file",
			},
			&cli.BoolFlag{
				Name:  "quiet",
				Usage: "only log errors",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "watch",
				Usage: "attach to a browser and process tabs",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "devtools-url",
						Usage: "DevTools websocket URL of a running browser (starts a headless one when empty)",
					},
					&cli.StringFlag{
						Name:  "backend-url",
						Usage: "knowledge-graph backend base URL",
					},
				},
				Action: watch.WatchAction,
			},
			{
				Name:  "serve",
				Usage: "run the knowledge-graph backend",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "listen",
						Usage: "listen address, e.g. :8000",
					},
				},
				Action: serve.ServeAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
