// Command ntripcasterd runs the caster, and provisions the credential
// seed file its serve command bootstraps from. Grounded on
// cmd/ntrip-server/main.go's flag/logger/signal-handling shape,
// rebuilt on github.com/urfave/cli/v2 so that provisioning lives in
// its own subcommands rather than a pile of top-level flags.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/gnsscaster/ntripcaster/pkg/authstore"
	"github.com/gnsscaster/ntripcaster/pkg/caster"
	"github.com/gnsscaster/ntripcaster/pkg/config"
	"github.com/gnsscaster/ntripcaster/pkg/logging"
)

func main() {
	app := &cli.App{
		Name:  "ntripcasterd",
		Usage: "NTRIP caster daemon",
		Commands: []*cli.Command{
			serveCommand,
			addUserCommand,
			addMountCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var configFlag = &cli.StringFlag{
	Name:  "config",
	Usage: "path to the JSON configuration file",
}

var seedFlag = &cli.StringFlag{
	Name:  "seed",
	Usage: "path to the credential seed file",
	Value: "ntripcaster_seed.json",
}

var serveCommand = &cli.Command{
	Name:  "serve",
	Usage: "run the caster",
	Flags: []cli.Flag{configFlag, seedFlag},
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}

		creds, err := authstore.LoadSeedFile(c.String(seedFlag.Name))
		if err != nil {
			return fmt.Errorf("loading seed file: %w", err)
		}

		log := logging.New(cfg.Logging.Level)

		ca := caster.NewCaster(cfg, creds, log)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigCh
			log.Info("shutting down")
			ca.Shutdown()
		}()

		log.WithField("addr", fmt.Sprintf("%s:%d", cfg.Network.Host, cfg.NTRIP.Port)).Info("starting caster")
		return ca.ListenAndServe()
	},
}

var addUserCommand = &cli.Command{
	Name:      "adduser",
	Usage:     "add or update a consumer user in the seed file",
	ArgsUsage: "<username> <password>",
	Flags:     []cli.Flag{seedFlag},
	Action: func(c *cli.Context) error {
		if c.NArg() != 2 {
			return fmt.Errorf("adduser requires <username> <password>")
		}
		path := c.String(seedFlag.Name)

		seed, err := authstore.ReadSeedFile(path)
		if err != nil {
			return fmt.Errorf("reading seed file: %w", err)
		}
		seed.PutUser(c.Args().Get(0), c.Args().Get(1))
		if err := authstore.WriteSeedFile(path, seed); err != nil {
			return fmt.Errorf("writing seed file: %w", err)
		}
		fmt.Printf("user %q added to %s\n", c.Args().Get(0), path)
		return nil
	},
}

var addMountCommand = &cli.Command{
	Name:      "addmount",
	Usage:     "add or update a mount's producer secret in the seed file",
	ArgsUsage: "<mount> <secret> [owner-user]",
	Flags:     []cli.Flag{seedFlag},
	Action: func(c *cli.Context) error {
		if c.NArg() < 2 {
			return fmt.Errorf("addmount requires <mount> <secret> [owner-user]")
		}
		path := c.String(seedFlag.Name)

		seed, err := authstore.ReadSeedFile(path)
		if err != nil {
			return fmt.Errorf("reading seed file: %w", err)
		}
		seed.PutMount(c.Args().Get(0), c.Args().Get(1), c.Args().Get(2))
		if err := authstore.WriteSeedFile(path, seed); err != nil {
			return fmt.Errorf("writing seed file: %w", err)
		}
		fmt.Printf("mount %q added to %s\n", c.Args().Get(0), path)
		return nil
	},
}

// loadConfig reads the file named by --config, or falls back to
// config.Default() when the flag is omitted: serve can run with no
// file on disk at all, matching config.Load's own fill-in-the-gaps
// behavior for the keys a file does specify.
func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String(configFlag.Name)
	if path == "" {
		cfg := config.Default()
		config.ApplyEnvOverrides(&cfg)
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return &cfg, nil
	}
	return config.Load(path)
}
