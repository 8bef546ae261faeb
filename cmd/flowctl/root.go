package main

import (
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/kbukum/streamkit/bootstrap"
	"github.com/kbukum/streamkit/config"
	"github.com/kbukum/streamkit/transform"
	"github.com/kbukum/streamkit/version"
)

const binaryName = "flowctl"

const (
	configFlag       = "config"
	envFileFlag      = "env-file"
	otlpEndpointFlag = "otlp-endpoint"
	logLevelFlag     = "log-level"
	outputFlag       = "output"
	passwordFlag     = "password"
	itemsFlag        = "items"
	producersFlag    = "producers"
	consumersFlag    = "consumers"
	capacityFlag     = "capacity"
	batchSizeFlag    = "batch-size"
)

// passwordEnv is read when --password is not given.
const passwordEnv = config.EnvPrefix + "_PASSWORD"

// cli holds what the commands share. setup fills app before any RunE.
type cli struct {
	fs      afero.Fs
	appOpts []bootstrap.Option
	app     *bootstrap.App
}

func newRootCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   binaryName,
		Short: "Stream files through hash, compression and encryption stages",
		Long: `flowctl streams files through chains of transform stages without
loading them into memory, and drives the bounded producer/consumer pipeline.

Settings come from config.yml, .env and FLOW_ prefixed environment variables,
in increasing order of precedence; flags override all of them.`,
		SilenceUsage:      true,
		PersistentPreRunE: c.setup,
	}

	flags := cmd.PersistentFlags()
	flags.String(configFlag, "", "path to config.yml (searched for when omitted)")
	flags.String(envFileFlag, "", "path to a .env file (searched for when omitted)")
	flags.String(otlpEndpointFlag, "", "OTLP/HTTP host:port; enables tracing and metrics export")
	flags.String(logLevelFlag, "", "override logging.level (debug, info, warn, error)")

	cmd.AddCommand(
		newPackCommand(c),
		newUnpackCommand(c),
		newDigestCommand(c),
		newRunCommand(c),
		newVersionCommand(),
	)
	return cmd
}

func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := c.loadConfig(cmd)
	if err != nil {
		return err
	}
	opts := append([]bootstrap.Option{bootstrap.WithVersion(version.Get().Short())}, c.appOpts...)
	app, err := bootstrap.NewApp(cfg, opts...)
	if err != nil {
		return err
	}
	c.app = app
	return nil
}

// loadConfig reads the configuration and applies the persistent flags.
func (c *cli) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()
	opts := []config.LoaderOption{config.WithFs(c.fs)}
	if path, _ := flags.GetString(configFlag); path != "" {
		opts = append(opts, config.WithConfigFile(path))
	}
	if path, _ := flags.GetString(envFileFlag); path != "" {
		opts = append(opts, config.WithEnvFile(path))
	}

	var cfg config.Config
	if err := config.Load(binaryName, &cfg, opts...); err != nil {
		return nil, err
	}
	if endpoint, _ := flags.GetString(otlpEndpointFlag); endpoint != "" {
		cfg.Observability.Endpoint = endpoint
	}
	if level, _ := flags.GetString(logLevelFlag); level != "" {
		cfg.Logging.Level = level
	}
	return &cfg, nil
}

func (c *cli) transformOptions() []transform.Option {
	return []transform.Option{
		transform.WithLogger(c.app.Logger),
		transform.WithMetrics(c.app.Metrics),
	}
}

// outputDir is --output when set, else transform.output_dir.
func (c *cli) outputDir(cmd *cobra.Command) string {
	if dir, _ := cmd.Flags().GetString(outputFlag); dir != "" {
		return dir
	}
	return c.app.Cfg.Transform.OutputDir
}
