package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"HealthForce-Goa/internal/config"
	"HealthForce-Goa/sdk/go/healthforce"
)

// version 由构建时的 -ldflags "-X main.version=..." 注入。
var version = "dev"

type rootOptions struct {
	configPath string
	apiURL     string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "healthforce",
		Short: "HealthForce Goa terminal client",
		Long: `healthforce hosts the HealthForce Goa navigation shell in the terminal
and exposes every backend operation of the API gateway client.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file path (default $"+config.EnvConfigPath+" or configs/healthforce.yaml)")
	root.PersistentFlags().StringVar(&opts.apiURL, "api-url", "", "backend origin, overrides gateway.base_url")

	root.AddCommand(newUICmd(opts), newCallCmd(opts), newVersionCmd())
	return root
}

func (o *rootOptions) loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if o.configPath != "" {
		cfg, err = config.Load(o.configPath)
	} else {
		cfg, _, err = config.Resolve()
	}
	if err != nil {
		return nil, err
	}
	if url := strings.TrimSpace(o.apiURL); url != "" {
		cfg.Gateway.BaseURL = url
	}
	return cfg, nil
}

func newClient(cfg *config.Config) (*healthforce.Client, error) {
	return healthforce.NewClient(cfg.Gateway.BaseURL, healthforce.WithBasePath(cfg.Gateway.BasePath))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the client version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "healthforce %s\n", version)
			return err
		},
	}
}
