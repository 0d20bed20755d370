// main.go bootstraps hsm: it builds the root Cobra command and
// executes it with a signal-aware context.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/example/hsm/internal/logging"
	"github.com/example/hsm/internal/varsource"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	_ "github.com/example/hsm/internal/adapter/composegen"
	_ "github.com/example/hsm/internal/adapter/uvpkg"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rootCmd := newRootCommand()
	err := rootCmd.ExecuteContext(ctx)
	handleError(err)
	if err != nil {
		os.Exit(1)
	}
}

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	projectRoot  string
	registryRoot string
	logLevel     string
	secretsFile  string
}

func (g *globalOptions) logger() (*zap.Logger, error) {
	return logging.New(g.logLevel)
}

// vars builds the variable provider chain: process env first, then the
// optional secrets file, then Vault when HSM_VAULT_ADDR is set.
func (g *globalOptions) vars(ctx context.Context) (*varsource.Resolver, error) {
	providers := []varsource.Provider{varsource.NewEnv(os.Environ())}
	if g.secretsFile != "" {
		providers = append(providers, varsource.NewFileProvider(g.secretsFile, g.projectRoot))
	}
	if addr := os.Getenv("HSM_VAULT_ADDR"); addr != "" {
		vp, err := varsource.NewVaultProvider(varsource.VaultConfig{
			Address:   addr,
			Token:     os.Getenv("HSM_VAULT_TOKEN"),
			Namespace: os.Getenv("HSM_VAULT_NAMESPACE"),
			Mount:     os.Getenv("HSM_VAULT_MOUNT"),
			Path:      os.Getenv("HSM_VAULT_PATH"),
		})
		if err != nil {
			return nil, fmt.Errorf("configure vault provider: %w", err)
		}
		providers = append(providers, vp)
	}
	return varsource.NewResolver(ctx, providers...), nil
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}
	cmd := &cobra.Command{
		Use:           "hsm",
		Short:         "Meta-orchestrator for Python project environments",
		Long: "hsm resolves a project's manifest against a component registry\n" +
			"and materializes the result: Python dependencies through uv and\n" +
			"infrastructure services through docker compose.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.projectRoot, "project", "C", ".", "Project directory containing hsm.yaml")
	cmd.PersistentFlags().StringVar(&opts.registryRoot, "registry", "", "Component registry directory (defaults to $HSM_REGISTRY)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "Log level for hsm output (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&opts.secretsFile, "secrets-file", "", "YAML file with variable values, resolved against the project directory")

	cmd.AddCommand(
		newInitCommand(opts),
		newSyncCommand(opts),
		newCheckCommand(opts),
		newStatusCommand(opts),
		newProjectCommand(opts),
		newRegistryCommand(opts),
		newServiceCommand(opts),
		newVersionCommand(),
	)
	bindViper(cmd)
	return cmd
}

// bindViper lets HSM_* environment variables stand in for unset flags
// on the root command and every subcommand.
func bindViper(root *cobra.Command) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.SetEnvPrefix("HSM")
	v.AutomaticEnv()
	v.SetConfigName(".hsm")
	v.SetConfigType("yaml")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(home)
	}

	var commands []*cobra.Command
	var collect func(*cobra.Command)
	collect = func(cmd *cobra.Command) {
		commands = append(commands, cmd)
		for _, sub := range cmd.Commands() {
			collect(sub)
		}
	}
	collect(root)

	cobra.OnInitialize(func() {
		for _, cmd := range commands {
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				cobra.CheckErr(err)
			}
			if err := v.BindPFlags(cmd.PersistentFlags()); err != nil {
				cobra.CheckErr(err)
			}
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				cobra.CheckErr(err)
			}
		}
		for _, cmd := range commands {
			for _, fs := range []*pflag.FlagSet{cmd.Flags(), cmd.PersistentFlags()} {
				fs.VisitAll(func(f *pflag.Flag) {
					if f.Changed || !v.IsSet(f.Name) {
						return
					}
					if val := fmt.Sprintf("%v", v.Get(f.Name)); val != "" {
						_ = f.Value.Set(val)
					}
				})
			}
		}
	})
}

func registryRootFromEnv() string { return os.Getenv("HSM_REGISTRY") }

func handleError(err error) {
	if err == nil || errors.Is(err, pflag.ErrHelp) {
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %s\n", err)
}
