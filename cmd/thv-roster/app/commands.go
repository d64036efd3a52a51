// Package app wires the thv-roster command line.
package app

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/stacklok/toolhive-roster/internal/config"
	"github.com/stacklok/toolhive-roster/internal/logger"
	"github.com/stacklok/toolhive-roster/internal/reconcile"
	"github.com/stacklok/toolhive-roster/internal/roster"
	"github.com/stacklok/toolhive-roster/internal/store"
	"github.com/stacklok/toolhive-roster/internal/versions"
)

// state is shared by every subcommand of one root command
type state struct {
	v     *viper.Viper
	cfg   *config.Config
	store *store.FileStore
}

// NewRootCmd builds the thv-roster command tree
func NewRootCmd() *cobra.Command {
	st := &state{v: config.NewOverrides()}

	rootCmd := &cobra.Command{
		Use:               "thv-roster",
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		Short:             "Track a persistent roster of connected clients",
		Long: `thv-roster records every client it has seen, which of them are connected right
now, and serves an ordered view of the roster for presentation layers.`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return st.load(cmd)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Path to a YAML configuration file")
	flags.String(config.KeyRegistryFile, "", "Roster file (default $XDG_DATA_HOME/thv-roster/headsets.config)")
	flags.String(config.KeyEncoding, "", "Roster file encoding: json or yaml (default from extension)")
	flags.Bool(config.KeyLock, true, "Lock the roster file while updating it")
	flags.Int(config.KeySaveRetries, store.DefaultSaveRetries, "Retries for a failed roster write")
	flags.String(config.KeyLogLevel, "", "Log level: debug, info, warn or error")
	flags.Bool(config.KeyLogJSON, false, "Log in JSON")
	bindFlags(st.v, flags,
		config.KeyRegistryFile, config.KeyEncoding, config.KeyLock,
		config.KeySaveRetries, config.KeyLogLevel, config.KeyLogJSON,
	)

	rootCmd.AddCommand(
		newConnectCmd(st),
		newDisconnectCmd(st),
		newSyncCmd(st),
		newListCmd(st),
		newIngestCmd(st),
		newServeCmd(st),
		newVersionCmd(),
	)
	return rootCmd
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet, keys ...string) {
	for _, key := range keys {
		if err := v.BindPFlag(key, flags.Lookup(key)); err != nil {
			logger.Fatalf("Failed to bind %s flag: %v", key, err)
		}
	}
}

func (st *state) load(cmd *cobra.Command) error {
	if cmd.Name() == "version" {
		return nil
	}

	opts := []config.Option{config.WithOverrides(st.v)}
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		opts = append(opts, config.WithConfigPath(path))
	}
	cfg, err := config.LoadConfig(opts...)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := logger.Initialize(cfg.GetLogLevel(), cfg.Log.JSON); err != nil {
		return err
	}
	s, err := cfg.NewStore()
	if err != nil {
		return err
	}

	st.cfg = cfg
	st.store = s
	logger.Debugf("Using roster file %s", s.Path())
	return nil
}

func (st *state) engine(opts ...reconcile.Option) *reconcile.Engine {
	return reconcile.New(st.store, opts...)
}

// report prints an outcome and turns a rejected input into an error
func report(cmd *cobra.Command, out reconcile.Outcome) error {
	if out.Rejected {
		return roster.ErrEmptyID
	}
	if !out.Persisted {
		cmd.PrintErrln("warning: roster could not be saved; see log for details")
	}
	fmt.Fprintln(cmd.OutOrStdout(), out.String())
	return nil
}

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := versions.GetVersionInfo()
			format, _ := cmd.Flags().GetString("format")
			if format == "json" {
				output, err := json.MarshalIndent(info, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to format version info: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(output))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "thv-roster "+info.String())
			return nil
		},
	}
	cmd.Flags().String("format", "", "Output format (json)")
	return cmd
}
