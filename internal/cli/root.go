package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ahmad-rian/muncak-id-pusher-sub000/internal/chunkstore"
	"github.com/ahmad-rian/muncak-id-pusher-sub000/internal/config"
)

const (
	envPrefix = "MUNCAK"

	chunkDirKey = "chunk-dir"
	dryRunKey   = "dry-run"
	allKey      = "all"
	hoursKey    = "hours"
	streamKey   = "stream"
)

// app carries the settings shared by every subcommand.
type app struct {
	v       *viper.Viper
	cfgFile string
	out     io.Writer
}

// NewRootCommand builds the chunkctl command tree writing its output to out.
func NewRootCommand(out io.Writer) *cobra.Command {
	a := &app{v: viper.New(), out: out}

	root := &cobra.Command{
		Use:           "chunkctl",
		Short:         "Maintenance tool for the live chunk store",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.initConfig()
		},
	}
	root.SetOut(out)

	defaults := config.Load()
	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (yaml, json or toml)")
	root.PersistentFlags().String(chunkDirKey, defaults.Chunks.Dir, "root directory of the chunk store")
	a.v.BindPFlag(chunkDirKey, root.PersistentFlags().Lookup(chunkDirKey))
	a.v.SetDefault(chunkDirKey, defaults.Chunks.Dir)

	root.AddCommand(newCleanupCommand(a), newStatusCommand(a))
	return root
}

// Execute runs chunkctl with the process arguments.
func Execute() {
	config.LoadEnvFile()
	if err := NewRootCommand(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// initConfig layers the optional config file and MUNCAK_* variables under the flags.
func (a *app) initConfig() error {
	a.v.SetEnvPrefix(envPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	if a.cfgFile == "" {
		return nil
	}
	a.v.SetConfigFile(a.cfgFile)
	if err := a.v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

func (a *app) store() (*chunkstore.Store, error) {
	dir := a.v.GetString(chunkDirKey)
	store, err := chunkstore.New(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open chunk store %s: %w", dir, err)
	}
	return store, nil
}
