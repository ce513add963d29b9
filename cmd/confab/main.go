// Command confab chats with any configured provider from the terminal and keeps
// the sessions in a local SQLite database.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/casualjim/confab/config"
	"github.com/casualjim/confab/pkg/slogx"
	"github.com/casualjim/confab/store/sqlite"
	"github.com/spf13/cobra"
)

type globalFlags struct {
	configPath string
	envFiles   []string
	database   string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var flags globalFlags
	root := &cobra.Command{
		Use:           "confab",
		Short:         "Chat with LLM providers through one interface",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", config.DefaultConfigPath, "configuration file (yaml or toml)")
	root.PersistentFlags().StringSliceVar(&flags.envFiles, "env-file", nil, "env files loaded before the configuration")
	root.PersistentFlags().StringVar(&flags.database, "db", "confab.db", "session database")

	root.AddCommand(newChatCommand(&flags), newSessionsCommand(&flags))
	return root
}

// load reads the configuration and installs its logger as the default.
func (f *globalFlags) load() (config.Config, error) {
	cfg, err := config.Load(f.configPath, f.envFiles...)
	if err != nil {
		return config.Config{}, err
	}
	slog.SetDefault(cfg.Log.Logger(os.Stderr).With(slogx.LoggerName("confab")))
	return cfg, nil
}

func (f *globalFlags) store() (*sqlite.Store, error) {
	return sqlite.Open(f.database)
}
