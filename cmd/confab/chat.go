package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/casualjim/confab"
	"github.com/casualjim/confab/internal/repl"
	"github.com/casualjim/confab/pkg/slogx"
	"github.com/casualjim/confab/store/sqlite"
	"github.com/casualjim/confab/tool"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type chatFlags struct {
	provider string
	model    string
	system   string
	session  string
	stream   bool
	tools    bool
}

func newChatCommand(global *globalFlags) *cobra.Command {
	var flags chatFlags
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive conversation",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd.Context(), global, flags)
		},
	}
	cmd.Flags().StringVarP(&flags.provider, "provider", "p", "", "configured provider, defaults to the configured default")
	cmd.Flags().StringVarP(&flags.model, "model", "m", "", "model, defaults to the provider's configured model")
	cmd.Flags().StringVar(&flags.system, "system", "", "system message for new sessions")
	cmd.Flags().StringVarP(&flags.session, "session", "s", "", "resume the session with this id")
	cmd.Flags().BoolVar(&flags.stream, "stream", true, "stream tokens as they arrive")
	cmd.Flags().BoolVar(&flags.tools, "tools", false, "offer the built-in tools to the model")
	return cmd
}

func runChat(ctx context.Context, global *globalFlags, flags chatFlags) error {
	cfg, err := global.load()
	if err != nil {
		return err
	}
	name := flags.provider
	if name == "" {
		name = cfg.Default
	}
	endpoint, err := cfg.Endpoint(name)
	if err != nil {
		return err
	}
	model := flags.model
	if model == "" {
		model = cfg.Providers[name].Model
	}

	store, err := global.store()
	if err != nil {
		return err
	}
	defer store.Close()

	logger := slog.Default().With(slog.String("provider", name))
	id := uuid.Nil
	var conv *confab.Conversation
	if flags.session != "" {
		if id, err = uuid.Parse(flags.session); err != nil {
			return fmt.Errorf("session id %q: %w", flags.session, err)
		}
		sess, err := store.Load(ctx, id)
		if err != nil {
			return err
		}
		if flags.model == "" {
			model = sess.Model
		}
		sess.Model = model
		if conv, err = sess.Resume(endpoint, confab.WithLogger(logger)); err != nil {
			return err
		}
	} else {
		if conv, err = confab.NewConversation(endpoint, model, confab.WithLogger(logger)); err != nil {
			return err
		}
		if flags.system != "" {
			conv.AppendSystemMessage(flags.system)
		}
	}

	replCfg := repl.Config{
		Stream: flags.stream,
		AfterTurn: func(ctx context.Context, conv *confab.Conversation) error {
			sess := sqlite.SessionOf(id, conv)
			if err := store.Save(ctx, sess); err != nil {
				return err
			}
			if id == uuid.Nil {
				logger.InfoContext(ctx, "session created", slog.String("session", sess.ID.String()))
			}
			id = sess.ID
			return nil
		},
	}
	if flags.tools {
		replCfg.Tools = builtinTools()
	}

	if err := repl.Run(ctx, conv, replCfg); err != nil {
		logger.ErrorContext(ctx, "chat ended", slogx.Error(err))
		return err
	}
	return nil
}

func builtinTools() *tool.Box {
	return tool.NewBox(
		tool.Must(currentTime,
			tool.Name("current_time"),
			tool.Description("Returns the current time in the given IANA time zone, for example Europe/Prague."),
			tool.Parameters("zone"),
		),
	)
}

func currentTime(zone string) (time.Time, error) {
	if zone == "" {
		return time.Now(), nil
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return time.Time{}, err
	}
	return time.Now().In(loc), nil
}
