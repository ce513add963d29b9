// Package repl runs an interactive chat loop on stdin.
package repl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/casualjim/confab"
	"github.com/casualjim/confab/events"
	"github.com/casualjim/confab/internal/msgfmt"
	"github.com/casualjim/confab/pkg/messages"
	"github.com/casualjim/confab/tool"
	"github.com/charmbracelet/glamour"
	"github.com/fatih/color"
)

// maxToolRounds bounds how often one user turn may loop through tool calls.
const maxToolRounds = 8

var glam *glamour.TermRenderer

func init() {
	var err error
	glam, err = glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
	)
	if err != nil {
		panic(err)
	}
}

// Config controls the loop.
type Config struct {
	// Stream prints tokens as they arrive. Otherwise whole answers are rendered as markdown.
	Stream bool
	// Tools resolves function calls. Nil disables tool use.
	Tools *tool.Box
	// AfterTurn runs after every completed user turn, for example to persist the session.
	AfterTurn func(context.Context, *confab.Conversation) error
}

// Run reads user input until EOF or "exit" and answers every line.
func Run(ctx context.Context, conv *confab.Conversation, cfg Config) error {
	return run(ctx, os.Stdin, os.Stdout, conv, cfg)
}

func run(ctx context.Context, in io.Reader, out io.Writer, conv *confab.Conversation, cfg Config) error {
	scanner := bufio.NewScanner(in)
	scanner.Split(bufio.ScanLines)

	console := msgfmt.NewConsole(out, "Assistant")
	var handle func(context.Context, []*messages.FunctionCall) error
	if cfg.Tools != nil {
		if err := conv.UpdateRequestParameters(cfg.Tools.Declare()); err != nil {
			return err
		}
		handle = cfg.Tools.Handle
	}
	h := console.Handler(handle)

	for {
		fmt.Fprintf(out, "%s: ", color.CyanString("User"))
		if !scanner.Scan() {
			fmt.Fprintln(out, "Exiting...")
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if strings.EqualFold(input, "exit") {
			break
		}
		conv.AppendUserInput(input)

		if err := turn(ctx, out, conv, cfg, h); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			console.Error(err)
			continue
		}
		if cfg.AfterTurn != nil {
			if err := cfg.AfterTurn(ctx, conv); err != nil {
				console.Error(err)
			}
		}
		fmt.Fprintln(out)
	}
	return scanner.Err()
}

func turn(ctx context.Context, out io.Writer, conv *confab.Conversation, cfg Config, h *events.Handler) error {
	for range maxToolRounds {
		if cfg.Stream {
			outcome, err := conv.StreamResponseRich(ctx, h)
			if err != nil {
				return err
			}
			if len(outcome.FunctionCalls) == 0 {
				return nil
			}
			continue
		}

		res, err := conv.GetResponseRich(ctx, h)
		if err != nil {
			return err
		}
		if len(res.FunctionCalls()) > 0 {
			continue
		}
		fmt.Fprint(out, color.MagentaString("Assistant")+": ")
		rendered, err := glam.Render(res.Text())
		if err != nil {
			rendered = res.Text()
		}
		fmt.Fprintln(out, rendered)
		return nil
	}
	return fmt.Errorf("gave up after %d tool rounds", maxToolRounds)
}
