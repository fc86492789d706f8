package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/deepseek-chatbot/internal/config"
	"github.com/zhouzirui/deepseek-chatbot/internal/service/conversation"
)

type rootOptions struct {
	stream      bool
	interactive bool
	maxTokens   int
	system      string
	preset      string
	markdown    bool
	verbose     bool
}

// TUIRunner starts the full-screen chat on an opened conversation.
type TUIRunner func(ctx context.Context, conv *conversation.Orchestrator) error

// NewRootCommand builds the deepseek command tree. runTUI may be nil, in
// which case the tui subcommand is not registered.
func NewRootCommand(app *App, runTUI TUIRunner) *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "deepseek [prompt]",
		Short: "Chat with DeepSeek-V3 from the terminal",
		Long: `Send a prompt to DeepSeek-V3, or start an interactive session.

Authentication uses GITHUB_TOKEN, then AZURE_KEY, from the environment or a .env file.`,
		Example: `  deepseek "What is the capital of France?"
  deepseek --stream "Explain goroutines"
  deepseek -i --system "You are a helpful assistant specializing in geography."`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if !opts.verbose {
				log.SetOutput(io.Discard)
			}
			for _, notice := range app.Notices {
				log.Print(notice)
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.maxTokens <= 0 {
				return fmt.Errorf("--max-tokens must be positive, got %d", opts.maxTokens)
			}
			system, err := app.systemPrompt(opts.system, opts.preset)
			if err != nil {
				return err
			}

			switch {
			case opts.interactive:
				return app.runInteractive(cmd.Context(), system, opts.interactiveStream(cmd), opts.maxTokens)
			case len(args) == 1 && strings.TrimSpace(args[0]) != "":
				return app.runPrompt(cmd.Context(), args[0], system, opts)
			default:
				return cmd.Help()
			}
		},
	}

	flags := cmd.PersistentFlags()
	flags.BoolVar(&opts.stream, "stream", app.Defaults.Stream, "stream the response as it is generated")
	flags.IntVar(&opts.maxTokens, "max-tokens", defaultMaxTokens(app.Defaults), "upper bound on generated tokens")
	flags.StringVar(&opts.system, "system", "", "system prompt that seeds the conversation")
	flags.StringVar(&opts.preset, "preset", "", "named system prompt preset (default, geography, concise, coder)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "print diagnostic logs to stderr")
	cmd.Flags().BoolVarP(&opts.interactive, "interactive", "i", false, "interactive mode")
	cmd.Flags().BoolVar(&opts.markdown, "markdown", false, "render non-streamed replies as markdown")

	if runTUI != nil {
		cmd.AddCommand(&cobra.Command{
			Use:   "tui",
			Short: "Start the full-screen chat interface",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				if opts.maxTokens <= 0 {
					return fmt.Errorf("--max-tokens must be positive, got %d", opts.maxTokens)
				}
				system, err := app.systemPrompt(opts.system, opts.preset)
				if err != nil {
					return err
				}
				conv, err := app.open(cmd.Context(), system, true, conversation.Options{
					Stream:    opts.interactiveStream(cmd),
					MaxTokens: opts.maxTokens,
				})
				if err != nil {
					return err
				}
				return runTUI(cmd.Context(), conv)
			},
		})
	}

	return cmd
}

// interactiveStream is the stream mode of the interactive surfaces: on
// unless --stream was set explicitly.
func (o *rootOptions) interactiveStream(cmd *cobra.Command) bool {
	if cmd.Flags().Changed("stream") {
		return o.stream
	}
	return true
}

func defaultMaxTokens(defaults conversation.Options) int {
	if defaults.MaxTokens > 0 {
		return defaults.MaxTokens
	}
	return config.DefaultMaxTokens
}

// runPrompt answers a single prompt.
func (a *App) runPrompt(ctx context.Context, prompt, system string, opts *rootOptions) error {
	conv, err := a.open(ctx, system, false, conversation.Options{Stream: opts.stream, MaxTokens: opts.maxTokens})
	if err != nil {
		return err
	}

	submitOpts := []conversation.SubmitOption{
		conversation.WithStream(opts.stream),
		conversation.WithMaxTokens(opts.maxTokens),
	}
	if opts.stream {
		submitOpts = append(submitOpts, conversation.WithProgress(func(delta, _ string) {
			fmt.Fprint(a.Out, delta)
		}))
	}

	reply, err := conv.Submit(ctx, prompt, submitOpts...)
	if err != nil {
		fmt.Fprintf(a.Out, "Error communicating with DeepSeek model: %v\n", err)
		return ErrExit
	}

	if opts.stream {
		fmt.Fprintln(a.Out)
	} else {
		a.printReply(reply.Turn.Content, opts.markdown && !reply.Failed())
	}

	if reply.Failed() {
		if opts.stream {
			fmt.Fprintln(a.Out, reply.Turn.Content)
		}
		if a.reportFailure(reply.Err) {
			return ErrExit
		}
	}
	return nil
}

func (a *App) printReply(content string, markdown bool) {
	if markdown {
		renderer, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(80),
		)
		if err == nil {
			if out, err := renderer.Render(content); err == nil {
				fmt.Fprint(a.Out, out)
				return
			}
		}
	}
	fmt.Fprintln(a.Out, content)
}

// runInteractive keeps one conversation open until the user leaves.
func (a *App) runInteractive(ctx context.Context, system string, stream bool, maxTokens int) error {
	conv, err := a.open(ctx, system, true, conversation.Options{Stream: stream, MaxTokens: maxTokens})
	if err != nil {
		return err
	}

	lines := a.NewLineReader()
	defer lines.Close()

	fmt.Fprintln(a.Out, bannerTitle)
	fmt.Fprintln(a.Out, strings.Repeat("-", 50))

	for {
		fmt.Fprintln(a.Out)
		input, err := lines.Prompt("You: ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Fprintln(a.Out, "\nExiting...")
				return nil
			}
			return fmt.Errorf("read input: %w", err)
		}

		switch strings.ToLower(strings.TrimSpace(input)) {
		case "exit", "quit":
			return nil
		case "":
			continue
		}
		lines.AppendHistory(input)

		fmt.Fprint(a.Out, "\n"+labelStyle.Render("DeepSeek:")+" ")
		reply, err := conv.Submit(ctx, input,
			conversation.WithStream(stream),
			conversation.WithMaxTokens(maxTokens),
			conversation.WithProgress(func(delta, _ string) {
				fmt.Fprint(a.Out, delta)
			}),
		)
		if err != nil {
			fmt.Fprintln(a.Out)
			a.reportFailure(err)
			continue
		}

		switch {
		case reply.Failed():
			fmt.Fprintln(a.Out)
			fmt.Fprintln(a.Out, reply.Turn.Content)
		case stream:
			fmt.Fprintln(a.Out)
		default:
			fmt.Fprintln(a.Out, reply.Turn.Content)
		}

		if ctx.Err() != nil {
			fmt.Fprintln(a.Out, "\nExiting...")
			return nil
		}
		if reply.Failed() && a.reportFailure(reply.Err) {
			return ErrExit
		}
	}
}

// Execute runs the command tree and maps failures to an exit status.
func Execute(ctx context.Context, cmd *cobra.Command) int {
	if err := cmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, ErrExit) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		return 1
	}
	return 0
}
