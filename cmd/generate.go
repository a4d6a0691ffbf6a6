package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"bookforge-gateway/internal/client"
	"bookforge-gateway/internal/models"
)

type generateOptions struct {
	server   string
	provider string
	apiKey   string
	model    string
	task     string
	prompt   string
	title    string
	words    int
	quiet    bool
}

func newGenerateCmd() *cobra.Command {
	opts := &generateOptions{}

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Run one generation against a gateway",
		Long: `Send one generation request to a running gateway and print the result.

Chunks are printed as they arrive unless --quiet is set. For --type toc the
answer is parsed as a table of contents, repaired if it was cut off, and
printed as JSON.`,
		Example: `  bookforge generate --provider anthropic --model claude-3-5-sonnet-latest \
    --type toc --prompt "A field guide to urban birds"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGenerate(cmd, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.server, "server", "http://127.0.0.1:8080", "gateway base URL")
	flags.StringVar(&opts.provider, "provider", "", "backend name: anthropic, openai or gemini")
	flags.StringVar(&opts.apiKey, "api-key", "", "provider API key (the gateway falls back to its own when empty)")
	flags.StringVar(&opts.model, "model", "", "model id")
	flags.StringVar(&opts.task, "type", "content", "task kind: toc, chapter or content")
	flags.StringVar(&opts.prompt, "prompt", "", "prompt text, or - to read stdin")
	flags.StringVar(&opts.title, "title", "", "book title passed as context")
	flags.IntVar(&opts.words, "words", 0, "target word count passed as context")
	flags.BoolVarP(&opts.quiet, "quiet", "q", false, "print only the final result")
	_ = cmd.MarkFlagRequired("provider")
	_ = cmd.MarkFlagRequired("model")
	_ = cmd.MarkFlagRequired("prompt")
	return cmd
}

func runGenerate(cmd *cobra.Command, opts *generateOptions) error {
	promptText, err := readPrompt(opts.prompt, cmd.InOrStdin())
	if err != nil {
		return err
	}

	req := models.GenerationRequest{
		Provider: models.Provider(strings.ToLower(opts.provider)),
		APIKey:   opts.apiKey,
		Model:    opts.model,
		Task:     models.ParseTaskKind(opts.task),
		Prompt:   promptText,
	}
	if opts.title != "" || opts.words > 0 {
		req.Context = &models.GenerationContext{Title: opts.title, WordCountTarget: opts.words}
	}

	c, err := client.New(opts.server)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	structured := req.Task.ExpectsStructuredOutput()

	var onChunk func(string)
	if !opts.quiet && !structured {
		onChunk = func(text string) { fmt.Fprint(out, text) }
	}

	result, err := c.Generate(cmd.Context(), req, onChunk)
	if err != nil {
		return err
	}

	if result.Metadata.StopReason == models.StopReasonStreamEnded {
		fmt.Fprintln(cmd.ErrOrStderr(), "warning: the stream ended before the model finished; output may be incomplete")
	}

	if !structured {
		if opts.quiet {
			fmt.Fprint(out, result.Content)
		}
		fmt.Fprintln(out)
		fmt.Fprintf(cmd.ErrOrStderr(), "stop=%s words=%d in=%d out=%d\n",
			result.Metadata.StopReason, result.Metadata.WordCount,
			result.Metadata.InputTokens, result.Metadata.OutputTokens)
		return nil
	}

	chapters, repaired, err := result.Outline()
	if err != nil {
		return err
	}
	if repaired {
		fmt.Fprintln(cmd.ErrOrStderr(), "note: the outline was truncated and has been repaired")
	}
	return writeJSON(out, chapters)
}

func readPrompt(flag string, stdin io.Reader) (string, error) {
	if flag != "-" {
		return flag, nil
	}
	raw, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read prompt from stdin: %w", err)
	}
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return "", errors.New("prompt from stdin is empty")
	}
	return text, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
