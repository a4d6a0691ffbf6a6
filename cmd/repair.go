package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"bookforge-gateway/internal/repair"
)

func newRepairCmd() *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "repair [file]",
		Short: "Recover a truncated table of contents",
		Long: `Parse a model answer as a table of contents, closing it when the answer
was cut off mid-generation. Reads stdin when no file is given.`,
		Example: `  bookforge repair answer.txt
  pbpaste | bookforge repair --raw`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}

			in, err := openInput(path, cmd.InOrStdin())
			if err != nil {
				return err
			}
			defer in.Close()

			text, err := io.ReadAll(in)
			if err != nil {
				return fmt.Errorf("read input: %w", err)
			}

			if raw {
				fixed, err := repair.Repair(string(text))
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), fixed)
				return err
			}

			chapters, repaired, err := repair.ParseChapters(string(text))
			if err != nil {
				return err
			}
			if repaired {
				fmt.Fprintln(cmd.ErrOrStderr(), "note: input was truncated and has been repaired")
			}
			return writeJSON(cmd.OutOrStdout(), chapters)
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "print the repaired JSON text without validating it as an outline")
	return cmd
}

// openInput returns stdin for "-" or an empty path, otherwise the named file.
func openInput(path string, stdin io.Reader) (io.ReadCloser, error) {
	if path == "" || path == "-" {
		return io.NopCloser(stdin), nil
	}
	return os.Open(path)
}
