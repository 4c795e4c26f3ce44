package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/foxzi/emailflow/internal/app"
	"github.com/foxzi/emailflow/internal/richtext"
)

var (
	formatKind  string
	formatStart int
	formatEnd   int
	formatText  string
	formatDraft bool
)

var formatCmd = &cobra.Command{
	Use:   "format",
	Short: "Insert markup around a selection",
	Long: `Wrap the selection [start, end) of a text in markup and print the result.
Offsets count characters. The cursor position is printed to stderr.

The text comes from --text, or stdin. With --draft the stored draft body is
formatted and saved instead.

Kinds: bold, italic, underline, list, link, code

Examples:
  emailflow format --kind bold --start 6 --end 11 --text "hello world"
  emailflow format --kind list --draft --start 0 --end 100`,
	RunE: runFormat,
}

func init() {
	formatCmd.Flags().StringVar(&formatKind, "kind", "", "Formatting kind (required)")
	formatCmd.Flags().IntVar(&formatStart, "start", 0, "Selection start")
	formatCmd.Flags().IntVar(&formatEnd, "end", 0, "Selection end")
	formatCmd.Flags().StringVar(&formatText, "text", "", "Text to format (default: stdin)")
	formatCmd.Flags().BoolVar(&formatDraft, "draft", false, "Format the stored draft body")
	formatCmd.MarkFlagRequired("kind")
	formatCmd.MarkFlagsMutuallyExclusive("text", "draft")

	rootCmd.AddCommand(formatCmd)
}

func runFormat(cmd *cobra.Command, args []string) error {
	kind, err := richtext.ParseKind(formatKind)
	if err != nil {
		return err
	}
	sel := richtext.Selection{Start: formatStart, End: formatEnd}

	if formatDraft {
		return formatDraftBody(cmd, kind, sel)
	}

	text := formatText
	if !cmd.Flags().Changed("text") {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		text = string(data)
	}

	res, err := richtext.Apply(kind, text, sel)
	if err != nil {
		return err
	}

	fmt.Fprint(cmd.OutOrStdout(), res.Text)
	fmt.Fprintf(cmd.ErrOrStderr(), "\ncursor: %d\n", res.Cursor.Start)
	return nil
}

func formatDraftBody(cmd *cobra.Command, kind richtext.Kind, sel richtext.Selection) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	application, err := app.NewWithLogger(cfg, version, cliLogger(cfg))
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	defer application.Close()

	c := application.Composer()
	res, err := c.Format(kind, sel)
	if err != nil {
		return err
	}
	if err := c.SaveDraft(); err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), res.Text)
	fmt.Fprintf(cmd.ErrOrStderr(), "cursor: %d\n", res.Cursor.Start)
	return nil
}
