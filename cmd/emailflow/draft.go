package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/foxzi/emailflow/internal/app"
)

var draftFields fieldFlags

var draftCmd = &cobra.Command{
	Use:   "draft",
	Short: "Draft commands",
}

var draftShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the stored draft",
	RunE:  runDraftShow,
}

var draftSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Update fields of the stored draft",
	Long: `Load the stored draft, apply the fields given as flags and save it.

Example:
  emailflow draft save --to user@example.com --subject "Launch" --template "Product Launch"`,
	RunE: runDraftSave,
}

func init() {
	draftFields.register(draftSaveCmd)

	draftCmd.AddCommand(draftShowCmd, draftSaveCmd)
	rootCmd.AddCommand(draftCmd)
}

func runDraftShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	application, err := app.NewWithLogger(cfg, version, cliLogger(cfg))
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	defer application.Close()

	return printJSON(application.Composer().Fields())
}

func runDraftSave(cmd *cobra.Command, args []string) error {
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
	if err := draftFields.apply(cmd, c); err != nil {
		return err
	}
	if err := c.SaveDraft(); err != nil {
		return err
	}

	fmt.Println(c.StatusMessage())
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
