package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/foxzi/emailflow/internal/app"
	"github.com/foxzi/emailflow/internal/relay"
)

var (
	sendFields fieldFlags
	sendDirect bool
	sendSave   bool
	sendDryRun bool
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Submit the composition",
	Long: `Submit the stored draft, with any fields given as flags applied on top.

By default the submission goes to the relay endpoint of a running
"emailflow serve". With --direct it is posted straight to the backend.

Examples:
  emailflow send --to user@example.com --subject "Hello" --body "**Hi** there"
  emailflow send --direct --template "Weekly Newsletter" --body-file news.md
  emailflow send --dry-run`,
	RunE: runSend,
}

func init() {
	sendFields.register(sendCmd)
	sendCmd.Flags().BoolVar(&sendDirect, "direct", false, "Post to the backend instead of the relay endpoint")
	sendCmd.Flags().BoolVar(&sendSave, "save", false, "Save the composition as the draft before sending")
	sendCmd.Flags().BoolVar(&sendDryRun, "dry-run", false, "Print the request instead of sending it")

	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if sendDirect {
		cfg.Relay.Endpoint = strings.TrimRight(cfg.Backend.BaseURL, "/") + relay.SendMailPath
	}

	application, err := app.NewWithLogger(cfg, version, cliLogger(cfg))
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	defer application.Close()

	c := application.Composer()
	if err := sendFields.apply(cmd, c); err != nil {
		return err
	}

	if sendSave {
		if err := c.SaveDraft(); err != nil {
			return err
		}
	}

	if sendDryRun {
		return printJSON(c.BuildRequest())
	}

	fmt.Printf("Sending to %s via %s\n", strings.TrimSpace(c.Fields().Recipient), cfg.Relay.Endpoint)

	submitErr := c.Submit(context.Background())

	for _, n := range application.Notifications().List() {
		fmt.Printf("[%s] %s: %s\n", n.Kind, n.Title, n.Message)
	}
	fmt.Println(c.StatusMessage())

	return submitErr
}
