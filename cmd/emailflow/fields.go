package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/foxzi/emailflow/internal/compose"
)

// fieldFlags are the composition fields settable from the command line
type fieldFlags struct {
	to          string
	template    string
	subject     string
	body        string
	bodyFile    string
	trackOpens  bool
	trackClicks bool
}

func (f *fieldFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.to, "to", "", "Recipient email address")
	cmd.Flags().StringVar(&f.template, "template", "", "Template name (e.g. \"Weekly Newsletter\")")
	cmd.Flags().StringVar(&f.subject, "subject", "", "Subject line")
	cmd.Flags().StringVar(&f.body, "body", "", "Email body")
	cmd.Flags().StringVar(&f.bodyFile, "body-file", "", "Read the email body from a file")
	cmd.Flags().BoolVar(&f.trackOpens, "track-opens", false, "Track opens")
	cmd.Flags().BoolVar(&f.trackClicks, "track-clicks", true, "Track clicks")
	cmd.MarkFlagsMutuallyExclusive("body", "body-file")
}

// apply sets every field whose flag was given, leaving the rest as loaded
func (f *fieldFlags) apply(cmd *cobra.Command, c *compose.Composer) error {
	set := func(flag, field, value string) error {
		if !cmd.Flags().Changed(flag) {
			return nil
		}
		if err := c.UpdateField(field, value); err != nil {
			return fmt.Errorf("--%s: %w", flag, err)
		}
		return nil
	}

	if cmd.Flags().Changed("body-file") {
		data, err := os.ReadFile(f.bodyFile)
		if err != nil {
			return fmt.Errorf("failed to read body file: %w", err)
		}
		if err := c.UpdateField(compose.FieldBody, string(data)); err != nil {
			return err
		}
	}

	for _, s := range []struct{ flag, field, value string }{
		{"to", compose.FieldRecipient, f.to},
		{"template", compose.FieldTemplate, f.template},
		{"subject", compose.FieldSubject, f.subject},
		{"body", compose.FieldBody, f.body},
		{"track-opens", compose.FieldTrackOpens, strconv.FormatBool(f.trackOpens)},
		{"track-clicks", compose.FieldTrackClicks, strconv.FormatBool(f.trackClicks)},
	} {
		if err := set(s.flag, s.field, s.value); err != nil {
			return err
		}
	}
	return nil
}
