package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

var (
	initOutput      string
	initBackend     string
	initWebsite     string
	initSender      string
	initEnvironment string
	initDataDir     string
	initListen      string
	initMetrics     bool
	initYes         bool
	initForce       bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize Emailflow configuration",
	Long: `Create an Emailflow configuration file.

Missing values are prompted for unless --yes is given.

Examples:
  # Interactive mode
  emailflow init

  # Non-interactive
  emailflow init --yes --backend https://workflows.example.com --environment production -o emailflow.yaml`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringVarP(&initOutput, "output", "o", "config.yaml", "Output configuration file path")
	initCmd.Flags().StringVar(&initBackend, "backend", "http://localhost:8000", "Backend workflow service base URL")
	initCmd.Flags().StringVar(&initWebsite, "website", "https://medbuddyafrica.com", "Website base URL for referral links")
	initCmd.Flags().StringVar(&initSender, "sender", "Medbuddy <info@medbuddyafrica.com>", "Sender identity")
	initCmd.Flags().StringVar(&initEnvironment, "environment", "staging", "Environment tag sent with every submission")
	initCmd.Flags().StringVar(&initDataDir, "data-dir", "/var/lib/emailflow", "Data directory for the draft file")
	initCmd.Flags().StringVar(&initListen, "listen", ":8080", "API listen address")
	initCmd.Flags().BoolVar(&initMetrics, "metrics", false, "Enable the Prometheus metrics server")
	initCmd.Flags().BoolVarP(&initYes, "yes", "y", false, "Do not prompt; use flag values")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing config file")

	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(initOutput); err == nil && !initForce {
		return fmt.Errorf("config file %s already exists (use --force to overwrite)", initOutput)
	}

	if !initYes {
		reader := bufio.NewReader(os.Stdin)

		fmt.Println("Emailflow Configuration Wizard")
		fmt.Println("==============================")
		fmt.Println()

		initBackend = prompt(reader, "Backend base URL", initBackend)
		initWebsite = prompt(reader, "Website URL", initWebsite)
		initSender = prompt(reader, "Sender", initSender)
		initEnvironment = prompt(reader, "Environment", initEnvironment)
		initDataDir = prompt(reader, "Data directory", initDataDir)
		fmt.Println()
	}

	if dir := filepath.Dir(initOutput); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	if err := os.WriteFile(initOutput, []byte(generateConfig()), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Printf("Configuration written to %s\n\n", initOutput)
	fmt.Println("Next steps:")
	fmt.Printf("  emailflow config validate -c %s\n", initOutput)
	fmt.Printf("  emailflow serve -c %s\n", initOutput)
	return nil
}

func prompt(reader *bufio.Reader, question, defaultValue string) string {
	if defaultValue != "" {
		fmt.Printf("%s [%s]: ", question, defaultValue)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultValue
	}
	return input
}

func generateConfig() string {
	return fmt.Sprintf(`# Emailflow configuration
# Values can be overridden with EMAILFLOW_* environment variables or a .env file.

server:
  listen_addr: %q
  read_timeout: 30s
  write_timeout: 60s

backend:
  base_url: %q
  timeout: 30s

relay:
  # Defaults to this server's own /api/send-email
  # endpoint: "http://localhost:8080/api/send-email"
  timeout: 30s

composer:
  sender: %q
  website_url: %q
  environment: %q
  referral_path: "/app/referrals"

draft:
  path: %q
  key: "emailflow-draft"

notifications:
  default_lifetime: 4500ms

logging:
  level: "info"
  format: "json"

metrics:
  enabled: %t
  listen_addr: ":9090"
  path: "/metrics"
`, initListen, initBackend, initSender, initWebsite, initEnvironment,
		filepath.Join(initDataDir, "draft.db"), initMetrics)
}
