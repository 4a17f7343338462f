package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"rabbitwatch/internal/app"
	"rabbitwatch/internal/config"
	"rabbitwatch/internal/logger"
	"rabbitwatch/internal/models"
)

func rootCmd() *cobra.Command {
	var logLevel string
	root := &cobra.Command{
		Use:   "rabbitwatch",
		Short: "Poll the RabbitMQ management API and send alerts to a webhook",
		Long: `rabbitwatch polls the RabbitMQ management API on a fixed interval, evaluates
queue and node health rules, and posts deduplicated notifications with
recovery messages to a Slack-compatible webhook.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMonitor(cmd)
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (overrides LOG_LEVEL)")

	root.AddCommand(
		&cobra.Command{
			Use:          "run",
			Short:        "Start monitoring (default)",
			SilenceUsage: true,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runMonitor(cmd)
			},
		},
		checkCmd(),
		testWebhookCmd(),
	)
	return root
}

// loadConfig reads the environment, letting --log-level win over LOG_LEVEL.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	v := config.New()
	if f := cmd.Flags().Lookup("log-level"); f != nil && f.Changed {
		if err := v.BindPFlag("LOG_LEVEL", f); err != nil {
			return config.Config{}, err
		}
	}
	cfg, err := config.FromViper(v)
	if err != nil {
		return config.Config{}, fmt.Errorf("configuration: %w", err)
	}
	logger.Init(cfg.LogLevel)
	return cfg, nil
}

func runMonitor(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := logger.WithComponent("main")

	a, err := app.New(cfg)
	if err != nil {
		log.Error().Err(err).Msg("init failed")
		return err
	}

	if err := a.Run(cmd.Context()); err != nil {
		log.Error().Err(err).Msg("shutdown with error")
		return err
	}
	return nil
}

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "check",
		Short:        "Poll once, print findings and exit without notifying",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			findings, checkErr := app.Check(cmd.Context(), cfg)
			printFindings(cmd, cfg, findings)
			return checkErr
		},
	}
}

func printFindings(cmd *cobra.Command, cfg config.Config, findings []models.Finding) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "RabbitMQ %s: %d finding(s)\n", cfg.Broker().Address(), len(findings))
	if len(findings) == 0 {
		return
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEVERITY\tCONDITION\tSUBJECT\tSUMMARY")
	for _, f := range findings {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", f.Severity, f.Kind, f.Subject, f.Summary)
	}
	_ = tw.Flush()
}

func testWebhookCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "test-webhook",
		Short:        "Send one test message to the configured webhook",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.WebhookURL == "" {
				return fmt.Errorf("SLACK_WEBHOOK_URL is not set")
			}
			addr := cfg.Broker().Address()
			d := app.NewDispatcher(cfg, nil, addr)
			res := d.Deliver(cmd.Context(), models.Intent{
				ID:   uuid.NewString(),
				Type: models.IntentStartup,
				At:   time.Now(),
				Finding: models.Finding{
					Kind:     models.KindMonitorStarted,
					Subject:  models.SubjectSystem,
					Severity: models.SeverityInfo,
					Summary:  fmt.Sprintf("Test message from rabbitwatch monitoring %s. If you can read this, the webhook works.", addr),
				},
			})
			if res.Sent == 0 {
				return fmt.Errorf("test message was not delivered")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "test message sent")
			return nil
		},
	}
}

