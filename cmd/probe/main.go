// Command probe checks a mailbox's IMAP and SMTP settings from the command
// line, using the same code paths as the server.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/vdavid/mailpilot/internal/models"
)

const passwordEnv = "MAILPILOT_PROBE_PASSWORD"

type probeOptions struct {
	email      string
	username   string
	imapHost   string
	imapPort   int
	smtpHost   string
	smtpPort   int
	sentFolder string
	insecure   bool
	timeout    time.Duration
}

// mailbox builds the config the dialer and sender expect. The password only
// comes from the environment so it never lands in shell history.
func (o *probeOptions) mailbox() (*models.MailboxConfig, error) {
	if o.email == "" {
		return nil, fmt.Errorf("--email is required")
	}
	password := os.Getenv(passwordEnv)
	if password == "" {
		return nil, fmt.Errorf("%s is required", passwordEnv)
	}
	return &models.MailboxConfig{
		ID:           "probe",
		EmailAddress: o.email,
		Username:     o.username,
		Password:     password,
		IMAPHost:     o.imapHost,
		IMAPPort:     o.imapPort,
		SMTPHost:     o.smtpHost,
		SMTPPort:     o.smtpPort,
		SentFolder:   o.sentFolder,
		Enabled:      true,
	}, nil
}

func (o *probeOptions) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), o.timeout)
}

func newRootCmd() *cobra.Command {
	opts := &probeOptions{}

	root := &cobra.Command{
		Use:           "probe",
		Short:         "Check a mailbox's IMAP and SMTP settings",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			_ = godotenv.Load()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.email, "email", "", "Mailbox address")
	flags.StringVar(&opts.username, "username", "", "Login name when it differs from the address")
	flags.StringVar(&opts.imapHost, "imap-host", models.DefaultIMAPHost, "IMAP server host")
	flags.IntVar(&opts.imapPort, "imap-port", models.DefaultIMAPPort, "IMAP server port")
	flags.StringVar(&opts.smtpHost, "smtp-host", models.DefaultSMTPHost, "SMTP server host")
	flags.IntVar(&opts.smtpPort, "smtp-port", models.DefaultSMTPPort, "SMTP server port")
	flags.StringVar(&opts.sentFolder, "sent-folder", "", "Sent folder name (default: auto-detect)")
	flags.BoolVar(&opts.insecure, "insecure", false, "Use plain TCP instead of TLS")
	flags.DurationVar(&opts.timeout, "timeout", 30*time.Second, "Overall timeout")

	root.AddCommand(newFoldersCmd(opts), newFetchCmd(opts), newSendCmd(opts))
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "probe: %v\n", err)
		os.Exit(1)
	}
}
