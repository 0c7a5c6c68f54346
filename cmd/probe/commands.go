package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/vdavid/mailpilot/internal/imap"
	"github.com/vdavid/mailpilot/internal/mailparse"
	"github.com/vdavid/mailpilot/internal/models"
	"github.com/vdavid/mailpilot/internal/smtp"
)

func newFoldersCmd(opts *probeOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "folders",
		Short: "Log in and show which folders the monitor would poll",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.mailbox()
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()

			session, err := imap.NewDialer(imap.DialerOptions{UseTLS: !opts.insecure, Timeout: opts.timeout}).Dial(ctx, cfg)
			if err != nil {
				return err
			}
			defer session.Close()

			out := cmd.OutOrStdout()
			for _, role := range models.Roles {
				folder, err := session.ResolveFolder(role, cfg.SentFolder)
				switch {
				case errors.Is(err, imap.ErrFolderNotFound):
					fmt.Fprintf(out, "%-6s (not found)\n", role)
				case err != nil:
					return err
				default:
					fmt.Fprintf(out, "%-6s %s\n", role, folder)
				}
			}
			return nil
		},
	}
}

func newFetchCmd(opts *probeOptions) *cobra.Command {
	var (
		role   string
		limit  int
		unseen bool
	)

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch the newest messages of a folder and print their normalized summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			mailboxRole := models.MailboxRole(role)
			if mailboxRole != models.RoleInbox && mailboxRole != models.RoleSent {
				return fmt.Errorf("--folder must be inbox or sent, got %q", role)
			}
			cfg, err := opts.mailbox()
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()

			session, err := imap.NewDialer(imap.DialerOptions{UseTLS: !opts.insecure, Timeout: opts.timeout}).Dial(ctx, cfg)
			if err != nil {
				return err
			}
			defer session.Close()

			folder, err := session.ResolveFolder(mailboxRole, cfg.SentFolder)
			if err != nil {
				return err
			}

			filter := imap.SearchAll
			if unseen {
				filter = imap.SearchUnseen
			}
			uids, err := session.ListMessageIDs(folder, filter, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %d message(s)\n", folder, len(uids))
			for _, uid := range uids {
				fetched, err := session.FetchMessage(uid)
				if err != nil {
					fmt.Fprintf(out, "uid %d: %v\n", uid, err)
					continue
				}
				n := mailparse.Normalize(fetched.Raw)
				if n.CorrelationID == "" {
					n.CorrelationID = mailparse.FallbackCorrelationID(cfg.ID, mailboxRole, uid)
				}
				fmt.Fprintf(out, "uid %d\n  id:      %s\n  from:    %s\n  subject: %s\n  body:    %s\n",
					uid, n.CorrelationID, n.Sender, n.Subject, preview(n.Body, 80))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&role, "folder", string(models.RoleInbox), "Folder role: inbox or sent")
	cmd.Flags().IntVar(&limit, "limit", 5, "Maximum number of messages")
	cmd.Flags().BoolVar(&unseen, "unseen", false, "Only unseen messages")
	return cmd
}

func newSendCmd(opts *probeOptions) *cobra.Command {
	var to, subject, body, inReplyTo string

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a test message through the mailbox's SMTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if to == "" {
				return fmt.Errorf("--to is required")
			}
			cfg, err := opts.mailbox()
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()

			id, err := smtp.NewSender(smtp.SenderOptions{UseTLS: !opts.insecure, Timeout: opts.timeout}).Send(ctx, cfg, &smtp.OutgoingMessage{
				From:      cfg.EmailAddress,
				To:        strings.Split(to, ","),
				Subject:   subject,
				Body:      body,
				InReplyTo: inReplyTo,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "sent %s\n", id)
			return nil
		},
	}

	cmd.Flags().StringVar(&to, "to", "", "Comma-separated recipients")
	cmd.Flags().StringVar(&subject, "subject", "MailPilot probe", "Subject")
	cmd.Flags().StringVar(&body, "body", "This is a test message.", "Body text")
	cmd.Flags().StringVar(&inReplyTo, "in-reply-to", "", "Message-ID to thread the message under")
	return cmd
}

func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
