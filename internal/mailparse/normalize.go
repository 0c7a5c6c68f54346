// Package mailparse turns raw RFC 5322 bytes into the plain-text fields the
// pipeline works with. Nothing in here returns an error: a field that cannot
// be decoded is left empty.
package mailparse

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	netmail "net/mail"
	"strings"
	"time"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	gomail "github.com/emersion/go-message/mail"
	"github.com/jhillyerd/enmime"
	"github.com/vdavid/mailpilot/internal/models"
)

// Normalize decodes raw message bytes. enmime is tried first, then
// go-message, then a bare header/body split.
func Normalize(raw []byte) models.NormalizedMessage {
	for _, parse := range []func([]byte) (models.NormalizedMessage, error){
		fromEnmime,
		fromGoMessage,
		fromHeaderSplit,
	} {
		if n, err := guarded(parse, raw); err == nil {
			return sanitize(n)
		}
	}

	return sanitize(models.NormalizedMessage{Body: string(raw)})
}

// FallbackCorrelationID synthesizes a stable identifier for a message that
// carries no Message-ID header.
func FallbackCorrelationID(mailboxID string, role models.MailboxRole, uid uint32) string {
	return fmt.Sprintf("<%s.%d.%s@mailpilot.invalid>", role, uid, mailboxID)
}

func guarded(parse func([]byte) (models.NormalizedMessage, error), raw []byte) (n models.NormalizedMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parser panicked: %v", r)
		}
	}()
	return parse(raw)
}

func fromEnmime(raw []byte) (models.NormalizedMessage, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return models.NormalizedMessage{}, fmt.Errorf("enmime: %w", err)
	}
	if env == nil {
		return models.NormalizedMessage{}, errors.New("enmime: no envelope")
	}

	n := models.NormalizedMessage{
		Sender:         env.GetHeader("From"),
		Recipient:      env.GetHeader("To"),
		Subject:        env.GetHeader("Subject"),
		Body:           strings.TrimSpace(env.Text),
		HTMLBody:       env.HTML,
		CorrelationID:  strings.TrimSpace(env.GetHeader("Message-ID")),
		HasAttachments: len(env.Attachments) > 0,
		Date:           parseDate(env.GetHeader("Date")),
	}

	if from, err := env.AddressList("From"); err == nil && len(from) > 0 {
		n.SenderAddress = from[0].Address
		n.SenderName = from[0].Name
	}
	if to, err := env.AddressList("To"); err == nil {
		for _, a := range to {
			n.Recipients = append(n.Recipients, a.Address)
		}
	}

	return n, nil
}

func fromGoMessage(raw []byte) (models.NormalizedMessage, error) {
	mr, err := gomail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return models.NormalizedMessage{}, fmt.Errorf("go-message: %w", err)
	}
	defer func() { _ = mr.Close() }()

	h := mr.Header
	n := models.NormalizedMessage{
		Sender:        decodeWords(h.Get("From")),
		Recipient:     decodeWords(h.Get("To")),
		CorrelationID: strings.TrimSpace(h.Get("Message-Id")),
	}
	n.Subject, _ = h.Subject()
	if d, err := h.Date(); err == nil && !d.IsZero() {
		n.Date = &d
	}
	if from, err := h.AddressList("From"); err == nil && len(from) > 0 {
		n.SenderAddress = from[0].Address
		n.SenderName = from[0].Name
	}
	if to, err := h.AddressList("To"); err == nil {
		for _, a := range to {
			n.Recipients = append(n.Recipients, a.Address)
		}
	}

	for {
		part, err := mr.NextPart()
		if err != nil && !message.IsUnknownCharset(err) {
			// io.EOF or a broken part; keep what was decoded so far.
			break
		}

		switch ph := part.Header.(type) {
		case *gomail.InlineHeader:
			contentType, _, _ := ph.ContentType()
			body, _ := io.ReadAll(part.Body)
			switch {
			case contentType == "text/plain" && n.Body == "":
				n.Body = strings.TrimSpace(string(body))
			case contentType == "text/html" && n.HTMLBody == "":
				n.HTMLBody = string(body)
			case strings.HasPrefix(contentType, "text/") && n.Body == "":
				n.Body = strings.TrimSpace(string(body))
			}
		case *gomail.AttachmentHeader:
			n.HasAttachments = true
		}
	}

	return n, nil
}

func fromHeaderSplit(raw []byte) (models.NormalizedMessage, error) {
	msg, err := netmail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return models.NormalizedMessage{}, fmt.Errorf("header split: %w", err)
	}

	body, _ := io.ReadAll(msg.Body)
	n := models.NormalizedMessage{
		Sender:        decodeWords(msg.Header.Get("From")),
		Recipient:     decodeWords(msg.Header.Get("To")),
		Subject:       decodeWords(msg.Header.Get("Subject")),
		Body:          strings.TrimSpace(string(body)),
		CorrelationID: strings.TrimSpace(msg.Header.Get("Message-Id")),
		Date:          parseDate(msg.Header.Get("Date")),
	}
	if addr, err := netmail.ParseAddress(n.Sender); err == nil {
		n.SenderAddress = addr.Address
		n.SenderName = addr.Name
	}

	return n, nil
}

func decodeWords(s string) string {
	dec := &mime.WordDecoder{CharsetReader: message.CharsetReader}
	decoded, err := dec.DecodeHeader(s)
	if err != nil {
		return s
	}
	return decoded
}

func parseDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := netmail.ParseDate(s)
	if err != nil {
		return nil
	}
	return &t
}

func sanitize(n models.NormalizedMessage) models.NormalizedMessage {
	clean := func(s string) string { return strings.ToValidUTF8(s, "") }

	n.Sender = clean(n.Sender)
	n.SenderAddress = clean(n.SenderAddress)
	n.SenderName = clean(n.SenderName)
	n.Recipient = clean(n.Recipient)
	n.Subject = clean(strings.TrimSpace(n.Subject))
	n.Body = clean(n.Body)
	n.HTMLBody = clean(n.HTMLBody)
	n.CorrelationID = clean(n.CorrelationID)
	for i, r := range n.Recipients {
		n.Recipients[i] = clean(r)
	}

	if n.SenderAddress == "" && strings.Contains(n.Sender, "@") {
		n.SenderAddress = strings.Trim(n.Sender, "<> ")
	}

	return n
}
