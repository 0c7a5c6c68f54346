package smtp

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	gomail "github.com/emersion/go-message/mail"
)

// OutgoingMessage is a plain-text message ready to be composed.
type OutgoingMessage struct {
	From     string
	FromName string
	To       []string
	Subject  string
	Body     string
	// InReplyTo is the correlation id of the message being answered. When
	// set, it is written to both In-Reply-To and References.
	InReplyTo string
}

// Compose renders msg as RFC 5322 bytes and returns them with the generated
// Message-ID in angle-bracket form.
func Compose(msg *OutgoingMessage, now time.Time) ([]byte, string, error) {
	if msg.From == "" {
		return nil, "", fmt.Errorf("sender address is required")
	}
	if len(msg.To) == 0 {
		return nil, "", fmt.Errorf("at least one recipient is required")
	}

	var h gomail.Header
	h.SetDate(now)
	h.SetAddressList("From", []*gomail.Address{{Name: msg.FromName, Address: msg.From}})

	to := make([]*gomail.Address, 0, len(msg.To))
	for _, addr := range msg.To {
		to = append(to, &gomail.Address{Address: addr})
	}
	h.SetAddressList("To", to)
	h.SetSubject(msg.Subject)

	if err := h.GenerateMessageIDWithHostname(domainOf(msg.From)); err != nil {
		return nil, "", fmt.Errorf("failed to generate message id: %w", err)
	}

	if id := bareMessageID(msg.InReplyTo); id != "" {
		h.SetMsgIDList("In-Reply-To", []string{id})
		h.SetMsgIDList("References", []string{id})
	}

	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})

	var buf bytes.Buffer
	w, err := gomail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create message writer: %w", err)
	}
	if _, err := w.Write([]byte(msg.Body)); err != nil {
		return nil, "", fmt.Errorf("failed to write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finish message: %w", err)
	}

	id, err := h.MessageID()
	if err != nil {
		return nil, "", fmt.Errorf("failed to read generated message id: %w", err)
	}

	return buf.Bytes(), "<" + id + ">", nil
}

// ReplySubject prefers the generated subject and otherwise prefixes the
// original with "Re: " once.
func ReplySubject(original, generated string) string {
	if s := strings.TrimSpace(generated); s != "" {
		return s
	}
	original = strings.TrimSpace(original)
	if len(original) >= 3 && strings.EqualFold(original[:3], "re:") {
		return original
	}
	return "Re: " + original
}

func bareMessageID(id string) string {
	return strings.Trim(strings.TrimSpace(id), "<>")
}

func domainOf(address string) string {
	if i := strings.LastIndex(address, "@"); i >= 0 && i < len(address)-1 {
		return address[i+1:]
	}
	return "localhost"
}
