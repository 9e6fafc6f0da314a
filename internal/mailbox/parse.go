package mailbox

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	apperrors "alertrelay/pkg/errors"
)

// ParseMessage decodes an RFC 5322 message. The body is the first inline text/plain part,
// falling back to the first inline text/html part. Attachments are ignored.
func ParseMessage(uid UID, raw []byte, captured time.Time) (*RawMessage, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, apperrors.Wrap(fmt.Errorf("reading message %d: %w", uid, err), apperrors.ErrParse)
	}
	defer mr.Close()

	msg := &RawMessage{
		UID:       uid,
		MessageID: strings.TrimSpace(mr.Header.Get("Message-Id")),
		Arrival:   arrivalTime(mr.Header, captured),
	}

	if subject, err := mr.Header.Subject(); err == nil {
		msg.Subject = subject
	} else {
		msg.Subject = mr.Header.Get("Subject")
	}

	if from, err := mr.Header.AddressList("From"); err == nil && len(from) > 0 {
		msg.From = from[0].String()
	} else {
		msg.From = mr.Header.Get("From")
	}

	msg.Body, msg.ContentType = readBody(mr)

	return msg, nil
}

func arrivalTime(h mail.Header, captured time.Time) time.Time {
	if h.Get("Date") == "" {
		return captured.UTC()
	}
	date, err := h.Date()
	if err != nil || date.IsZero() {
		return captured.UTC()
	}
	return date.UTC()
}

func readBody(mr *mail.Reader) (string, string) {
	var plain, html string
	var havePlain, haveHTML bool

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if part == nil {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			break
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}

		contentType, _, _ := h.ContentType()
		if contentType == "" {
			contentType = "text/plain"
		}

		switch {
		case contentType == "text/plain" && !havePlain:
			if body, err := io.ReadAll(part.Body); err == nil {
				plain, havePlain = string(body), true
			}
		case contentType == "text/html" && !haveHTML:
			if body, err := io.ReadAll(part.Body); err == nil {
				html, haveHTML = string(body), true
			}
		}
	}

	switch {
	case havePlain:
		return plain, "text/plain"
	case haveHTML:
		return html, "text/html"
	default:
		return "", ""
	}
}
