package sink

import (
	"bytes"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// MailSender delivers one message. It has the signature of smtp.SendMail.
type MailSender func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

const defaultSMTPPort = "25"

// SMTPHandler mails every record it receives.
type SMTPHandler struct {
	base

	addr    string
	from    string
	to      []string
	subject string
	auth    smtp.Auth
	send    MailSender
}

// NewSMTPHandler creates a mail handler. mailHost may carry a port; port 25
// is assumed otherwise. Credentials are optional.
func NewSMTPHandler(mailHost, from string, to []string, subject, user, password string, send MailSender) *SMTPHandler {
	addr := mailHost
	if _, _, err := net.SplitHostPort(mailHost); err != nil {
		addr = net.JoinHostPort(mailHost, defaultSMTPPort)
	}
	if send == nil {
		send = smtp.SendMail
	}

	h := &SMTPHandler{
		base:    base{name: KindSMTP},
		addr:    addr,
		from:    from,
		to:      append([]string(nil), to...),
		subject: subject,
		send:    send,
	}
	if user != "" {
		host, _, _ := net.SplitHostPort(addr)
		h.auth = smtp.PlainAuth("", user, password, host)
	}
	return h
}

// Fire implements logrus.Hook.
func (h *SMTPHandler) Fire(entry *logrus.Entry) error {
	line, err := h.format(entry)
	if err != nil {
		return err
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", h.from)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(h.to, ","))
	fmt.Fprintf(&msg, "Subject: %s\r\n", h.subject)
	fmt.Fprintf(&msg, "Date: %s\r\n", entry.Time.Format(time.RFC1123Z))
	msg.WriteString("\r\n")
	msg.Write(line)

	return h.send(h.addr, h.auth, h.from, h.to, msg.Bytes())
}

// Close is a no-op; each record opens its own connection.
func (h *SMTPHandler) Close() error {
	return nil
}
