package notification

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"sort"
	"strconv"
	"strings"
	"text/template"
)

// Mail — готовое к отправке письмо.
type Mail struct {
	From     string
	To       []string
	Subject  string
	Template string
	Context  map[string]string
}

// Sender отправляет письма.
type Sender interface {
	Send(ctx context.Context, mail Mail) error
}

// SMTPConfig — параметры SMTPSender.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPSender отправляет письма через SMTP.
type SMTPSender struct {
	cfg    SMTPConfig
	logger *slog.Logger

	// sendMail подменяется в тестах.
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPSender создаёт SMTPSender.
func NewSMTPSender(cfg SMTPConfig, logger *slog.Logger) *SMTPSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &SMTPSender{
		cfg:      cfg,
		logger:   logger,
		sendMail: smtp.SendMail,
	}
}

// Send отправляет письмо. net/smtp не принимает context,
// поэтому отправка идёт в горутине, а ожидание прерывается по ctx.
func (s *SMTPSender) Send(ctx context.Context, mail Mail) error {
	if mail.From == "" {
		mail.From = s.cfg.From
	}

	body, err := renderMessage(mail)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSend, err)
	}

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))

	done := make(chan error, 1)
	go func() {
		done <- s.sendMail(addr, auth, mail.From, mail.To, body)
	}()

	select {
	case err := <-done:
		if err != nil {
			s.logger.Error("error while sending email", "to", mail.To, "template", mail.Template, "error", err)
			return fmt.Errorf("%w: %w", ErrSend, err)
		}
		s.logger.Info("email sent", "to", mail.To, "template", mail.Template)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrSend, ctx.Err())
	}
}

// LogSender только пишет письмо в лог (SMTP не настроен).
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender создаёт LogSender.
func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

// Send логирует письмо.
func (l *LogSender) Send(_ context.Context, mail Mail) error {
	l.logger.Info("email would be sent",
		"to", mail.To,
		"subject", mail.Subject,
		"template", mail.Template,
	)
	return nil
}

// Тексты писем. Ключ — имя шаблона.
var mailTemplates = template.Must(template.New("mail").Parse(`
{{- define "signup-confirmation-email-template" -}}
Hello {{ index . "name" }},

Please confirm your account: {{ index . "verificationLink" }}
{{- end }}
{{- define "account-verification-email-template" -}}
Hello {{ index . "name" }},

Your account has been verified.
{{- end }}
{{- define "reset-password-email-template" -}}
Hello {{ index . "name" }},

Your password reset code is {{ index . "otp" }}.
{{- end }}
`))

// renderMessage собирает RFC 822 сообщение из заголовков и тела шаблона.
func renderMessage(mail Mail) ([]byte, error) {
	var text bytes.Buffer
	if t := mailTemplates.Lookup(mail.Template); t != nil {
		if err := t.Execute(&text, mail.Context); err != nil {
			return nil, fmt.Errorf("render %s: %w", mail.Template, err)
		}
	} else {
		keys := make([]string, 0, len(mail.Context))
		for k := range mail.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&text, "%s: %s\n", k, mail.Context[k])
		}
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", mail.From)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(mail.To, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", mail.Subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	msg.Write(text.Bytes())
	msg.WriteString("\r\n")

	return msg.Bytes(), nil
}
