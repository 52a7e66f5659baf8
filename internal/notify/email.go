package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/riskfoundry/kestrel/internal/domain"
)

// EmailChannel sends alert emails over plain SMTP. With no SMTP host
// configured it reports ErrChannelUnconfigured and the dispatcher skips
// email methods entirely.
type EmailChannel struct {
	cfg domain.NotifierConfig

	// sendMail is swapped in tests.
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailChannel creates the email channel from notifier settings.
func NewEmailChannel(cfg domain.NotifierConfig) *EmailChannel {
	return &EmailChannel{cfg: cfg, sendMail: smtp.SendMail}
}

func (c *EmailChannel) Type() string {
	return domain.ChannelEmail
}

func (c *EmailChannel) Send(ctx context.Context, method domain.NotificationMethod, rule *domain.AlertRule, instance *domain.AlertInstance) error {
	if c.cfg.SMTPHost == "" {
		return ErrChannelUnconfigured
	}
	if len(method.Config.To) == 0 {
		return fmt.Errorf("email method has no recipients")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	subject := method.Config.Subject
	if subject == "" {
		subject = fmt.Sprintf("Alert triggered: %s", rule.Name)
	}

	var auth smtp.Auth
	if c.cfg.SMTPUser != "" {
		auth = smtp.PlainAuth("", c.cfg.SMTPUser, c.cfg.SMTPPassword, c.cfg.SMTPHost)
	}

	addr := fmt.Sprintf("%s:%d", c.cfg.SMTPHost, c.cfg.SMTPPort)
	msg := buildEmail(c.cfg.FromAddress, method.Config.To, subject, rule, instance)

	if err := c.sendMail(addr, auth, c.cfg.FromAddress, method.Config.To, msg); err != nil {
		return fmt.Errorf("smtp send failed: %w", err)
	}
	return nil
}

func buildEmail(from string, to []string, subject string, rule *domain.AlertRule, instance *domain.AlertInstance) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")

	fmt.Fprintf(&b, "Alert rule %q triggered.\r\n\r\n", rule.Name)
	if rule.Description != "" {
		fmt.Fprintf(&b, "%s\r\n\r\n", rule.Description)
	}
	fmt.Fprintf(&b, "Condition: %s\r\n", instance.TriggerCondition)
	fmt.Fprintf(&b, "Current value: %s\r\n", instance.TriggerValue)
	fmt.Fprintf(&b, "Triggered at: %s\r\n", instance.CreatedAt.Format("2006-01-02 15:04:05 UTC"))
	fmt.Fprintf(&b, "Instance: %s\r\n", instance.ID)
	return []byte(b.String())
}
