package handlers

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"

	"squeegee/pkg/config"
	"squeegee/pkg/logging"
)

// EmailService sends transactional email over SMTP
type EmailService struct {
	host     string
	port     string
	username string
	password string
	from     string
	logger   logging.Logger
}

// NewEmailService builds an email service from SMTP_* env vars, or nil when
// no SMTP host is configured.
func NewEmailService(log logging.Logger) *EmailService {
	host := config.GetEnv("SMTP_HOST", "")
	if host == "" {
		log.Warn("SMTP_HOST not set, email delivery disabled")
		return nil
	}

	return &EmailService{
		host:     host,
		port:     config.GetEnv("SMTP_PORT", "587"),
		username: config.GetEnv("SMTP_USERNAME", ""),
		password: config.GetEnv("SMTP_PASSWORD", ""),
		from:     config.GetEnv("SMTP_FROM", "noreply@squeegee.app"),
		logger:   log,
	}
}

var paymentLinkTemplate = template.Must(template.New("payment_link").Parse(`
<html>
<body style="font-family: sans-serif; color: #333;">
  <h2>Your window cleaning quote</h2>
  <p>Hi {{.CustomerName}},</p>
  <p>Thanks for your business. You can pay securely online using the link below:</p>
  <p><a href="{{.PaymentLink}}" style="display:inline-block;padding:12px 24px;background:#1a73e8;color:#fff;text-decoration:none;border-radius:4px;">Pay now</a></p>
  <p>If the button does not work, copy this address into your browser:<br>{{.PaymentLink}}</p>
</body>
</html>`))

var receiptTemplate = template.Must(template.New("receipt").Parse(`
<html>
<body style="font-family: sans-serif; color: #333;">
  <h2>Payment received</h2>
  <p>Hi {{.CustomerName}},</p>
  <p>We've received your payment of &pound;{{.AmountPounds}}. Thank you!</p>
</body>
</html>`))

func (es *EmailService) send(to, subject string, body []byte) error {
	msg := bytes.Buffer{}
	fmt.Fprintf(&msg, "From: %s\r\n", es.from)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
	msg.Write(body)

	addr := es.host + ":" + es.port
	var auth smtp.Auth
	if es.username != "" {
		auth = smtp.PlainAuth("", es.username, es.password, es.host)
	}

	if err := smtp.SendMail(addr, auth, es.from, []string{to}, msg.Bytes()); err != nil {
		return fmt.Errorf("smtp send failed: %w", err)
	}

	es.logger.WithFields(logging.Fields{
		"to":      to,
		"subject": subject,
	}).Info("Email sent")
	return nil
}

// SendPaymentLink emails a customer their hosted payment link
func (es *EmailService) SendPaymentLink(to, customerName, paymentLink string) error {
	var body bytes.Buffer
	err := paymentLinkTemplate.Execute(&body, map[string]string{
		"CustomerName": customerName,
		"PaymentLink":  paymentLink,
	})
	if err != nil {
		return fmt.Errorf("failed to render payment link email: %w", err)
	}
	return es.send(to, "Your window cleaning payment link", body.Bytes())
}

// SendReceipt emails a customer confirmation of a received payment
func (es *EmailService) SendReceipt(to, customerName string, amountPence int64) error {
	var body bytes.Buffer
	err := receiptTemplate.Execute(&body, map[string]string{
		"CustomerName": customerName,
		"AmountPounds": fmt.Sprintf("%.2f", float64(amountPence)/100),
	})
	if err != nil {
		return fmt.Errorf("failed to render receipt email: %w", err)
	}
	return es.send(to, "Payment received", body.Bytes())
}
