package notification

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
	"text/template"
	"time"

	"github.com/smukkama/flood-monitor/internal/protocol"
	"github.com/smukkama/flood-monitor/pkg/config"
)

var templates = template.Must(template.New("alerts").Funcs(template.FuncMap{
	"pct": func(v float64) string { return fmt.Sprintf("%.1f%%", v) },
	"ts":  func(t time.Time) string { return t.Format("2006-01-02 15:04:05 MST") },
}).Parse(`
{{define "raised"}}
Flood Alert Raised
==================

Camera: {{.CameraName}} ({{.CameraID}})
Level: {{.Level}}
Flood confidence: {{pct .Confidence}}
Mean flooded probability: {{pct .MeanFlooded}}
{{- if .Rising}}
Water level trend: RISING
{{- end}}
Detected at: {{ts .ObservedAt}}

{{if eq .Level "FLOODED"}}Flooding has been confirmed at this camera. Please dispatch a field team.{{else}}Early signs of flooding were detected at this camera. Please keep it under watch.{{end}}

---
Flood Monitor Notification System
{{end}}

{{define "changed"}}
Flood Alert Changed
===================

Camera: {{.CameraName}} ({{.CameraID}})
Level: {{.PreviousLevel}} -> {{.Level}}
Flood confidence: {{pct .Confidence}}
Mean flooded probability: {{pct .MeanFlooded}}
Changed at: {{ts .ObservedAt}}

---
Flood Monitor Notification System
{{end}}

{{define "cleared"}}
Flood Alert Cleared
===================

Camera: {{.CameraName}} ({{.CameraID}})
Previous level: {{.PreviousLevel}}
Alert started: {{ts .Since}}
Cleared at: {{ts .ObservedAt}}

The camera no longer shows signs of flooding.

---
Flood Monitor Notification System
{{end}}
`))

// EmailNotifier sends email notifications
type EmailNotifier struct {
	config *config.SMTPConfig
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailNotifier creates a new email notifier
func NewEmailNotifier(cfg *config.SMTPConfig) *EmailNotifier {
	return &EmailNotifier{config: cfg, send: smtp.SendMail}
}

// Render builds the subject and body of an alert email
func Render(n *protocol.AlertNotification) (string, string, error) {
	name := n.CameraName
	if name == "" {
		name = n.CameraID
	}

	var subject, tmpl string
	switch n.Type {
	case protocol.AlertTypeRaised:
		subject = fmt.Sprintf("🚨 Flood alert %s - %s", n.Level, name)
		tmpl = "raised"
	case protocol.AlertTypeChanged:
		subject = fmt.Sprintf("⚠️ Flood alert now %s - %s", n.Level, name)
		tmpl = "changed"
	case protocol.AlertTypeCleared:
		subject = fmt.Sprintf("✅ Flood alert cleared - %s", name)
		tmpl = "cleared"
	default:
		return "", "", fmt.Errorf("unknown notification type: %s", n.Type)
	}

	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, tmpl, n); err != nil {
		return "", "", fmt.Errorf("failed to render email template: %w", err)
	}

	return subject, strings.TrimSpace(buf.String()) + "\n", nil
}

// SendAlertNotification sends an email for an alert notification
func (e *EmailNotifier) SendAlertNotification(n *protocol.AlertNotification) error {
	subject, body, err := Render(n)
	if err != nil {
		return err
	}
	return e.sendEmail(subject, body)
}

func (e *EmailNotifier) sendEmail(subject, body string) error {
	if e.config.Username == "" || e.config.Password == "" {
		slog.Info("SMTP not configured, skipping email", "subject", subject, "body", body)
		return nil
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", e.config.From)
	fmt.Fprintf(&msg, "To: %s\r\n", e.config.To)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	auth := smtp.PlainAuth("", e.config.Username, e.config.Password, e.config.Host)
	addr := fmt.Sprintf("%s:%d", e.config.Host, e.config.Port)
	if err := e.send(addr, auth, e.config.From, []string{e.config.To}, []byte(msg.String())); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	slog.Info("email sent", "subject", subject, "to", e.config.To)
	return nil
}

// TestConnection tests the SMTP connection
func (e *EmailNotifier) TestConnection() error {
	if e.config.Username == "" {
		return fmt.Errorf("SMTP not configured")
	}

	addr := fmt.Sprintf("%s:%d", e.config.Host, e.config.Port)
	client, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer client.Close()

	return nil
}
