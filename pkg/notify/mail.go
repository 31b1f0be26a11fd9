// Package notify sends job completion emails.
package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"text/template"
	"time"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/auscope/vgljobs/pkg/jobstore"
)

// ErrNoRecipient is returned for jobs without an email address.
var ErrNoRecipient = errors.New("job has no email address")

const defaultBody = `Dear {{.User}},

Your VGL job "{{.Name}}" (id {{.ID}}) has finished with status {{.Status}}.
{{- if .Description}}

Description: {{.Description}}
{{- end}}
{{- if .SeriesID}}
Series:      {{.SeriesID}}
{{- end}}
{{- if .ProcessDate}}
Processed:   {{.ProcessDate}}
{{- end}}
{{- if .OutputBucket}}
Outputs:     {{.OutputLocation}}
{{- end}}
{{- if .PortalURL}}

View the job at {{.PortalURL}}
{{- end}}

This is an automated message from the VGL portal.
`

// Config configures the SMTP sender.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string

	// StartTLS upgrades the connection when the server offers it.
	StartTLS bool

	// PortalURL is linked from the body when set.
	PortalURL string

	// BodyTemplate overrides the default text/template body.
	BodyTemplate string

	Timeout time.Duration
}

// Message is a composed email.
type Message struct {
	From    string
	To      string
	Subject string
	Body    string
}

// msg converts m into a plain text go-mail message.
func (m *Message) msg() (*mail.Msg, error) {
	out := mail.NewMsg(mail.WithEncoding(mail.NoEncoding))
	if err := out.From(m.From); err != nil {
		return nil, fmt.Errorf("from address: %w", err)
	}
	if err := out.To(m.To); err != nil {
		return nil, fmt.Errorf("to address: %w", err)
	}
	out.Subject(m.Subject)
	out.SetBodyString(mail.TypeTextPlain, m.Body)
	return out, nil
}

// SMTPSender delivers completion emails over SMTP.
type SMTPSender struct {
	cfg    Config
	body   *template.Template
	logger *zap.Logger
	dial   mail.DialContextFunc
}

// NewSMTPSender validates cfg and parses the body template.
func NewSMTPSender(cfg Config, logger *zap.Logger) (*SMTPSender, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, fmt.Errorf("notify: smtp host is required")
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, fmt.Errorf("notify: from address is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 25
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	src := cfg.BodyTemplate
	if src == "" {
		src = defaultBody
	}
	body, err := template.New("body").Option("missingkey=error").Parse(src)
	if err != nil {
		return nil, fmt.Errorf("notify: parse body template: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &net.Dialer{Timeout: cfg.Timeout}
	return &SMTPSender{
		cfg:    cfg,
		body:   body,
		logger: logger,
		dial:   d.DialContext,
	}, nil
}

type bodyData struct {
	ID             int64
	Name           string
	Description    string
	User           string
	SeriesID       int64
	Status         string
	ProcessDate    string
	OutputBucket   string
	OutputLocation string
	PortalURL      string
}

// Compose builds the completion email for job.
func (s *SMTPSender) Compose(job *jobstore.Job) (*Message, error) {
	if job == nil || strings.TrimSpace(job.EmailAddress) == "" {
		return nil, ErrNoRecipient
	}
	data := bodyData{
		ID:           job.ID,
		Name:         job.Name,
		Description:  job.Description,
		User:         job.User,
		SeriesID:     job.SeriesID,
		Status:       job.Status,
		OutputBucket: job.OutputBucket,
		PortalURL:    s.cfg.PortalURL,
	}
	if data.User == "" {
		data.User = job.EmailAddress
	}
	if job.ProcessDate != nil {
		data.ProcessDate = job.ProcessDate.UTC().Format(time.RFC1123)
	}
	if job.OutputBucket != "" {
		data.OutputLocation = strings.TrimRight(job.OutputBucket+"/"+strings.Trim(job.OutputBaseKey, "/"), "/")
	}

	var body bytes.Buffer
	if err := s.body.Execute(&body, data); err != nil {
		return nil, fmt.Errorf("notify: render body: %w", err)
	}
	return &Message{
		From:    s.cfg.From,
		To:      job.EmailAddress,
		Subject: fmt.Sprintf("VGL Job (%s)", job.Name),
		Body:    body.String(),
	}, nil
}

// SendMail emails the job owner that the job finished.
func (s *SMTPSender) SendMail(ctx context.Context, job *jobstore.Job) error {
	msg, err := s.Compose(job)
	if err != nil {
		return err
	}
	if err := s.deliver(ctx, msg); err != nil {
		return fmt.Errorf("notify: send to %s: %w", msg.To, err)
	}
	s.logger.Debug("completion email sent", zap.Int64("job_id", job.ID), zap.String("to", msg.To))
	return nil
}

// clientOptions maps cfg onto go-mail client options. STARTTLS is
// opportunistic; PLAIN auth is used only when a username is configured.
func (s *SMTPSender) clientOptions() []mail.Option {
	policy := mail.NoTLS
	if s.cfg.StartTLS {
		policy = mail.TLSOpportunistic
	}
	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
		mail.WithTimeout(s.cfg.Timeout),
		mail.WithDialContextFunc(s.dial),
		mail.WithTLSPolicy(policy),
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}
	return opts
}

func (s *SMTPSender) deliver(ctx context.Context, msg *Message) error {
	m, err := msg.msg()
	if err != nil {
		return err
	}
	client, err := mail.NewClient(s.cfg.Host, s.clientOptions()...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	return client.DialAndSendWithContext(ctx, m)
}
