package email

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"
)

type Service interface {
	SendOTP(ctx context.Context, to string, code string) error
	SendAppointmentNotice(ctx context.Context, to string, subject string, body string) error
}

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type smtpService struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPService(cfg Config) Service {
	return &smtpService{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

func (s *smtpService) SendOTP(ctx context.Context, to string, code string) error {
	body := fmt.Sprintf("Your login code is %s. It expires in a few minutes.", code)
	return s.send(to, "Your login code", body)
}

func (s *smtpService) SendAppointmentNotice(ctx context.Context, to string, subject string, body string) error {
	return s.send(to, subject, body)
}

func (s *smtpService) send(to, subject, body string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

// NoopService discards all mail; used when SMTP is not configured.
type NoopService struct{}

func (NoopService) SendOTP(ctx context.Context, to string, code string) error { return nil }

func (NoopService) SendAppointmentNotice(ctx context.Context, to string, subject string, body string) error {
	return nil
}
