package services

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"go.uber.org/zap"

	"codementor-backend/internal/models"
)

var ErrUnknownEmailType = errors.New("unknown email type")

// defaultSMTPTimeout bounds a delivery when the caller sets no deadline.
const defaultSMTPTimeout = 30 * time.Second

type SMTPConfig struct {
	Host        string
	Port        string
	User        string
	Pass        string
	From        string
	FrontendURL string
}

type sendMailFunc func(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error

type EmailService struct {
	cfg      SMTPConfig
	devMode  bool
	logger   *zap.Logger
	sendMail sendMailFunc
}

func NewEmailService(cfg SMTPConfig, logger *zap.Logger) *EmailService {
	if logger == nil {
		logger = zap.NewNop()
	}
	devMode := cfg.Host == "" || cfg.User == ""
	if devMode {
		logger.Warn("email service running in dev mode, messages are logged instead of sent")
	}
	return &EmailService{
		cfg:      cfg,
		devMode:  devMode,
		logger:   logger,
		sendMail: deliverSMTP,
	}
}

// Send delivers a queued job. Unknown job types are an error so the worker
// drops them instead of retrying forever.
func (s *EmailService) Send(ctx context.Context, job models.EmailJob) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	switch job.Type {
	case models.EmailVerification:
		return s.SendVerificationEmail(ctx, job.To, job.Token)
	case models.EmailPasswordReset:
		return s.SendPasswordResetEmail(ctx, job.To, job.Token)
	case models.EmailPasswordChanged:
		return s.SendPasswordChangedEmail(ctx, job.To)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownEmailType, job.Type)
	}
}

func (s *EmailService) SendVerificationEmail(ctx context.Context, to, token string) error {
	verifyURL := fmt.Sprintf("%s/verify-email?token=%s", s.cfg.FrontendURL, token)
	body := renderEmail(
		"Verify Your Email",
		"Welcome to CodementorX! Confirm your email address to finish setting up your account.",
		"Verify Email",
		verifyURL,
		"This link expires in 24 hours.",
	)
	return s.sendHTML(ctx, to, "Verify your CodementorX account", body)
}

func (s *EmailService) SendPasswordResetEmail(ctx context.Context, to, token string) error {
	resetURL := fmt.Sprintf("%s/reset-password?token=%s", s.cfg.FrontendURL, token)
	body := renderEmail(
		"Reset Your Password",
		"We received a request to reset your password. Click the button below to choose a new one.",
		"Reset Password",
		resetURL,
		"If you didn't request this, you can safely ignore this email. This link expires in 1 hour.",
	)
	return s.sendHTML(ctx, to, "Reset your CodementorX password", body)
}

func (s *EmailService) SendPasswordChangedEmail(ctx context.Context, to string) error {
	body := renderEmail(
		"Your Password Was Changed",
		"The password for your CodementorX account was just changed.",
		"Sign In",
		s.cfg.FrontendURL+"/login",
		"If this wasn't you, reset your password immediately.",
	)
	return s.sendHTML(ctx, to, "Your CodementorX password was changed", body)
}

func renderEmail(heading, intro, buttonText, link, footer string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"></head>
<body style="font-family: 'Segoe UI', Arial, sans-serif; margin: 0; padding: 0; background-color: #f8fafc;">
  <div style="max-width: 480px; margin: 40px auto; background: white; border-radius: 12px; box-shadow: 0 4px 24px rgba(0,0,0,0.08); overflow: hidden;">
    <div style="background: linear-gradient(135deg, #0ea5e9 0%%, #6366f1 100%%); padding: 32px; text-align: center;">
      <h1 style="color: white; margin: 0; font-size: 24px; font-weight: 700;">CodementorX</h1>
      <p style="color: rgba(255,255,255,0.85); margin: 8px 0 0; font-size: 14px;">Your AI Coding Mentor</p>
    </div>
    <div style="padding: 32px;">
      <h2 style="margin: 0 0 16px; font-size: 20px; color: #1e293b;">%s</h2>
      <p style="color: #64748b; font-size: 14px; line-height: 1.6; margin: 0 0 24px;">%s</p>
      <a href="%s" style="display: inline-block; background: #0ea5e9; color: white; text-decoration: none; padding: 12px 32px; border-radius: 8px; font-weight: 600; font-size: 14px;">%s</a>
      <p style="color: #94a3b8; font-size: 12px; margin: 24px 0 0; line-height: 1.5;">
        If the button doesn't work, copy and paste this link:<br>
        <a href="%s" style="color: #0ea5e9;">%s</a>
      </p>
      <p style="color: #94a3b8; font-size: 12px; margin: 16px 0 0;">%s</p>
    </div>
  </div>
</body>
</html>`, heading, intro, link, buttonText, link, link, footer)
}

func (s *EmailService) sendHTML(ctx context.Context, to, subject, htmlBody string) error {
	if s.devMode {
		s.logger.Info("dev email",
			zap.String("to", to),
			zap.String("subject", subject),
			zap.String("body", htmlBody),
		)
		return nil
	}

	headers := []string{
		fmt.Sprintf("From: %s", s.cfg.From),
		fmt.Sprintf("To: %s", to),
		fmt.Sprintf("Subject: %s", subject),
		"MIME-Version: 1.0",
		"Content-Type: text/html; charset=UTF-8",
	}

	message := strings.Join(headers, "\r\n") + "\r\n\r\n" + htmlBody

	auth := smtp.PlainAuth("", s.cfg.User, s.cfg.Pass, s.cfg.Host)
	addr := fmt.Sprintf("%s:%s", s.cfg.Host, s.cfg.Port)

	if err := s.sendMail(ctx, addr, auth, s.cfg.From, []string{to}, []byte(message)); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", to, err)
	}

	s.logger.Info("email sent", zap.String("to", to), zap.String("subject", subject))
	return nil
}

// deliverSMTP is smtp.SendMail bound to ctx: the connection deadline follows
// the context and cancelling it closes the connection.
func deliverSMTP(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultSMTPTimeout)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return err
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	c, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return smtpErr(ctx, err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: host}); err != nil {
			return smtpErr(ctx, err)
		}
	}
	if a != nil {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(a); err != nil {
				return smtpErr(ctx, err)
			}
		}
	}
	if err := c.Mail(from); err != nil {
		return smtpErr(ctx, err)
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return smtpErr(ctx, err)
		}
	}
	w, err := c.Data()
	if err != nil {
		return smtpErr(ctx, err)
	}
	if _, err := w.Write(msg); err != nil {
		return smtpErr(ctx, err)
	}
	if err := w.Close(); err != nil {
		return smtpErr(ctx, err)
	}
	return smtpErr(ctx, c.Quit())
}

func smtpErr(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %v", ctxErr, err)
	}
	return err
}
