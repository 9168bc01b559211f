package services

import (
	"context"
	"errors"
	"net"
	"net/smtp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"codementor-backend/internal/models"
)

func TestEmailService_DevModeLogsInsteadOfSending(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	svc := NewEmailService(SMTPConfig{FrontendURL: "http://app.test"}, zap.New(core))
	svc.sendMail = func(context.Context, string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("smtp must not be used in dev mode")
		return nil
	}

	err := svc.Send(context.Background(), models.EmailJob{Type: models.EmailPasswordReset, To: "a@example.com", Token: "abc"})
	require.NoError(t, err)

	entries := logs.FilterMessage("dev email").All()
	require.Len(t, entries, 1)
	body := entries[0].ContextMap()["body"].(string)
	assert.Contains(t, body, "http://app.test/reset-password?token=abc")
}

func TestEmailService_SendUsesSMTP(t *testing.T) {
	svc := NewEmailService(SMTPConfig{
		Host: "smtp.test", Port: "2525", User: "u", Pass: "p",
		From: "noreply@codementorx.dev", FrontendURL: "http://app.test",
	}, nil)

	var gotAddr string
	var gotTo []string
	var gotMsg string
	svc.sendMail = func(_ context.Context, addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		return nil
	}

	require.NoError(t, svc.Send(context.Background(), models.EmailJob{Type: models.EmailVerification, To: "b@example.com", Token: "t1"}))
	assert.Equal(t, "smtp.test:2525", gotAddr)
	assert.Equal(t, []string{"b@example.com"}, gotTo)
	assert.Contains(t, gotMsg, "Subject: Verify your CodementorX account")
	assert.Contains(t, gotMsg, "http://app.test/verify-email?token=t1")
}

func TestEmailService_SendErrors(t *testing.T) {
	svc := NewEmailService(SMTPConfig{Host: "smtp.test", Port: "25", User: "u"}, nil)
	svc.sendMail = func(context.Context, string, smtp.Auth, string, []string, []byte) error {
		return errors.New("connection refused")
	}

	err := svc.Send(context.Background(), models.EmailJob{Type: models.EmailPasswordChanged, To: "c@example.com"})
	assert.ErrorContains(t, err, "connection refused")

	err = svc.Send(context.Background(), models.EmailJob{Type: "newsletter", To: "c@example.com"})
	assert.ErrorContains(t, err, "unknown email type")
}

func TestEmailService_StalledServerRespectsDeadline(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	// accept and never send a greeting
	held := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			held <- conn
		}
	}()
	defer func() {
		select {
		case conn := <-held:
			conn.Close()
		default:
		}
	}()

	host, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	svc := NewEmailService(SMTPConfig{Host: host, Port: port, User: "u", Pass: "p", From: "noreply@codementorx.dev"}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	err = svc.Send(ctx, models.EmailJob{Type: models.EmailPasswordChanged, To: "d@example.com"})
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}
