package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/smtp"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeSMTPClient struct {
	mailFrom string
	rcptTo   []string
	data     bytes.Buffer
	quit     bool
}

func (f *fakeSMTPClient) Mail(from string) error { f.mailFrom = from; return nil }
func (f *fakeSMTPClient) Rcpt(to string) error   { f.rcptTo = append(f.rcptTo, to); return nil }
func (f *fakeSMTPClient) Data() (io.WriteCloser, error) {
	return nopWriteCloser{&f.data}, nil
}
func (f *fakeSMTPClient) Quit() error                     { f.quit = true; return nil }
func (f *fakeSMTPClient) Close() error                    { return nil }
func (f *fakeSMTPClient) StartTLS(*tls.Config) error      { return nil }
func (f *fakeSMTPClient) Auth(smtp.Auth) error            { return nil }
func (f *fakeSMTPClient) Extension(string) (bool, string) { return false, "" }

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func newTestMailer(t *testing.T, cfg SMTPSettings) (*smtpMailer, *fakeSMTPClient) {
	t.Helper()

	client := &fakeSMTPClient{}
	mailer, err := NewSMTPMailer(cfg)
	require.NoError(t, err)

	m := mailer.(*smtpMailer)
	m.dialFn = func(ctx context.Context, cfg SMTPSettings) (net.Conn, smtpClient, error) {
		server, _ := net.Pipe()
		return server, client, nil
	}
	m.authFn = func(smtpClient, SMTPSettings) error { return nil }
	return m, client
}

func TestSendDisabled(t *testing.T) {
	mailer, err := NewSMTPMailer(SMTPSettings{Enabled: false})
	require.NoError(t, err)

	err = mailer.Send(context.Background(), Message{To: "user@example.com"})
	require.ErrorIs(t, err, ErrSMTPDisabled)
}

func TestSendWritesHeadersAndBody(t *testing.T) {
	mailer, client := newTestMailer(t, SMTPSettings{
		Enabled: true,
		Host:    "smtp.example.com",
		Port:    587,
		From:    "noreply@example.com",
	})

	err := mailer.Send(context.Background(), Message{
		To:      "user@example.com",
		Subject: "Reset your password",
		Body:    "Use the link below.",
	})
	require.NoError(t, err)

	require.Equal(t, "noreply@example.com", client.mailFrom)
	require.Equal(t, []string{"user@example.com"}, client.rcptTo)
	require.Contains(t, client.data.String(), "Subject: Reset your password")
	require.Contains(t, client.data.String(), "Use the link below.")
	require.True(t, client.quit)
}

func TestSendRejectsInvalidAddresses(t *testing.T) {
	mailer, _ := newTestMailer(t, SMTPSettings{
		Enabled: true,
		Host:    "smtp.example.com",
		Port:    587,
		From:    "noreply@example.com",
	})

	err := mailer.Send(context.Background(), Message{To: "not an address"})
	require.Error(t, err)

	err = mailer.Send(context.Background(), Message{})
	require.Error(t, err)
}

func TestNewSMTPMailerValidatesConfig(t *testing.T) {
	_, err := NewSMTPMailer(SMTPSettings{Enabled: true})
	require.Error(t, err)

	_, err = NewSMTPMailer(SMTPSettings{Enabled: true, Host: "smtp.example.com"})
	require.Error(t, err)
}
