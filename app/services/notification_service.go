// Package services provides external integrations and technical concerns: gateway, signatures, tokens, notifications
package services

import (
	"fmt"
	"log"
	"net/mail"
	"net/smtp"
	"strings"
	"sync"
	"time"
)

// NotificationService sends donor receipts and campaign notices
type NotificationService interface {
	SendEmail(email, subject, message string) error
}

// EmailProvider delivers one email
type EmailProvider interface {
	SendEmail(email, subject, message string) error
}

type NotificationServiceImpl struct {
	emailProvider EmailProvider
}

func NewNotificationService(emailProvider EmailProvider) NotificationService {
	return &NotificationServiceImpl{emailProvider: emailProvider}
}

// SendEmail sends an email to the specified address
func (s *NotificationServiceImpl) SendEmail(email, subject, message string) error {
	if s.emailProvider == nil {
		return fmt.Errorf("email provider not configured")
	}

	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return fmt.Errorf("invalid email address: %s", email)
	}

	return s.emailProvider.SendEmail(email, subject, message)
}

// MockEmailProvider logs and records emails instead of sending them
type MockEmailProvider struct {
	mu   sync.Mutex
	Sent []SentEmail
}

type SentEmail struct {
	To      string
	Subject string
	Body    string
}

func NewMockEmailProvider() *MockEmailProvider {
	return &MockEmailProvider{}
}

func (p *MockEmailProvider) SendEmail(email, subject, message string) error {
	p.mu.Lock()
	p.Sent = append(p.Sent, SentEmail{To: email, Subject: subject, Body: message})
	p.mu.Unlock()
	log.Printf("Email sent to %s [%s]", email, subject)
	return nil
}

// Count returns the number of recorded emails
func (p *MockEmailProvider) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Sent)
}

type SMTPEmailProvider struct {
	host      string
	port      int
	username  string
	password  string
	fromEmail string
	from      string // header form, with the display name when configured
	retries   int
	backoff   time.Duration
	send      func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPEmailProvider sends through host:port. A failed send is retried up to
// retries more times with a linearly growing pause.
func NewSMTPEmailProvider(host string, port int, username, password, fromEmail, fromName string, retries int) EmailProvider {
	from := fromEmail
	if fromName != "" {
		from = (&mail.Address{Name: fromName, Address: fromEmail}).String()
	}
	if retries < 0 {
		retries = 0
	}
	return &SMTPEmailProvider{
		host:      host,
		port:      port,
		username:  username,
		password:  password,
		from:      from,
		fromEmail: fromEmail,
		retries:   retries,
		backoff:   500 * time.Millisecond,
		send:      smtp.SendMail,
	}
}

func (p *SMTPEmailProvider) SendEmail(email, subject, message string) error {
	var auth smtp.Auth
	if p.username != "" {
		auth = smtp.PlainAuth("", p.username, p.password, p.host)
	}

	addr := fmt.Sprintf("%s:%d", p.host, p.port)
	msg := buildMessage(p.from, email, subject, message)
	var err error
	for attempt := 0; attempt <= p.retries; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * p.backoff)
		}
		if err = p.send(addr, auth, p.fromEmail, []string{email}, msg); err == nil {
			return nil
		}
		log.Printf("smtp send to %s failed (attempt %d/%d): %v", email, attempt+1, p.retries+1, err)
	}
	return fmt.Errorf("smtp send to %s: %w", email, err)
}

func buildMessage(from, to, subject, body string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}
