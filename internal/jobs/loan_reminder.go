// Package jobs holds background work that runs alongside the HTTP server.
//
// loan_reminder.go implements LoanReminderJob, which runs on a cron schedule,
// emails borrowers whose loans fall due within the warning window and refreshes
// the loans_overdue gauge. Reminder state is persisted in loans.reminder_sent_at
// so each loan is reminded at most once across restarts. The job only reads loans
// and stamps reminder_sent_at; seat counts are never touched here.
package jobs

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"net"
	"net/smtp"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/seatdesk/seatdesk/internal/config"
	"github.com/seatdesk/seatdesk/internal/db/models"
	"github.com/seatdesk/seatdesk/internal/db/repositories"
	"github.com/seatdesk/seatdesk/internal/telemetry"
)

// ReminderStore is the slice of the loan repository the reminder job needs.
type ReminderStore interface {
	FindDueForReminder(ctx context.Context, cutoff time.Time) ([]*models.LoanDetail, error)
	MarkReminderSent(ctx context.Context, loanID string, at time.Time) error
	Counts(ctx context.Context, now, since time.Time) (*repositories.LoanCounts, error)
}

// Mailer delivers a single plain-text message.
type Mailer interface {
	Send(to, subject, body string) error
}

// LoanReminderJob emails borrowers ahead of their due date.
type LoanReminderJob struct {
	store  ReminderStore
	mailer Mailer
	cfg    config.LoanReminderConfig
	now    func() time.Time

	mu   sync.Mutex
	cron *cron.Cron
}

// NewLoanReminderJob creates a reminder job. A zero WarningDays falls back to 3.
func NewLoanReminderJob(store ReminderStore, mailer Mailer, cfg config.LoanReminderConfig) *LoanReminderJob {
	if cfg.WarningDays <= 0 {
		cfg.WarningDays = 3
	}
	if cfg.Schedule == "" {
		cfg.Schedule = "0 8 * * *"
	}
	return &LoanReminderJob{
		store:  store,
		mailer: mailer,
		cfg:    cfg,
		now:    time.Now,
	}
}

// Start registers the job with a cron scheduler and starts it. It returns an
// error only when the schedule cannot be parsed. The scheduler stops when ctx
// is cancelled or Stop is called.
func (j *LoanReminderJob) Start(ctx context.Context) error {
	if !j.cfg.Enabled {
		log.Println("Loan reminder job: disabled (notifications.loan_reminder.enabled=false)")
		return nil
	}

	c := cron.New(cron.WithLocation(time.UTC))
	if _, err := c.AddFunc(j.cfg.Schedule, func() { j.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("invalid loan reminder schedule %q: %w", j.cfg.Schedule, err)
	}

	j.mu.Lock()
	j.cron = c
	j.mu.Unlock()

	c.Start()
	log.Printf("Loan reminder job started (schedule: %q, warning window: %d days)",
		j.cfg.Schedule, j.cfg.WarningDays)

	go func() {
		<-ctx.Done()
		j.Stop()
	}()
	return nil
}

// Stop halts the scheduler and waits for a running check to finish.
func (j *LoanReminderJob) Stop() {
	j.mu.Lock()
	c := j.cron
	j.cron = nil
	j.mu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
	log.Println("Loan reminder job stopped")
}

// RunOnce performs one reminder pass and returns the number of emails sent.
func (j *LoanReminderJob) RunOnce(ctx context.Context) int {
	now := j.now().UTC()

	if counts, err := j.store.Counts(ctx, now, now.AddDate(0, 0, -30)); err != nil {
		log.Printf("Loan reminder job: failed to count loans: %v", err)
	} else {
		telemetry.LoansOverdue.Set(float64(counts.Overdue))
	}

	loans, err := j.store.FindDueForReminder(ctx, now.AddDate(0, 0, j.cfg.WarningDays))
	if err != nil {
		log.Printf("Loan reminder job: failed to query loans: %v", err)
		return 0
	}
	if len(loans) == 0 {
		return 0
	}

	log.Printf("Loan reminder job: %d loan(s) due within %d days", len(loans), j.cfg.WarningDays)

	sent := 0
	for _, loan := range loans {
		if ctx.Err() != nil {
			break
		}
		if loan.UserEmail == "" {
			continue
		}
		loan.Derive(now)

		subject, body := reminderMessage(loan)
		if err := j.mailer.Send(loan.UserEmail, subject, body); err != nil {
			log.Printf("Loan reminder job: failed to email %s for loan %s: %v", loan.UserEmail, loan.ID, err)
			continue
		}
		telemetry.LoanRemindersSentTotal.Inc()
		sent++

		if err := j.store.MarkReminderSent(ctx, loan.ID, now); err != nil {
			log.Printf("Loan reminder job: failed to mark reminder sent for loan %s: %v", loan.ID, err)
		}
	}
	return sent
}

func reminderMessage(loan *models.LoanDetail) (string, string) {
	var subject, status string
	if loan.IsOverdue {
		subject = fmt.Sprintf("Overdue: please return your '%s' seat", loan.LicenseName)
		status = fmt.Sprintf("was due on %s and is %d day(s) overdue.",
			loan.DueDate.UTC().Format(time.RFC1123), -loan.DaysRemaining)
	} else {
		subject = fmt.Sprintf("Reminder: your '%s' seat is due in %d day(s)", loan.LicenseName, loan.DaysRemaining)
		status = fmt.Sprintf("is due back on %s (%d day(s) from now).",
			loan.DueDate.UTC().Format(time.RFC1123), loan.DaysRemaining)
	}

	name := loan.UserName
	if name == "" {
		name = loan.UserEmail
	}
	body := strings.Join([]string{
		fmt.Sprintf("Hello %s,", name),
		"",
		fmt.Sprintf("Your seat on '%s' %s", loan.LicenseName, status),
		"",
		"Return the seat from the SeatDesk portal once you no longer need it so",
		"a colleague can check it out. If you still need it, return it and check",
		"it out again to start a new loan period.",
		"",
		"SeatDesk",
	}, "\r\n")
	return subject, body
}

// SMTPMailer sends mail through the configured SMTP relay.
type SMTPMailer struct {
	cfg config.SMTPConfig
}

// NewSMTPMailer creates an SMTPMailer.
func NewSMTPMailer(cfg config.SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

// Send composes and delivers a plain-text email.
func (m *SMTPMailer) Send(to, subject, body string) error {
	msg := buildMessage(m.cfg.From, to, subject, body)

	addr := net.JoinHostPort(m.cfg.Host, fmt.Sprintf("%d", m.cfg.Port))
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	if m.cfg.UseTLS {
		return sendMailTLS(addr, m.cfg.Host, auth, m.cfg.From, []string{to}, msg)
	}
	return smtp.SendMail(addr, auth, m.cfg.From, []string{to}, msg)
}

func buildMessage(from, to, subject, body string) []byte {
	headers := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n",
		headerValue(from), headerValue(to), headerValue(subject),
	)
	return []byte(headers + body + "\r\n")
}

// headerValue folds a header value onto one line so it cannot start new headers.
func headerValue(v string) string {
	return strings.Join(strings.FieldsFunc(v, func(r rune) bool {
		return r == '\r' || r == '\n'
	}), " ")
}

// sendMailTLS connects via implicit TLS (port 465) and sends a message. When the
// TLS dial fails it falls back to smtp.SendMail, which upgrades with STARTTLS.
func sendMailTLS(addr, host string, auth smtp.Auth, from string, to []string, msg []byte) error {
	tlsConfig := &tls.Config{
		ServerName: host,
		MinVersion: tls.VersionTLS12,
	}

	conn, err := tls.Dial("tcp", addr, tlsConfig)
	if err != nil {
		return smtp.SendMail(addr, auth, from, to, msg)
	}
	defer conn.Close()

	c, err := smtp.NewClient(conn, host)
	if err != nil {
		return fmt.Errorf("smtp new client: %w", err)
	}
	defer c.Quit() //nolint:errcheck

	if auth != nil {
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := c.Mail(from); err != nil {
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp RCPT TO %s: %w", rcpt, err)
		}
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	return w.Close()
}
