// Package notify sends the patient and admin emails around the booking
// lifecycle. Dispatch is best-effort: callers log failures and move on.
package notify

import (
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/jbarrault/cabinet-rdv/internal/model"
)

type Sender interface {
	Send(to string, subject string, body string) error
}

// SMTPSender sends mail via unauthenticated SMTP (Mailpit-compatible in
// dev, a relay in production).
type SMTPSender struct {
	addr string
	from string
}

func NewSMTPSender(host, port, from string) *SMTPSender {
	host = strings.TrimSpace(host)
	port = strings.TrimSpace(port)
	from = strings.TrimSpace(from)
	if from == "" {
		from = "Cabinet Dr. Martin <no-reply@cabinet-martin.fr>"
	}
	return &SMTPSender{
		addr: fmt.Sprintf("%s:%s", host, port),
		from: from,
	}
}

func (s *SMTPSender) Send(to string, subject string, body string) error {
	msg := buildMessage(s.from, to, subject, body)
	return smtp.SendMail(s.addr, nil, s.from, []string{to}, []byte(msg))
}

func buildMessage(from, to, subject, body string) string {
	return fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n",
		from,
		to,
		subject,
		body,
	)
}

// Mailer renders the cabinet's French emails. A nil sender disables all
// dispatch (Configured reports false and callers skip the work).
type Mailer struct {
	sender  Sender
	baseURL string
}

func NewMailer(sender Sender, baseURL string) *Mailer {
	return &Mailer{
		sender:  sender,
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
	}
}

func (m *Mailer) Configured() bool {
	return m != nil && m.sender != nil
}

func (m *Mailer) SendConfirmation(appt model.Appointment) error {
	if !m.Configured() {
		return nil
	}
	body := fmt.Sprintf(
		"Bonjour %s,\n\nVotre rendez-vous est confirmé :\n\n  %s à %s\n%s\nPour annuler (au moins 24h à l'avance) :\n%s/cancel/%s\n\nÀ bientôt,\nCabinet Dr. Martin\n",
		appt.PatientName,
		FormatDate(appt.StartTime),
		appt.StartTime.Format("15:04"),
		reasonLine(appt.Reason),
		m.baseURL,
		appt.CancellationToken,
	)
	return m.sender.Send(appt.PatientEmail, "Confirmation de votre rendez-vous - Cabinet Dr. Martin", body)
}

func (m *Mailer) SendCancellation(appt model.Appointment) error {
	if !m.Configured() {
		return nil
	}
	body := fmt.Sprintf(
		"Bonjour %s,\n\nVotre rendez-vous du %s à %s a bien été annulé.\n\nVous pouvez reprendre rendez-vous à tout moment sur notre site.\n\nCabinet Dr. Martin\n",
		appt.PatientName,
		FormatDate(appt.StartTime),
		appt.StartTime.Format("15:04"),
	)
	return m.sender.Send(appt.PatientEmail, "Annulation de votre rendez-vous - Cabinet Dr. Martin", body)
}

// SendAdminCancellation notifies the cabinet that a patient
// self-cancelled so the freed slot can be re-offered.
func (m *Mailer) SendAdminCancellation(appt model.Appointment, adminEmail string) error {
	if !m.Configured() || strings.TrimSpace(adminEmail) == "" {
		return nil
	}
	body := fmt.Sprintf(
		"Rendez-vous annulé par le patient :\n\n  Patient : %s\n  Email : %s\n  Date : %s à %s\n%s\nCe créneau est de nouveau disponible.\n",
		appt.PatientName,
		appt.PatientEmail,
		FormatDate(appt.StartTime),
		appt.StartTime.Format("15:04"),
		reasonLine(appt.Reason),
	)
	return m.sender.Send(adminEmail, fmt.Sprintf("Annulation RDV - %s", appt.PatientName), body)
}

func (m *Mailer) SendReminder(appt model.Appointment) error {
	if !m.Configured() {
		return nil
	}
	body := fmt.Sprintf(
		"Bonjour %s,\n\nNous vous rappelons votre rendez-vous demain :\n\n  %s à %s\n%s\nN'oubliez pas votre carte Vitale et votre carte de mutuelle.\n\nCabinet Dr. Martin\n",
		appt.PatientName,
		FormatDate(appt.StartTime),
		appt.StartTime.Format("15:04"),
		reasonLine(appt.Reason),
	)
	return m.sender.Send(appt.PatientEmail, "Rappel : votre rendez-vous demain - Cabinet Dr. Martin", body)
}

func reasonLine(reason string) string {
	if strings.TrimSpace(reason) == "" {
		return "\n"
	}
	return fmt.Sprintf("  Motif : %s\n\n", reason)
}

var frenchDays = [...]string{"dimanche", "lundi", "mardi", "mercredi", "jeudi", "vendredi", "samedi"}

var frenchMonths = [...]string{"", "janvier", "février", "mars", "avril", "mai", "juin",
	"juillet", "août", "septembre", "octobre", "novembre", "décembre"}

// FormatDate renders "lundi 2 mars 2026" the way the cabinet's emails
// have always shown dates.
func FormatDate(t time.Time) string {
	return fmt.Sprintf("%s %d %s %d",
		frenchDays[int(t.Weekday())],
		t.Day(),
		frenchMonths[int(t.Month())],
		t.Year(),
	)
}
