// Package notify sends simulation completion e-mails.
package notify

import (
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strings"
)

// Mailer sends notifications through a single SMTP account.
type Mailer struct {
	Host     string
	Port     int
	User     string
	Password string

	// FlirtBase is the public UI base URL linked in messages.
	FlirtBase string
}

// SimulationComplete mails the submitter a link to their finished
// simulation.
func (m *Mailer) SimulationComplete(to, simulationID string) error {
	link := strings.TrimRight(m.FlirtBase, "/") + "/simulation/" + simulationID
	body := strings.Join([]string{
		"From: " + m.User,
		"To: " + to,
		"Subject: Your simulation has completed",
		"",
		"Your passenger flow simulation has finished.",
		"",
		"View the results at " + link,
		"",
	}, "\r\n")
	return m.send(to, []byte(body))
}

func (m *Mailer) send(to string, msg []byte) error {
	addr := fmt.Sprintf("%s:%d", m.Host, m.Port)
	auth := smtp.PlainAuth("", m.User, m.Password, m.Host)

	// Port 465 is implicit TLS; smtp.SendMail only speaks STARTTLS.
	if m.Port != 465 {
		if err := smtp.SendMail(addr, auth, m.User, []string{to}, msg); err != nil {
			return fmt.Errorf("send mail: %w", err)
		}
		return nil
	}

	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: m.Host})
	if err != nil {
		return fmt.Errorf("dial smtp: %w", err)
	}
	client, err := smtp.NewClient(conn, m.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("smtp auth: %w", err)
	}
	if err := client.Mail(m.User); err != nil {
		return fmt.Errorf("smtp mail: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("smtp rcpt: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close message: %w", err)
	}
	return client.Quit()
}
