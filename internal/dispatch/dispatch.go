// Package dispatch formats submission records and sends them through the
// relay: a confirmation to the submitter and a notification to the
// internal mailbox.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/terminus-industrials/intake/internal/config"
	intakeerr "github.com/terminus-industrials/intake/internal/errors"
	"github.com/terminus-industrials/intake/internal/form"
	"github.com/terminus-industrials/intake/internal/relay"
	"github.com/terminus-industrials/intake/internal/submission"
)

// Recipient kinds, used in logs.
const (
	Confirmation = "confirmation"
	Notification = "notification"
)

// Dispatcher owns recipient selection, message copy and failure
// aggregation. Transport is left to the relay.Sender.
type Dispatcher struct {
	sender relay.Sender
	cfg    *config.Config
}

// New returns a Dispatcher that sends through sender using the addresses
// and company name in cfg.
func New(sender relay.Sender, cfg *config.Config) *Dispatcher {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Dispatcher{sender: sender, cfg: cfg}
}

// Dispatch sends r according to its form. It returns nil on success or a
// DISPATCH_FAILED error carrying the relay's message.
func (d *Dispatcher) Dispatch(ctx context.Context, r submission.Record) error {
	switch r.Form {
	case form.FormAPI:
		return d.DispatchAPI(ctx, r)
	case form.FormContact:
		return d.DispatchContact(ctx, r)
	}
	return intakeerr.NewInvalidRequest(fmt.Sprintf("unknown form %q", r.Form))
}

// DispatchAPI sends an Advance Purchase Indication. The confirmation is sent
// only when the record has a contact email. The notification is always
// attempted, even if the confirmation failed. The first failure is returned;
// a send that already succeeded is never undone.
func (d *Dispatcher) DispatchAPI(ctx context.Context, r submission.Record) error {
	formatted := submission.Render(r)
	contactEmail := r.Text("contactEmail")
	companyName := r.Text("companyName")

	var firstErr error
	if contactEmail != "" {
		err := d.send(ctx, r.ID, Confirmation, relay.Message{
			To:      contactEmail,
			Subject: fmt.Sprintf("Thank you for submitting an Advance Purchase Indication to %s", d.cfg.CompanyName),
			Body: fmt.Sprintf("Thank you for submitting an Advance Purchase Indication to %s. Someone from our team will contact you soon.\n\n%s",
				d.cfg.CompanyName, formatted),
			From: d.cfg.SalesFrom,
		})
		if err != nil {
			firstErr = err
		}
	}

	if contactEmail == "" {
		contactEmail = "unknown"
	}
	if companyName == "" {
		companyName = "Unknown Company"
	}
	err := d.send(ctx, r.ID, Notification, relay.Message{
		To:      d.cfg.SalesAddress,
		Subject: fmt.Sprintf("API Submission from %s at %s", contactEmail, companyName),
		Body:    "New API Submission received.\n\n" + formatted,
		From:    d.cfg.SalesFrom,
	})
	if err != nil && firstErr == nil {
		firstErr = err
	}

	return asDispatchError(firstErr)
}

// DispatchContact sends a contact-form message. If the confirmation to the
// sender fails the internal notification is not attempted.
func (d *Dispatcher) DispatchContact(ctx context.Context, r submission.Record) error {
	name, company, email := r.Text("name"), r.Text("company"), r.Text("email")
	subject, message := r.Text("subject"), r.Text("message")

	err := d.send(ctx, r.ID, Confirmation, relay.Message{
		To:      email,
		Subject: fmt.Sprintf("Thank you for contacting %s!", d.cfg.CompanyName),
		Body: fmt.Sprintf("Thank you for contacting %s. Someone from our team will contact you soon.\n\n---\n\nSubject: %s\n\nMessage: %s",
			d.cfg.CompanyName, subject, message),
		From: d.cfg.ContactFrom,
	})
	if err != nil {
		return asDispatchError(err)
	}

	err = d.send(ctx, r.ID, Notification, relay.Message{
		To:      d.cfg.ContactAddress,
		Subject: fmt.Sprintf("Inquiry from %s %s", company, email),
		Body:    fmt.Sprintf("Subject: %s\n\nMessage: %s", subject, message),
		From:    fmt.Sprintf("%s <%s>", name, email),
	})
	return asDispatchError(err)
}

func (d *Dispatcher) send(ctx context.Context, id, kind string, m relay.Message) error {
	err := d.sender.Send(ctx, m)
	if err != nil {
		log.Printf("dispatch %s: %s to %s failed: %v", id, kind, m.To, err)
		return err
	}
	log.Printf("dispatch %s: %s sent to %s", id, kind, m.To)
	return nil
}

// sendFailedText is shown when the relay could not be reached at all. The
// underlying error names the relay URL, so it stays in the log.
const sendFailedText = "Email relay unreachable"

// asDispatchError converts a send failure into DISPATCH_FAILED carrying the
// relay's own text.
func asDispatchError(err error) error {
	if err == nil {
		return nil
	}
	var relayErr *relay.Error
	if errors.As(err, &relayErr) {
		return intakeerr.NewDispatchFailed(relayErr.Text)
	}
	return intakeerr.NewDispatchFailed(sendFailedText)
}
