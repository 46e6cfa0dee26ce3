package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/carebook/booking-api/internal/email"
	"github.com/carebook/booking-api/internal/model"
	"github.com/carebook/booking-api/internal/repository"
	"github.com/carebook/booking-api/pkg/logger"
	"github.com/carebook/booking-api/pkg/messaging"
)

// Notifier consumes appointment events from the broker and mails the patient.
// Delivery is best-effort; a failed send is logged and dropped, never retried
// into the booking path.
type Notifier struct {
	broker   messaging.Broker
	patients repository.PatientRepository
	mailer   email.Service
	logger   *logger.Logger
}

func NewNotifier(
	broker messaging.Broker,
	patients repository.PatientRepository,
	mailer email.Service,
	logger *logger.Logger,
) *Notifier {
	return &Notifier{
		broker:   broker,
		patients: patients,
		mailer:   mailer,
		logger:   logger,
	}
}

var notifyChannels = []string{
	model.EventAppointmentCreated,
	model.EventAppointmentRescheduled,
	model.EventAppointmentStatus,
	model.EventAppointmentCancelled,
	model.EventAppointmentRefunded,
}

func (n *Notifier) Start(ctx context.Context) error {
	for _, channel := range notifyChannels {
		messages, err := n.broker.Subscribe(ctx, channel)
		if err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", channel, err)
		}
		go n.consume(ctx, channel, messages)
	}

	n.logger.Info("notifier started", "channels", len(notifyChannels))
	<-ctx.Done()
	return nil
}

func (n *Notifier) consume(ctx context.Context, channel string, messages <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			if err := n.handle(ctx, channel, msg); err != nil {
				n.logger.Error(err, "failed to handle event", "channel", channel)
			}
		}
	}
}

func (n *Notifier) handle(ctx context.Context, channel string, msg []byte) error {
	var appt model.Appointment
	if err := json.Unmarshal(msg, &appt); err != nil {
		return fmt.Errorf("failed to decode event payload: %w", err)
	}

	patient, err := n.patients.Get(ctx, appt.PatientID)
	if err != nil {
		return fmt.Errorf("failed to look up patient %s: %w", appt.PatientID, err)
	}

	subject, body := n.compose(channel, &appt)
	if err := n.mailer.SendAppointmentNotice(ctx, patient.Email, subject, body); err != nil {
		return fmt.Errorf("failed to send notice to %s: %w", patient.Email, err)
	}

	n.logger.Debug("notice sent",
		"channel", channel,
		"appointment_id", appt.ID.String())
	return nil
}

func (n *Notifier) compose(channel string, appt *model.Appointment) (subject, body string) {
	slot := appt.Slot()
	when := fmt.Sprintf("%s from %s to %s", appt.Date.Format(model.DateFormat), slot.Start, slot.End)

	switch channel {
	case model.EventAppointmentCreated:
		subject = fmt.Sprintf("Appointment #%d booked", appt.Number)
		body = fmt.Sprintf("Your appointment is booked for %s.", when)
	case model.EventAppointmentRescheduled:
		subject = fmt.Sprintf("Appointment #%d rescheduled", appt.Number)
		body = fmt.Sprintf("Your appointment has been moved to %s.", when)
	case model.EventAppointmentCancelled:
		subject = fmt.Sprintf("Appointment #%d cancelled", appt.Number)
		body = fmt.Sprintf("Your appointment for %s has been cancelled.", when)
	case model.EventAppointmentRefunded:
		subject = fmt.Sprintf("Appointment #%d refunded", appt.Number)
		body = fmt.Sprintf("A refund has been issued for your appointment on %s.", when)
	default:
		subject = fmt.Sprintf("Appointment #%d updated", appt.Number)
		body = fmt.Sprintf("Your appointment for %s is now %s.", when, appt.Status)
	}
	return subject, body
}
