package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Delivery acknowledges a notification
type Delivery struct {
	ID           string    `json:"id"`
	PhoneNumber  string    `json:"phone_number"`
	Message      string    `json:"message"`
	Confirmation string    `json:"confirmation"`
	SentAt       time.Time `json:"sent_at"`
	Simulated    bool      `json:"simulated"`
}

// Notifier sends a text message to a phone number
type Notifier interface {
	Send(ctx context.Context, phoneNumber, message string) (Delivery, error)
}

// LogNotifier acknowledges every message without delivering it
type LogNotifier struct {
	now func() time.Time
}

// NewLogNotifier creates a LogNotifier
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{now: time.Now}
}

// Send logs the message and reports it as sent
func (n *LogNotifier) Send(ctx context.Context, phoneNumber, message string) (Delivery, error) {
	if err := ctx.Err(); err != nil {
		return Delivery{}, err
	}
	if phoneNumber == "" {
		return Delivery{}, fmt.Errorf("phone number is required")
	}

	delivery := Delivery{
		ID:           uuid.NewString(),
		PhoneNumber:  phoneNumber,
		Message:      message,
		Confirmation: Confirmation(phoneNumber),
		SentAt:       n.now(),
		Simulated:    true,
	}
	slog.Info("SMS notification simulated", "id", delivery.ID, "phone", phoneNumber)
	return delivery, nil
}

// Confirmation is the text shown to the user once a message was handed off
func Confirmation(phoneNumber string) string {
	return "SMS notification sent to " + phoneNumber
}
