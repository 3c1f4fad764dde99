package notify

import (
	"context"
	"errors"

	"github.com/MarcoPoloResearchLab/heizoel/internal/events"
	"github.com/MarcoPoloResearchLab/heizoel/internal/inquiries"
	"go.uber.org/zap"
)

// Subscriber hands out change subscriptions that never drop a change.
type Subscriber interface {
	SubscribeQueued(ctx context.Context, topics ...events.Topic) (<-chan events.Change, func())
}

// InquiryLoader resolves the records referenced by insert changes.
type InquiryLoader interface {
	GetContactRequest(ctx context.Context, id string) (inquiries.ContactRequest, error)
	GetOrder(ctx context.Context, id string) (inquiries.Order, error)
}

// EmailSender is the email half of a notification.
type EmailSender interface {
	Send(ctx context.Context, event Event) (EmailReceipt, error)
}

// TelegramSender is the Telegram half of a notification.
type TelegramSender interface {
	Dispatch(ctx context.Context, event Event) (Report, error)
}

// TriggerConfig wires a Trigger.
type TriggerConfig struct {
	Subscriber Subscriber
	Inquiries  InquiryLoader
	Email      EmailSender
	Telegram   TelegramSender
	Logger     *zap.Logger
}

// Trigger runs both dispatchers for every new contact request and order.
type Trigger struct {
	subscriber Subscriber
	inquiries  InquiryLoader
	email      EmailSender
	telegram   TelegramSender
	logger     *zap.Logger
}

// Outcome collects what happened on both channels for one event.
type Outcome struct {
	Email         EmailReceipt `json:"email"`
	EmailError    string       `json:"email_error,omitempty"`
	Telegram      Report       `json:"telegram"`
	TelegramError string       `json:"telegram_error,omitempty"`
}

// NewTrigger validates the configuration and constructs a Trigger.
func NewTrigger(cfg TriggerConfig) (*Trigger, error) {
	if cfg.Subscriber == nil || cfg.Inquiries == nil {
		return nil, errors.New("notify: trigger requires a subscriber and an inquiry loader")
	}
	if cfg.Email == nil || cfg.Telegram == nil {
		return nil, errors.New("notify: trigger requires both dispatchers")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Trigger{
		subscriber: cfg.Subscriber,
		inquiries:  cfg.Inquiries,
		email:      cfg.Email,
		telegram:   cfg.Telegram,
		logger:     logger,
	}, nil
}

// Start subscribes immediately and consumes changes in a goroutine until ctx ends.
// The returned channel closes once the consumer has stopped.
func (t *Trigger) Start(ctx context.Context) <-chan struct{} {
	stream, cleanup := t.subscriber.SubscribeQueued(ctx, events.TopicContactRequests, events.TopicOrders)
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer cleanup()
		for {
			select {
			case <-ctx.Done():
				return
			case change, ok := <-stream:
				if !ok {
					return
				}
				t.handle(ctx, change)
			}
		}
	}()
	return done
}

func (t *Trigger) handle(ctx context.Context, change events.Change) {
	if change.Action != events.ActionInsert {
		return
	}
	var event Event
	switch change.Topic {
	case events.TopicContactRequests:
		contact, err := t.inquiries.GetContactRequest(ctx, change.RecordID)
		if err != nil {
			t.logger.Error("notification record lookup failed", zap.String("topic", string(change.Topic)), zap.String("record_id", change.RecordID), zap.Error(err))
			return
		}
		event = ContactEvent(contact)
	case events.TopicOrders:
		order, err := t.inquiries.GetOrder(ctx, change.RecordID)
		if err != nil {
			t.logger.Error("notification record lookup failed", zap.String("topic", string(change.Topic)), zap.String("record_id", change.RecordID), zap.Error(err))
			return
		}
		event = OrderEvent(order)
	default:
		return
	}
	t.Notify(ctx, event)
}

// Notify runs the email and the Telegram dispatcher for the event. Neither failure stops the other.
func (t *Trigger) Notify(ctx context.Context, event Event) Outcome {
	var outcome Outcome

	receipt, err := t.email.Send(ctx, event)
	switch {
	case errors.Is(err, ErrEmailNotConfigured):
		outcome.EmailError = err.Error()
		t.logger.Info("email notification skipped", zap.String("record_id", event.RecordID()), zap.Error(err))
	case err != nil:
		outcome.EmailError = err.Error()
		t.logger.Error("email notification failed", zap.String("record_id", event.RecordID()), zap.Error(err))
	default:
		outcome.Email = receipt
	}

	report, err := t.telegram.Dispatch(ctx, event)
	switch {
	case errors.Is(err, ErrTelegramNotConfigured):
		outcome.TelegramError = err.Error()
		t.logger.Info("telegram notification skipped", zap.String("record_id", event.RecordID()), zap.Error(err))
	case err != nil:
		outcome.TelegramError = err.Error()
		t.logger.Error("telegram notification failed", zap.String("record_id", event.RecordID()), zap.Error(err))
	default:
		outcome.Telegram = report
	}
	return outcome
}
