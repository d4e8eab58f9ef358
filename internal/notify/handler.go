package notify

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/kart-shop/internal/domain/order"
)

// Handler runs the notification for one event.
type Handler interface {
	HandleOrderCreated(ctx context.Context, ev OrderCreated) error
}

// Mail is an outgoing plain-text message.
type Mail struct {
	From    string
	To      []string
	Subject string
	Body    string
}

// Mailer sends mail.
type Mailer interface {
	Send(ctx context.Context, m Mail) error
}

// OrderGetter loads an order by id.
type OrderGetter interface {
	GetByID(ctx context.Context, id int64) (*order.Order, error)
}

var _ Handler = (*MailHandler)(nil)

// MailHandler sends the order confirmation mail to the buyer.
type MailHandler struct {
	orders OrderGetter
	mailer Mailer
	from   string
}

// NewMailHandler creates a MailHandler sending from the given address.
func NewMailHandler(orders OrderGetter, mailer Mailer, from string) *MailHandler {
	return &MailHandler{orders: orders, mailer: mailer, from: from}
}

func (h *MailHandler) HandleOrderCreated(ctx context.Context, ev OrderCreated) error {
	o, err := h.orders.GetByID(ctx, ev.OrderID)
	if err != nil {
		return errors.Wrapf(err, "load order %d", ev.OrderID)
	}
	if err := h.mailer.Send(ctx, ConfirmationMail(o, h.from)); err != nil {
		return errors.Wrapf(err, "send confirmation for order %d", o.ID)
	}
	return nil
}

// ConfirmationMail builds the mail telling the buyer the order was placed.
func ConfirmationMail(o *order.Order, from string) Mail {
	return Mail{
		From:    from,
		To:      []string{o.Email},
		Subject: fmt.Sprintf("Order nr. %d", o.ID),
		Body: fmt.Sprintf("Dear %s,\n\nYou have successfully placed an order. Your order ID is %d.",
			o.FirstName, o.ID),
	}
}

var _ Mailer = (*LogMailer)(nil)

// LogMailer writes mails to the log instead of sending them.
type LogMailer struct {
	lg *zap.Logger
}

// NewLogMailer creates a LogMailer.
func NewLogMailer(lg *zap.Logger) *LogMailer {
	return &LogMailer{lg: lg}
}

func (m *LogMailer) Send(_ context.Context, mail Mail) error {
	m.lg.Info("Mail",
		zap.String("from", mail.From),
		zap.Strings("to", mail.To),
		zap.String("subject", mail.Subject),
		zap.String("body", mail.Body),
	)
	return nil
}
