package notify

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v3"

	"taskkash/internal/config"
	"taskkash/internal/model"
)

// NotificationCreator persists user notifications.
type NotificationCreator interface {
	Create(ctx context.Context, n *model.Notification) error
}

// AdminNotificationCreator persists admin notifications.
type AdminNotificationCreator interface {
	Create(ctx context.Context, n *model.AdminNotification) error
}

// UserFeedSink stores KindUser messages in the user's notification feed.
func UserFeedSink(store NotificationCreator) Sink {
	return SinkFunc(func(ctx context.Context, msg Message) error {
		return store.Create(ctx, &model.Notification{
			UserID: msg.UserID,
			Kind:   msg.Event,
			Title:  msg.Title,
			Body:   msg.Body,
		})
	})
}

// AdminFeedSink stores KindAdmin messages in the admin notification feed.
func AdminFeedSink(store AdminNotificationCreator) Sink {
	return SinkFunc(func(ctx context.Context, msg Message) error {
		return store.Create(ctx, &model.AdminNotification{
			Kind:   msg.Event,
			UserID: msg.UserID,
			Title:  msg.Title,
			Body:   msg.Body,
		})
	})
}

// TelegramSink forwards admin messages to a fixed set of Telegram chats.
type TelegramSink struct {
	bot   *tele.Bot
	chats []int64
}

// NewTelegramSink creates an offline bot used only for sending.
func NewTelegramSink(cfg config.TelegramConfig) (*TelegramSink, error) {
	return newTelegramSink(tele.Settings{Token: cfg.Token, Offline: true}, cfg.AdminChatIDs)
}

func newTelegramSink(settings tele.Settings, chats []int64) (*TelegramSink, error) {
	bot, err := tele.NewBot(settings)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return &TelegramSink{bot: bot, chats: chats}, nil
}

// Deliver implements Sink.
func (s *TelegramSink) Deliver(_ context.Context, msg Message) error {
	text := msg.Body
	if msg.Title != "" {
		text = msg.Title + "\n" + msg.Body
	}

	var errs []error
	for _, chatID := range s.chats {
		if _, err := s.bot.Send(tele.ChatID(chatID), text); err != nil {
			errs = append(errs, fmt.Errorf("chat %d: %w", chatID, err))
		}
	}
	return errors.Join(errs...)
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// MailSink sends KindEmail messages over SMTP.
type MailSink struct {
	addr     string
	from     string
	auth     smtp.Auth
	sendMail sendMailFunc
}

// NewMailSink creates a MailSink from the SMTP settings.
func NewMailSink(cfg config.SMTPConfig) *MailSink {
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return &MailSink{
		addr:     cfg.Host + ":" + strconv.Itoa(cfg.Port),
		from:     cfg.From,
		auth:     auth,
		sendMail: smtp.SendMail,
	}
}

// Deliver implements Sink.
func (s *MailSink) Deliver(_ context.Context, msg Message) error {
	if msg.To == "" {
		return errors.New("email message has no recipient")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", s.from)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n\r\n")
	b.WriteString(msg.Body)

	if err := s.sendMail(s.addr, s.auth, s.from, []string{msg.To}, []byte(b.String())); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}
