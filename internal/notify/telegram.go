package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/nicholas-fedor/shoutrrr"
	"github.com/nicholas-fedor/shoutrrr/pkg/router"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"gate-service/internal/domain/anpr"
)

var ErrNoChat = errors.New("owner has no chat id")

// TelegramSink messages each owner's chat through a shoutrrr telegram URL.
// Senders are built lazily and reused per chat.
type TelegramSink struct {
	token   string
	timeout time.Duration

	mu      sync.Mutex
	senders map[int64]*router.ServiceRouter

	// deliver is replaced in tests.
	deliver func(chatID int64, message string) error
}

func NewTelegramSink(token string, timeout time.Duration) *TelegramSink {
	s := &TelegramSink{
		token:   token,
		timeout: timeout,
		senders: make(map[int64]*router.ServiceRouter),
	}
	s.deliver = s.send
	return s
}

func (s *TelegramSink) Notify(ctx context.Context, owner anpr.Owner, plate, imageRef string) error {
	return s.message(ctx, owner, alertText(plate, imageRef))
}

func (s *TelegramSink) NotifyTimeout(ctx context.Context, owner anpr.Owner, plate string) error {
	return s.message(ctx, owner, timeoutText(plate))
}

func (s *TelegramSink) message(ctx context.Context, owner anpr.Owner, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if owner.ChatID == 0 {
		return fmt.Errorf("%w: %s", ErrNoChat, owner.Plate)
	}
	return s.deliver(owner.ChatID, text)
}

func (s *TelegramSink) send(chatID int64, message string) error {
	sender, err := s.sender(chatID)
	if err != nil {
		return err
	}
	params := stypes.Params{}
	for _, err := range sender.Send(message, &params) {
		if err != nil {
			return fmt.Errorf("telegram send to %d failed: %w", chatID, err)
		}
	}
	return nil
}

func (s *TelegramSink) sender(chatID int64) (*router.ServiceRouter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sender, ok := s.senders[chatID]; ok {
		return sender, nil
	}
	sender, err := shoutrrr.CreateSender(TelegramURL(s.token, chatID))
	if err != nil {
		// The URL embeds the bot token; keep it out of the error.
		return nil, fmt.Errorf("invalid telegram configuration for chat %d", chatID)
	}
	if s.timeout > 0 {
		sender.Timeout = s.timeout
	}
	sender.SetLogger(log.New(io.Discard, "", 0))
	s.senders[chatID] = sender
	return sender, nil
}

// TelegramURL builds the shoutrrr service URL for one chat. The shoutrrr
// telegram service only sends text, so the snapshot travels as a link and
// the web page preview renders it inline under the alert.
func TelegramURL(token string, chatID int64) string {
	return fmt.Sprintf("telegram://%s@telegram?chats=%d&preview=Yes", token, chatID)
}
