package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Sxientrie/reddit-hawk/internal/model"
	"github.com/Sxientrie/reddit-hawk/internal/store"
)

// summaryLimit bounds how many cached hits one Telegram message lists.
const summaryLimit = 5

// TelegramAPI is the subset of the bot API the sink uses.
type TelegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram delivers notifications as Telegram messages. A ui-refresh
// event produces a silent summary of the newest cached hits; a sound
// event produces a short audible ping.
type Telegram struct {
	api     TelegramAPI
	chatID  int64
	durable store.Store
}

// NewTelegram creates the sink from an existing bot token.
func NewTelegram(token string, chatID int64, durable store.Store) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return &Telegram{api: api, chatID: chatID, durable: durable}, nil
}

// NewTelegramWithAPI creates the sink over a prebuilt API, used in tests.
func NewTelegramWithAPI(api TelegramAPI, chatID int64, durable store.Store) *Telegram {
	return &Telegram{api: api, chatID: chatID, durable: durable}
}

// Name identifies the sink in logs.
func (t *Telegram) Name() string { return "telegram" }

// Notify handles one event. The event carries no payload; the summary is
// built by re-reading the persisted hits cache.
func (t *Telegram) Notify(ctx context.Context, kind Kind) error {
	switch kind {
	case KindUIRefresh:
		var hits []model.Post
		if err := store.GetJSON(ctx, t.durable, store.KeyHitsCache, &hits); err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("read hits cache: %w", err)
		}
		if len(hits) == 0 {
			return nil
		}
		msg := tgbotapi.NewMessage(t.chatID, FormatHitSummary(hits))
		msg.DisableNotification = true
		msg.DisableWebPagePreview = true
		_, err := t.api.Send(msg)
		return err

	case KindSound:
		msg := tgbotapi.NewMessage(t.chatID, "New matches on your watch list.")
		_, err := t.api.Send(msg)
		return err
	}
	return nil
}

// FormatHitSummary formats the newest cached hits as one message.
func FormatHitSummary(hits []model.Post) string {
	n := len(hits)
	if n > summaryLimit {
		n = summaryLimit
	}

	var b strings.Builder
	b.WriteString("Latest matches:\n")
	for _, hit := range hits[:n] {
		fmt.Fprintf(&b, "\nr/%s: %s\n", hit.Subreddit, hit.Title)
		if hit.Permalink != "" {
			fmt.Fprintf(&b, "https://www.reddit.com%s\n", hit.Permalink)
		}
	}
	if len(hits) > n {
		fmt.Fprintf(&b, "\n...and %d more cached.\n", len(hits)-n)
	}
	return b.String()
}
