package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Target is a messenger and the chat it should deliver reports to.
type Target struct {
	Name      string
	Messenger Messenger
	ChatID    string
}

// Broadcast delivers notifications to every configured target. It
// implements tools.Notifier.
type Broadcast struct {
	Targets []Target
}

func (b *Broadcast) Add(name string, m Messenger, chatID string) {
	b.Targets = append(b.Targets, Target{Name: name, Messenger: m, ChatID: chatID})
}

// Notify succeeds if at least one target received the message.
func (b *Broadcast) Notify(ctx context.Context, subject, body string) error {
	if len(b.Targets) == 0 {
		return errors.New("no notification targets configured")
	}
	text := subject + "\n\n" + body
	var errs []error
	for _, t := range b.Targets {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := t.Messenger.Send(t.ChatID, text); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.Name, err))
		}
	}
	if len(errs) == len(b.Targets) {
		return errors.Join(errs...)
	}
	for _, err := range errs {
		log.Warn().Err(err).Msg("notification target failed")
	}
	return nil
}
