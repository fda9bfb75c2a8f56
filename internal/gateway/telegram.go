package gateway

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rahul/mia/internal/agent"
	"github.com/rs/zerolog/log"
)

// TelegramMessageLimit is the maximum length of one Telegram message.
const TelegramMessageLimit = 4096

type TelegramGateway struct {
	Bot *tgbotapi.BotAPI

	intake intake
	wg     sync.WaitGroup
}

func NewTelegramGateway(token string, missions MissionRunner, analyzer agent.IntentAnalyzer) (*TelegramGateway, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}

	log.Info().Str("account", bot.Self.UserName).Msg("telegram authorized")

	return &TelegramGateway{
		Bot:    bot,
		intake: intake{missions: missions, analyzer: analyzer},
	}, nil
}

// Start runs one mission goroutine per inbound message until ctx is done,
// then waits for running missions to finish.
func (tg *TelegramGateway) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := tg.Bot.GetUpdatesChan(u)
	defer tg.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			tg.Bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			msg := update.Message
			from := ""
			if msg.From != nil {
				from = msg.From.UserName
			}
			log.Info().Int64("chat_id", msg.Chat.ID).Str("from", from).Msg(msg.Text)

			tg.wg.Add(1)
			go func() {
				defer tg.wg.Done()
				chatID := strconv.FormatInt(msg.Chat.ID, 10)
				err := tg.intake.handle(ctx, msg.Text, msg.Chat.ID, func(text string) error {
					return tg.Send(chatID, text)
				})
				if err != nil {
					log.Error().Err(err).Int64("chat_id", msg.Chat.ID).Msg("telegram reply failed")
				}
			}()
		}
	}
}

func (tg *TelegramGateway) Send(chatID string, text string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil || id == 0 {
		return fmt.Errorf("invalid chat ID: %s", chatID)
	}

	for _, part := range Chunk(text, TelegramMessageLimit) {
		if _, err := tg.Bot.Send(tgbotapi.NewMessage(id, part)); err != nil {
			return err
		}
	}
	return nil
}

func (tg *TelegramGateway) Stop() error {
	tg.Bot.StopReceivingUpdates()
	return nil
}
