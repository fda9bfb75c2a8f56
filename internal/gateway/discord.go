package gateway

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/rahul/mia/internal/agent"
	"github.com/rs/zerolog/log"
)

// DiscordMessageLimit is the maximum length of one Discord message.
const DiscordMessageLimit = 2000

// Channel messages must carry this prefix to start a mission.
const discordPrefix = "!mia"

type DiscordGateway struct {
	Session *discordgo.Session

	intake intake
	wg     sync.WaitGroup
}

func NewDiscordGateway(token string, missions MissionRunner, analyzer agent.IntentAnalyzer) (*DiscordGateway, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	s.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentMessageContent
	return &DiscordGateway{
		Session: s,
		intake:  intake{missions: missions, analyzer: analyzer},
	}, nil
}

func (dg *DiscordGateway) Start(ctx context.Context) error {
	remove := dg.Session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Author == nil || (s.State != nil && s.State.User != nil && m.Author.ID == s.State.User.ID) {
			return
		}
		text, ok := strings.CutPrefix(m.Content, discordPrefix)
		if !ok {
			return
		}
		// Discord snowflakes are numeric and double as conversation ids.
		conv, _ := strconv.ParseInt(m.ChannelID, 10, 64)

		dg.wg.Add(1)
		go func() {
			defer dg.wg.Done()
			err := dg.intake.handle(ctx, text, conv, func(reply string) error {
				return dg.Send(m.ChannelID, reply)
			})
			if err != nil {
				log.Error().Err(err).Str("channel_id", m.ChannelID).Msg("discord reply failed")
			}
		}()
	})
	defer remove()

	if err := dg.Session.Open(); err != nil {
		return err
	}
	log.Info().Msg("discord session opened")

	<-ctx.Done()
	dg.wg.Wait()
	return dg.Session.Close()
}

func (dg *DiscordGateway) Send(channelID string, text string) error {
	for _, part := range Chunk(text, DiscordMessageLimit) {
		if _, err := dg.Session.ChannelMessageSend(channelID, part); err != nil {
			return err
		}
	}
	return nil
}

func (dg *DiscordGateway) Stop() error {
	return dg.Session.Close()
}
