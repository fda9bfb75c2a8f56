package gateway

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/rahul/mia/internal/agent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunk(t *testing.T) {
	assert.Equal(t, []string{"short"}, Chunk("short", 10))
	assert.Equal(t, []string{""}, Chunk("", 10))

	text := strings.Repeat("a", 25)
	assert.Equal(t, []string{strings.Repeat("a", 10), strings.Repeat("a", 10), strings.Repeat("a", 5)}, Chunk(text, 10))

	lines := "line one\nline two\nline three"
	parts := Chunk(lines, 12)
	assert.Equal(t, "line one\n", parts[0])
	assert.Equal(t, lines, strings.Join(parts, ""))

	// Multi-byte runes are never split.
	parts = Chunk(strings.Repeat("€", 9), 4)
	assert.Equal(t, []string{"€€€€", "€€€€", "€"}, parts)

	long := strings.Repeat("x", TelegramMessageLimit*2+1)
	for _, p := range Chunk(long, TelegramMessageLimit) {
		assert.LessOrEqual(t, len([]rune(p)), TelegramMessageLimit)
	}
}

type fakeRunner struct {
	mu    sync.Mutex
	goals []string
	convs []int64
}

func (f *fakeRunner) StartMission(_ context.Context, goal string, conv *int64) (*agent.MissionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.goals = append(f.goals, goal)
	f.convs = append(f.convs, *conv)
	return &agent.MissionRecord{ID: 1, Goal: goal, Status: agent.StatusComplete, Report: "report body"}, nil
}

type fixedIntent string

func (f fixedIntent) Identify(context.Context, string) string { return string(f) }

func TestIntakeRunsMission(t *testing.T) {
	runner := &fakeRunner{}
	in := intake{missions: runner, analyzer: fixedIntent("GPU Price Research")}
	var replies []string
	reply := func(s string) error { replies = append(replies, s); return nil }

	require.NoError(t, in.handle(context.Background(), "  H100 hourly pricing ", 42, reply))
	assert.Equal(t, []string{"H100 hourly pricing"}, runner.goals)
	assert.Equal(t, []int64{42}, runner.convs)
	require.Len(t, replies, 2)
	assert.Equal(t, "Mission accepted: H100 hourly pricing", replies[0])
	assert.Contains(t, replies[1], "Mission #1 COMPLETE")
	assert.Contains(t, replies[1], "report body")

	replies = nil
	require.NoError(t, in.handle(context.Background(), "/analyze H100 hourly pricing", 42, reply))
	assert.Equal(t, []string{"Intent: GPU Price Research"}, replies)

	replies = nil
	require.NoError(t, in.handle(context.Background(), "/start", 42, reply))
	assert.Equal(t, []string{helpText}, replies)
	assert.Len(t, runner.goals, 1)
}

type fakeMessenger struct {
	sent []string
	err  error
}

func (f *fakeMessenger) Start(context.Context) error { return nil }
func (f *fakeMessenger) Stop() error                 { return nil }
func (f *fakeMessenger) Send(chatID, text string) error {
	f.sent = append(f.sent, chatID+":"+text)
	return f.err
}

func TestBroadcast(t *testing.T) {
	ok := &fakeMessenger{}
	broken := &fakeMessenger{err: errors.New("forbidden")}

	var b Broadcast
	assert.Error(t, b.Notify(context.Background(), "s", "b"))

	b.Add("telegram", ok, "1")
	b.Add("discord", broken, "2")
	require.NoError(t, b.Notify(context.Background(), "Agent Report: H100", "body"))
	assert.Equal(t, []string{"1:Agent Report: H100\n\nbody"}, ok.sent)

	only := Broadcast{}
	only.Add("discord", broken, "2")
	assert.ErrorContains(t, only.Notify(context.Background(), "s", "b"), "discord: forbidden")
}
