package agent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rahul/mia/internal/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

type scriptedModel struct {
	mu      sync.Mutex
	replies []string
	errs    []error
	calls   int
	last    []llms.MessageContent
}

func (m *scriptedModel) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.calls
	m.calls++
	m.last = messages
	if i < len(m.errs) && m.errs[i] != nil {
		return nil, m.errs[i]
	}
	reply := ""
	if i < len(m.replies) {
		reply = m.replies[i]
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: reply}}}, nil
}

func (m *scriptedModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

var fastRetry = RetryOptions{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond, RequestTimeout: time.Second}

func TestLanguageModelRetriesRateLimits(t *testing.T) {
	m := &scriptedModel{
		errs:    []error{errors.New("API returned unexpected status code: 429: Too Many Requests"), errors.New("request timed out")},
		replies: []string{"", "", "[plan]"},
	}
	lm := NewLanguageModel(m, fastRetry, 0, nil)

	out, err := lm.Generate(context.Background(), "plan", "prompt")
	require.NoError(t, err)
	assert.Equal(t, "[plan]", out)
	assert.Equal(t, 3, m.calls)
	require.Len(t, m.last, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, m.last[0].Role)
}

func TestLanguageModelGivesUpAfterMaxAttempts(t *testing.T) {
	rateLimited := errors.New("429 rate limit exceeded")
	m := &scriptedModel{errs: []error{rateLimited, rateLimited, rateLimited, rateLimited}}
	lm := NewLanguageModel(m, fastRetry, 0, nil)

	_, err := lm.Generate(context.Background(), "synthesis", "prompt")
	assert.ErrorIs(t, err, rateLimited)
	assert.Equal(t, 3, m.calls)
}

func TestLanguageModelDoesNotRetryPermanentErrors(t *testing.T) {
	m := &scriptedModel{errs: []error{errors.New("401 invalid api key")}}
	lm := NewLanguageModel(m, fastRetry, 0, nil)

	_, err := lm.Generate(context.Background(), "plan", "prompt")
	assert.Error(t, err)
	assert.Equal(t, 1, m.calls)
}

func TestLanguageModelRetriesEmptyResponses(t *testing.T) {
	m := &scriptedModel{replies: []string{"  ", "report"}}
	lm := NewLanguageModel(m, fastRetry, 0, nil)

	out, err := lm.Generate(context.Background(), "synthesis", "prompt")
	require.NoError(t, err)
	assert.Equal(t, "report", out)
	assert.Equal(t, 2, m.calls)
}

type failingGenerator struct{}

func (failingGenerator) Generate(context.Context, string, string) (string, error) {
	return "", errors.New("unreachable")
}

func TestAnalystIdentifyFallsBack(t *testing.T) {
	a := NewAnalyst(failingGenerator{}, NewPromptManager(""), tools.NewRegistry())
	assert.Equal(t, DefaultIntent, a.Identify(context.Background(), "H100 pricing"))

	a.LM = NewLanguageModel(&scriptedModel{replies: []string{" GPU Price Comparison \n"}}, fastRetry, 0, nil)
	assert.Equal(t, "GPU Price Comparison", a.Identify(context.Background(), "H100 pricing"))
}

func TestToolCatalog(t *testing.T) {
	reg := tools.NewRegistry()
	reg.Register(tools.NewSearchTool(nil))
	reg.Register(tools.NewFetchPageTool(nil, time.Second, nil))

	catalog := ToolCatalog(reg)
	assert.Equal(t,
		"- fetch_page: "+tools.NewFetchPageTool(nil, 0, nil).Description()+` Args: {"url":"string"}`+"\n"+
			"- web_search: "+tools.NewSearchTool(nil).Description()+` Args: {"query":"string"}`,
		catalog)
}
