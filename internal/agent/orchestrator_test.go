package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rahul/mia/internal/fetch"
	"github.com/rahul/mia/internal/integrity"
	"github.com/rahul/mia/internal/store"
	"github.com/rahul/mia/internal/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPlanner struct {
	out string
	err error
}

func (p stubPlanner) GeneratePlan(context.Context, string) (string, error) { return p.out, p.err }

type stubSynth struct {
	mu    sync.Mutex
	out   string
	err   error
	pools []string
}

func (s *stubSynth) Synthesize(_ context.Context, pool string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pools = append(s.pools, pool)
	return s.out, s.err
}

type pageFetcher map[string]fetch.Outcome

func (f pageFetcher) Fetch(_ context.Context, address string, _ time.Duration) fetch.Outcome {
	if out, ok := f[address]; ok {
		return out
	}
	return fetch.Outcome{Kind: fetch.Degraded, Reason: "unknown host"}
}

type echoSearcher struct{}

func (echoSearcher) Search(_ context.Context, q string) (string, error) { return "results: " + q, nil }

type memArchiver struct {
	mu      sync.Mutex
	entries []tools.Entry
}

func (a *memArchiver) Archive(_ context.Context, e tools.Entry) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
	return "mem", nil
}

type memNotifier struct {
	bodies []string
}

func (n *memNotifier) Notify(_ context.Context, _, body string) error {
	n.bodies = append(n.bodies, body)
	return nil
}

type memSink struct {
	mu      sync.Mutex
	reports []store.Report
	err     error
}

func (s *memSink) Persist(_ context.Context, r store.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, r)
	return s.err
}

type harness struct {
	synth    *stubSynth
	archiver *memArchiver
	notifier *memNotifier
	sink     *memSink
	orch     *Orchestrator
}

func newHarness(plan string, pages pageFetcher, report string) *harness {
	h := &harness{
		synth:    &stubSynth{out: report},
		archiver: &memArchiver{},
		notifier: &memNotifier{},
		sink:     &memSink{},
	}
	gate := integrity.DefaultGate()
	reg := tools.NewRegistry()
	reg.Register(tools.NewFetchPageTool(pages, time.Second, nil))
	reg.Register(tools.NewSearchTool(echoSearcher{}))
	reg.Register(tools.NewArchiveTool(h.archiver, gate))
	reg.Register(tools.NewNotifyTool(h.notifier, gate))
	h.orch = NewOrchestrator(Deps{
		Planner:     stubPlanner{out: plan},
		Synthesizer: h.synth,
		Gateway:     tools.NewGateway(reg),
		Gate:        gate,
		Sink:        h.sink,
	})
	return h
}

const (
	lambda    = "https://lambdalabs.com/service/gpu-cloud"
	pricePage = "Lambda GPU Cloud. NVIDIA H100 SXM instances are available on demand at $2.49/hr per GPU with 80GB HBM3 memory."
	h100      = "# Market Intelligence Report\n| Provider | H100 |\n|---|---|\n| Lambda | $2.49/hr |"
)

func TestMissionH100HourlyPricing(t *testing.T) {
	plan := fmt.Sprintf(`Here is the plan:
[
  {"step": 1, "tool": "fetch_page", "args": {"url": %q}, "thought": "pricing page"},
  {"step": 2, "tool": "archive", "args": {"title": "H100", "content": "Synthesize all H100 pricing found into a report here."}}
]`, lambda)
	h := newHarness(plan, pageFetcher{lambda: {Kind: fetch.Content, Text: pricePage}}, h100)

	rec, err := h.orch.StartMission(context.Background(), "H100 hourly pricing", nil)
	require.NoError(t, err)

	assert.Equal(t, StatusComplete, rec.Status)
	assert.Equal(t, h100, rec.Report)
	require.Len(t, h.synth.pools, 1)
	assert.Equal(t, "\n---\n"+pricePage+"\n", h.synth.pools[0])

	require.Len(t, h.archiver.entries, 1)
	assert.Equal(t, h100, h.archiver.entries[0].Content)
	assert.Equal(t, "H100", h.archiver.entries[0].Title)

	assert.Equal(t, []TraceEntry{
		{Ordinal: 1, Tool: tools.FetchPage, Outcome: "Gathered", Kind: tools.Success},
		{Ordinal: 2, Tool: tools.Archive, Outcome: "OK", Kind: tools.Success},
	}, rec.Trace)

	require.Len(t, h.sink.reports, 1)
	assert.Equal(t, h100, h.sink.reports[0].Content)
	assert.False(t, rec.FinishedAt.Before(rec.StartedAt))
}

func TestMissionTimedOutAddressFallsBackToSearch(t *testing.T) {
	b := "https://coreweave.com/pricing"
	plan := fmt.Sprintf(`[{"step": 1, "tool": "web_research", "args": {"url": %q}}]`, b)
	h := newHarness(plan, pageFetcher{b: {Kind: fetch.TimedOut, Reason: "budget spent"}}, h100)

	rec, err := h.orch.StartMission(context.Background(), "CoreWeave pricing", nil)
	require.NoError(t, err)

	assert.Equal(t, StatusComplete, rec.Status)
	require.Len(t, h.synth.pools, 1)
	assert.Contains(t, h.synth.pools[0], "results: Latest info from "+b)
	assert.Equal(t, []TraceEntry{{Ordinal: 1, Tool: tools.FetchPage, Outcome: "Gathered", Kind: tools.Success}}, rec.Trace)
}

func TestMissionUnparsablePlanFails(t *testing.T) {
	for _, out := range []string{"I cannot plan this.", "[]", "[1, 2, 3]", `[{"step": 1,`} {
		h := newHarness(out, nil, h100)
		rec, err := h.orch.StartMission(context.Background(), "anything", nil)

		assert.ErrorIs(t, err, ErrPlanParse)
		assert.Equal(t, StatusFailed, rec.Status)
		assert.Empty(t, rec.Trace)
		assert.Empty(t, h.synth.pools)
		assert.Empty(t, h.sink.reports)
	}
}

func TestMissionPlannerErrorFails(t *testing.T) {
	h := newHarness("", nil, h100)
	h.orch.planner = stubPlanner{err: errors.New("429 rate limited")}

	rec, err := h.orch.StartMission(context.Background(), "goal", nil)
	assert.Error(t, err)
	assert.Equal(t, StatusFailed, rec.Status)
	assert.Contains(t, rec.Error, "planning failed")
}

func TestMissionSynthesisFailureKeepsTrace(t *testing.T) {
	plan := `[{"tool": "web_search", "args": {"query": "h100"}}, {"tool": "notify", "args": {}}]`
	h := newHarness(plan, nil, "")
	h.synth.err = errors.New("model overloaded")

	rec, err := h.orch.StartMission(context.Background(), "goal", nil)
	assert.ErrorIs(t, err, ErrSynthesis)
	assert.Equal(t, StatusFailed, rec.Status)
	require.Len(t, rec.Trace, 1)
	assert.Equal(t, tools.WebSearch, rec.Trace[0].Tool)
	assert.Empty(t, h.notifier.bodies)
	assert.Empty(t, h.sink.reports)
}

func TestMissionPersistenceFailureStillCompletes(t *testing.T) {
	h := newHarness(`[{"tool": "web_search", "args": {"query": "h100"}}]`, nil, h100)
	h.sink.err = errors.New("database is locked")

	rec, err := h.orch.StartMission(context.Background(), "goal", nil)
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, rec.Status)
	assert.Equal(t, h100, rec.Report)
}

func TestMissionDisseminatesIdenticalReport(t *testing.T) {
	plan := `[
		{"step": 1, "tool": "web_search", "args": {"query": "h100"}},
		{"step": 2, "tool": "archive", "args": {"content": "[placeholder]"}},
		{"step": 3, "tool": "notify", "args": {"content": "insert here"}},
		{"step": 4, "tool": "save_to_notion", "args": {}}
	]`
	for _, synthesized := range []string{h100, "Error: no data found"} {
		h := newHarness(plan, nil, synthesized)
		rec, err := h.orch.StartMission(context.Background(), "goal", nil)
		require.NoError(t, err)

		require.Len(t, h.archiver.entries, 2)
		require.Len(t, h.notifier.bodies, 1)
		assert.Equal(t, rec.Report, h.archiver.entries[0].Content)
		assert.Equal(t, rec.Report, h.archiver.entries[1].Content)
		assert.Equal(t, rec.Report, h.notifier.bodies[0])
	}
}

func TestMissionRejectedSynthesisBecomesSentinel(t *testing.T) {
	h := newHarness(`[{"tool": "web_search", "args": {"query": "h100"}}]`, nil, "Insert here the pricing table.")

	rec, err := h.orch.StartMission(context.Background(), "goal", nil)
	require.NoError(t, err)
	assert.Equal(t, integrity.DefaultSentinel, rec.Report)
	assert.NotContains(t, rec.Report, "results:")
}

func TestMissionUnknownToolIsTraced(t *testing.T) {
	h := newHarness(`[{"step": 1, "tool": "shell", "args": {"cmd": "ls"}}, {"step": 2, "tool": "web_search", "args": {"query": "x"}}]`, nil, h100)

	rec, err := h.orch.StartMission(context.Background(), "goal", nil)
	require.NoError(t, err)
	require.Len(t, rec.Trace, 2)
	assert.Equal(t, tools.Unknown, rec.Trace[0].Tool)
	assert.Equal(t, tools.NotFound, rec.Trace[0].Kind)
	assert.Equal(t, "Gathered", rec.Trace[1].Outcome)
	require.Len(t, h.synth.pools, 1)
	assert.Equal(t, 2, strings.Count(h.synth.pools[0], "\n---\n"))
	assert.Contains(t, h.synth.pools[0], rec.Trace[0].Outcome)
}

func TestMissionFailedGatherTextReachesPool(t *testing.T) {
	plan := `[{"step": 1, "tool": "fetch_page", "args": {"url": "ftp://files.example"}}, {"step": 2, "tool": "web_search", "args": {"query": "h100"}}]`
	h := newHarness(plan, nil, h100)

	rec, err := h.orch.StartMission(context.Background(), "goal", nil)
	require.NoError(t, err)
	require.Len(t, rec.Trace, 2)
	assert.Equal(t, tools.ValidationFailure, rec.Trace[0].Kind)

	require.Len(t, h.synth.pools, 1)
	pool := h.synth.pools[0]
	assert.Contains(t, pool, "unsupported scheme")
	assert.Less(t, strings.Index(pool, "unsupported scheme"), strings.Index(pool, "results: h100"))
}

func TestMissionIDsContinueFromLastMissionID(t *testing.T) {
	plan := `[{"tool": "web_search", "args": {"query": "h100"}}]`
	first := newHarness(plan, nil, h100)
	rec, err := first.orch.StartMission(context.Background(), "goal", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.ID)

	// A new process seeds from what the audit log already holds.
	second := newHarness(plan, nil, h100)
	second.orch = NewOrchestrator(Deps{
		Planner:       stubPlanner{out: plan},
		Synthesizer:   second.synth,
		Gateway:       tools.NewGateway(tools.NewRegistry()),
		Sink:          second.sink,
		LastMissionID: rec.ID,
	})
	next, err := second.orch.StartMission(context.Background(), "goal", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), next.ID)
	require.Len(t, second.sink.reports, 1)
	assert.Equal(t, int64(2), second.sink.reports[0].MissionID)
}

func TestMissionsRunConcurrently(t *testing.T) {
	h := newHarness(`[{"tool": "web_search", "args": {"query": "h100"}}, {"tool": "archive", "args": {}}]`, nil, h100)

	const n = 16
	ids := make(chan int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(conv int64) {
			defer wg.Done()
			rec, err := h.orch.StartMission(context.Background(), "goal", &conv)
			assert.NoError(t, err)
			ids <- rec.ID
		}(int64(i))
	}
	wg.Wait()
	close(ids)

	seen := map[int64]bool{}
	for id := range ids {
		assert.False(t, seen[id], "duplicate mission id %d", id)
		seen[id] = true
	}
	assert.Len(t, h.archiver.entries, n)
}

func TestStatusTransitions(t *testing.T) {
	assert.True(t, StatusPlanning.CanTransition(StatusGathering))
	assert.True(t, StatusGathering.CanTransition(StatusFailed))
	assert.False(t, StatusPlanning.CanTransition(StatusSynthesizing))
	assert.False(t, StatusComplete.CanTransition(StatusFailed))
	assert.False(t, StatusFailed.CanTransition(StatusPlanning))

	rec := &MissionRecord{Status: StatusGathering}
	assert.ErrorIs(t, rec.advance(StatusComplete), ErrInvalidTransition)
}
