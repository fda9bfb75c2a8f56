// Package agent runs missions: it plans, gathers intelligence through the
// tool gateway, synthesizes one report and disseminates it.
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rahul/mia/internal/integrity"
	"github.com/rahul/mia/internal/observability"
	"github.com/rahul/mia/internal/store"
	"github.com/rahul/mia/internal/tools"
)

var ErrSynthesis = errors.New("report synthesis failed")

const gathered = "Gathered"

// StepInvoker executes one plan step. *tools.Gateway implements it.
type StepInvoker interface {
	Invoke(ctx context.Context, tool tools.ToolName, args tools.Args, run tools.RunContext) tools.Result
}

// Sink persists finished reports. *store.DualSink implements it.
type Sink interface {
	Persist(ctx context.Context, r store.Report) error
}

type Deps struct {
	Planner     Planner
	Synthesizer Synthesizer
	Gateway     StepInvoker
	Gate        *integrity.Gate
	Sink        Sink
	Logger      *observability.Logger
	MaxSteps    int

	// LastMissionID seeds the id sequence so ids keep increasing across
	// process restarts; the first mission gets LastMissionID+1.
	LastMissionID int64
}

// Orchestrator holds no per-mission state; StartMission may be called from
// many goroutines at once.
type Orchestrator struct {
	planner  Planner
	synth    Synthesizer
	gateway  StepInvoker
	gate     *integrity.Gate
	sink     Sink
	logger   *observability.Logger
	maxSteps int

	seq atomic.Int64
	now func() time.Time
}

func NewOrchestrator(d Deps) *Orchestrator {
	if d.Gate == nil {
		d.Gate = integrity.DefaultGate()
	}
	if d.Logger == nil {
		d.Logger = observability.NopLogger()
	}
	o := &Orchestrator{
		planner:  d.Planner,
		synth:    d.Synthesizer,
		gateway:  d.Gateway,
		gate:     d.Gate,
		sink:     d.Sink,
		logger:   d.Logger,
		maxSteps: d.MaxSteps,
		now:      time.Now,
	}
	o.seq.Store(d.LastMissionID)
	return o
}

// StartMission runs goal to COMPLETE or FAILED. The returned record is never
// nil; the error is set only when the mission FAILED.
func (o *Orchestrator) StartMission(ctx context.Context, goal string, conversationID *int64) (*MissionRecord, error) {
	rec := &MissionRecord{
		ID:             o.seq.Add(1),
		ConversationID: conversationID,
		Goal:           goal,
		Status:         StatusPlanning,
		Trace:          []TraceEntry{},
		StartedAt:      o.now(),
	}
	defer observability.EndMission(rec.ID)
	o.phase(rec)
	o.logger.LogMission(rec.ID, string(rec.Status), goal)

	err := o.run(ctx, rec)
	rec.FinishedAt = o.now()
	if err != nil {
		rec.Error = err.Error()
		if aerr := rec.advance(StatusFailed); aerr != nil {
			err = errors.Join(err, aerr)
		}
	}
	observability.MissionsFinished.WithLabelValues(string(rec.Status)).Inc()
	observability.MissionDuration.Observe(rec.FinishedAt.Sub(rec.StartedAt).Seconds())
	o.logger.LogMission(rec.ID, string(rec.Status), goal)
	return rec, err
}

func (o *Orchestrator) run(ctx context.Context, rec *MissionRecord) error {
	raw, err := o.planner.GeneratePlan(ctx, rec.Goal)
	if err != nil {
		return fmt.Errorf("planning failed: %w", err)
	}
	plan, err := ParsePlan(raw, o.maxSteps)
	if err != nil {
		return err
	}
	if plan.Dropped > 0 {
		o.logger.Warn().Int64("mission_id", rec.ID).Int("dropped", plan.Dropped).Int("max_steps", o.maxSteps).Msg("plan truncated")
	}
	o.logger.LogPlan(rec.ID, len(plan.Steps))

	if err := o.enter(rec, StatusGathering); err != nil {
		return err
	}
	pool := o.gather(ctx, rec, plan)

	if err := o.enter(rec, StatusSynthesizing); err != nil {
		return err
	}
	synthesized, err := o.synth.Synthesize(ctx, pool.String())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSynthesis, err)
	}

	if err := o.enter(rec, StatusPersisting); err != nil {
		return err
	}
	rec.Report = o.check(rec.ID, synthesized)
	o.persist(ctx, rec)

	if err := o.enter(rec, StatusDisseminating); err != nil {
		return err
	}
	o.disseminate(ctx, rec, plan)

	return o.enter(rec, StatusComplete)
}

// gather folds every gather step's result text into a pool, in plan order.
// A failed step contributes its failure text so synthesis can see what was
// not reachable.
func (o *Orchestrator) gather(ctx context.Context, rec *MissionRecord, plan Plan) IntelPool {
	run := tools.RunContext{MissionID: rec.ID, Goal: rec.Goal}
	var pool IntelPool
	for _, step := range plan.Gather() {
		res := o.gateway.Invoke(ctx, step.Tool, step.Args, run)
		pool = pool.With(res.Text)
		outcome := res.Text
		if res.OK {
			outcome = gathered
		}
		rec.Trace = append(rec.Trace, TraceEntry{Ordinal: step.Ordinal, Tool: step.Tool, Outcome: outcome, Kind: res.Kind})
	}
	return pool
}

// check gates the synthesized report. The raw pool never stands in for a
// rejected report; the sentinel does.
func (o *Orchestrator) check(missionID int64, candidate string) string {
	if v := o.gate.Inspect(candidate); !v.OK {
		o.logger.LogIntegrity(missionID, v.Reason)
	}
	return o.gate.Check(candidate, "")
}

func (o *Orchestrator) persist(ctx context.Context, rec *MissionRecord) {
	if o.sink == nil {
		return
	}
	err := o.sink.Persist(ctx, store.Report{
		ConversationID: rec.ConversationID,
		MissionID:      rec.ID,
		Goal:           rec.Goal,
		Content:        rec.Report,
		At:             o.now(),
	})
	if err != nil {
		o.logger.Error().Err(err).Int64("mission_id", rec.ID).Msg("report persistence failed")
	}
}

// disseminate publishes the report through every publish step. Each step
// gets its own copy of the arguments with the report as content; the
// report is also the gate fallback so every step sends the same text.
func (o *Orchestrator) disseminate(ctx context.Context, rec *MissionRecord, plan Plan) {
	run := tools.RunContext{MissionID: rec.ID, Goal: rec.Goal, Fallback: rec.Report}
	for _, step := range plan.Disseminate() {
		args := step.Args.Clone()
		args["content"] = rec.Report
		res := o.gateway.Invoke(ctx, step.Tool, args, run)
		rec.Trace = append(rec.Trace, TraceEntry{Ordinal: step.Ordinal, Tool: step.Tool, Outcome: res.Text, Kind: res.Kind})
	}
}

func (o *Orchestrator) enter(rec *MissionRecord, next Status) error {
	if err := rec.advance(next); err != nil {
		return err
	}
	o.phase(rec)
	return nil
}

func (o *Orchestrator) phase(rec *MissionRecord) {
	observability.SetMissionPhase(rec.ID, string(rec.Status))
}
