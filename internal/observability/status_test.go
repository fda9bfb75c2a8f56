package observability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMissionBoard(t *testing.T) {
	SetMissionPhase(101, "GATHERING")
	SetMissionPhase(102, "GATHERING")
	SetMissionPhase(103, "SYNTHESIZING")
	defer func() {
		for _, id := range []int64{101, 102, 103} {
			EndMission(id)
		}
	}()

	s := GetStatus()
	assert.GreaterOrEqual(t, s.Active, 3)
	assert.Equal(t, int64(103), s.LastMission)
	assert.Equal(t, "SYNTHESIZING", s.LastPhase)
	assert.Contains(t, missionSummary(s), "gathering")

	EndMission(103)
	assert.Equal(t, s.Active-1, GetStatus().Active)
}

func TestMissionSummary(t *testing.T) {
	assert.Equal(t, "idle", missionSummary(Snapshot{}))
	assert.Equal(t, "idle, last #7 COMPLETE", missionSummary(Snapshot{LastMission: 7, LastPhase: "COMPLETE"}))
	assert.Equal(t, "gathering 2, synthesizing 1", missionSummary(Snapshot{
		Active: 3,
		Phases: map[string]int{"SYNTHESIZING": 1, "GATHERING": 2},
	}))
}

func TestStatusLinePulse(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fresh := statusLine(Snapshot{LastHeartbeat: now.Add(-5 * time.Second)}, now, time.Minute, 12.5, " ")
	assert.Contains(t, fresh, "HEALTHY")
	assert.Contains(t, fresh, "[12.5MB]")

	stale := statusLine(Snapshot{LastHeartbeat: now.Add(-2 * time.Minute)}, now, time.Minute, 0, " ")
	assert.Contains(t, stale, "OFFLINE")
}
