package observability

import (
	"sync"
	"time"
)

// Snapshot is a point-in-time view of the running missions.
type Snapshot struct {
	Active        int
	Phases        map[string]int // missions per phase
	LastMission   int64
	LastPhase     string
	LastHeartbeat time.Time
}

type missionBoard struct {
	mu          sync.RWMutex
	active      map[int64]string
	lastMission int64
	lastPhase   string
	heartbeat   time.Time
}

var board = &missionBoard{
	active:    make(map[int64]string),
	heartbeat: time.Now(),
}

// SetMissionPhase records the current phase of a running mission.
func SetMissionPhase(missionID int64, phase string) {
	board.mu.Lock()
	defer board.mu.Unlock()
	board.active[missionID] = phase
	board.lastMission = missionID
	board.lastPhase = phase
}

// EndMission drops a mission from the active set.
func EndMission(missionID int64) {
	board.mu.Lock()
	defer board.mu.Unlock()
	delete(board.active, missionID)
}

func GetStatus() Snapshot {
	board.mu.RLock()
	defer board.mu.RUnlock()
	phases := make(map[string]int, len(board.active))
	for _, p := range board.active {
		phases[p]++
	}
	return Snapshot{
		Active:        len(board.active),
		Phases:        phases,
		LastMission:   board.lastMission,
		LastPhase:     board.lastPhase,
		LastHeartbeat: board.heartbeat,
	}
}

func Heartbeat() {
	board.mu.Lock()
	defer board.mu.Unlock()
	board.heartbeat = time.Now()
}
