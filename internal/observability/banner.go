package observability

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

var startTime = time.Now()

const (
	colorReset    = "\033[0m"
	colorPurple   = "\033[35m"
	colorNeonCyan = "\033[96m"
	colorNeonMag  = "\033[95m"
)

var radarFrames = []string{"◜", "◝", "◞", "◟"}
var radarIdx = 0

// termMu synchronizes ALL terminal output so that the cursor
// save/restore in PrintLiveStatus can never be interrupted by a log write.
var termMu sync.Mutex

func termWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 80
	}
	return w
}

// IsTerminal reports whether stdout is attached to a terminal; the live
// dashboard is only drawn when it is.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

type termWriter struct{}

func (tw termWriter) Write(p []byte) (n int, err error) {
	termMu.Lock()
	defer termMu.Unlock()
	return os.Stderr.Write(p)
}

// NewTermWriter returns an io.Writer that serialises writes with
// PrintLiveStatus via termMu.
func NewTermWriter() *termWriter {
	return &termWriter{}
}

func PrintBanner() {
	fmt.Print("\033[2J\033[H")

	banner := `
    __  ___ ____ ___
   /  |/  //  _//   |
  / /|_/ / / / / /| |
 / /  / /_/ / / ___ |
/_/  /_//___//_/  |_|

   >> MARKET INTELLIGENCE MISSIONS <<
`

	width := termWidth()
	for _, l := range strings.Split(banner, "\n") {
		padding := (width - len(l)) / 2
		if padding < 0 {
			padding = 0
		}
		fmt.Printf("%s%s%s\n", strings.Repeat(" ", padding), colorNeonCyan+l, colorReset)
	}
}

func InitializeTerminal() {
	// Banner: 1-9, status line: 10, logs scroll from 12.
	fmt.Print("\033[12;r")
	fmt.Print("\033[12;1H")
}

func CleanupTerminal() {
	fmt.Print("\033[r\033[2J\033[H")
}

// pulse grades the heartbeat age.
func pulse(age time.Duration) (icon, text, color string) {
	switch {
	case age < 40*time.Second:
		return "🟢", "HEALTHY", colorNeonCyan
	case age < 90*time.Second:
		return "🟡", "LAGGING", colorPurple
	default:
		return "🔴", "OFFLINE", colorNeonMag
	}
}

// missionSummary renders the active missions per phase in lifecycle order,
// or the last mission seen when none are running.
func missionSummary(s Snapshot) string {
	if s.Active == 0 {
		if s.LastMission == 0 {
			return "idle"
		}
		return fmt.Sprintf("idle, last #%d %s", s.LastMission, s.LastPhase)
	}
	var parts []string
	for _, phase := range phaseOrder {
		if n := s.Phases[phase]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s %d", strings.ToLower(phase), n))
		}
	}
	return strings.Join(parts, ", ")
}

var phaseOrder = []string{"PLANNING", "GATHERING", "SYNTHESIZING", "PERSISTING", "DISSEMINATING"}

func statusLine(s Snapshot, now time.Time, uptime time.Duration, memMB float64, radar string) string {
	icon, text, color := pulse(now.Sub(s.LastHeartbeat))
	return fmt.Sprintf("%s[%s] %s%s %-8s%s | missions: %d | %s %s%s%s [%v] [%.1fMB]",
		colorReset,
		s.LastHeartbeat.Format("15:04:05"),
		color, icon, text, colorReset,
		s.Active,
		missionSummary(s),
		colorPurple, radar, colorReset,
		uptime,
		memMB,
	)
}

// PrintLiveStatus redraws the status line pinned above the log region.
func PrintLiveStatus() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	s := GetStatus()
	radar := " "
	if s.Active > 0 {
		radar = radarFrames[radarIdx]
		radarIdx = (radarIdx + 1) % len(radarFrames)
	}
	line := statusLine(s, time.Now(), time.Since(startTime).Round(time.Second), float64(m.Alloc)/1024/1024, radar)

	termMu.Lock()
	fmt.Print("\033[s\033[10;1H\033[K" + line + "\033[u")
	termMu.Unlock()
}
