package agent

import "strings"

// IntelPool is the gathered intelligence of one mission. With returns a new
// pool; existing values never change.
type IntelPool struct {
	entries []string
}

func (p IntelPool) With(text string) IntelPool {
	entries := make([]string, len(p.entries), len(p.entries)+1)
	copy(entries, p.entries)
	return IntelPool{entries: append(entries, text)}
}

func (p IntelPool) Len() int {
	return len(p.entries)
}

func (p IntelPool) String() string {
	var sb strings.Builder
	for _, e := range p.entries {
		sb.WriteString("\n---\n")
		sb.WriteString(e)
		sb.WriteString("\n")
	}
	return sb.String()
}
