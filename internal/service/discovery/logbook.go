package discovery

import "fmt"

// Logbook accumulates a run's log lines, keeping each distinct line once in
// first-seen order. It is owned by the run goroutine and is not safe for
// concurrent use.
type Logbook struct {
	seen  map[string]struct{}
	lines []string
}

// NewLogbook returns an empty logbook.
func NewLogbook() *Logbook {
	return &Logbook{seen: make(map[string]struct{})}
}

// Add records line unless it was already recorded. It reports whether the line was new.
func (l *Logbook) Add(line string) bool {
	if _, dup := l.seen[line]; dup {
		return false
	}
	l.seen[line] = struct{}{}
	l.lines = append(l.lines, line)
	return true
}

// Addf formats and records a line.
func (l *Logbook) Addf(format string, args ...any) bool {
	return l.Add(fmt.Sprintf(format, args...))
}

// Len returns the number of distinct lines.
func (l *Logbook) Len() int { return len(l.lines) }

// Snapshot returns a copy of the lines recorded so far.
func (l *Logbook) Snapshot() []string {
	out := make([]string, len(l.lines))
	copy(out, l.lines)
	return out
}
