package annotate

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tfkr-ae/sazed/domain"
)

// lineKey identifies one annotated line: a canonical file path plus a
// zero-based line number.
type lineKey struct {
	file string
	line int
}

// Directive is one inline display instruction produced for a file. The
// consuming display surface decides how to draw it.
type Directive struct {
	Line             int    // Zero-based line number
	Text             string // Formatted annotation text
	OccurrenceSuffix string // "+N" when the line has seen more than one event
	HoverDetail      string // Multi-line detail shown on hover
}

// Annotator holds the per-file, per-line aggregation of the most recent
// event and its occurrence count. Entries are created on the first event for
// a line and cleared only by ClearAll; a LineState outliving its trimmed
// store event is documented behavior, not a defect.
type Annotator struct {
	mu         sync.Mutex
	correlator *Correlator
	lines      map[lineKey]*domain.LineState
	enabled    map[domain.Level]bool
}

// NewAnnotator builds an annotator over the given correlator with every
// level enabled.
func NewAnnotator(correlator *Correlator) *Annotator {
	annotator := &Annotator{
		correlator: correlator,
		lines:      make(map[lineKey]*domain.LineState),
		enabled:    make(map[domain.Level]bool),
	}
	for _, level := range domain.Levels {
		annotator.enabled[level] = true
	}
	return annotator
}

// SetEnabledLevels replaces the set of levels included by Render. Entries for
// disabled levels are retained and reappear when the level is re-enabled.
func (a *Annotator) SetEnabledLevels(levels ...domain.Level) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enabled = make(map[domain.Level]bool)
	for _, level := range levels {
		a.enabled[level] = true
	}
}

// SetCorrelator swaps the correlator, e.g. after a configuration reload
// changed the mapping rules or workspace roots. Existing line state is kept.
func (a *Annotator) SetCorrelator(correlator *Correlator) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.correlator = correlator
}

// Record resolves the event's location and updates the line state for the
// resolved (file, line) key. Events whose location cannot be resolved
// contribute no annotation but remain in the log store.
func (a *Annotator) Record(event domain.LogEvent) {
	a.mu.Lock()
	correlator := a.correlator
	a.mu.Unlock()

	file, ok := correlator.Resolve(event.Location)
	if !ok {
		return
	}

	line := event.Location.Line - 1
	if line < 0 {
		line = 0
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	key := lineKey{file: file, line: line}
	if state, exists := a.lines[key]; exists {
		state.Event = event
		state.Occurrences++
		return
	}
	a.lines[key] = &domain.LineState{Event: event, Occurrences: 1}
}

// Render produces the display directives for one file, ordered by line.
// Entries whose level is currently filtered out are omitted entirely.
func (a *Annotator) Render(file string) []Directive {
	a.mu.Lock()
	defer a.mu.Unlock()

	directives := make([]Directive, 0)
	for key, state := range a.lines {
		if key.file != file || !a.enabled[state.Event.Level] {
			continue
		}

		suffix := ""
		if state.Occurrences > 1 {
			suffix = fmt.Sprintf("+%d", state.Occurrences-1)
		}
		directives = append(directives, Directive{
			Line:             key.line,
			Text:             formatEvent(state.Event),
			OccurrenceSuffix: suffix,
			HoverDetail:      hoverDetail(state.Event),
		})
	}
	sort.Slice(directives, func(i, j int) bool {
		return directives[i].Line < directives[j].Line
	})
	return directives
}

// ClearAll discards all line state.
func (a *Annotator) ClearAll() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lines = make(map[lineKey]*domain.LineState)
}

// Lines returns the number of tracked lines across all files.
func (a *Annotator) Lines() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.lines)
}

// formatEvent renders the annotation text. The network and time kinds get
// dedicated formatting; everything else uses the captured preview text.
func formatEvent(event domain.LogEvent) string {
	switch event.Kind {
	case string(domain.LevelNetwork):
		if event.Status == 0 {
			return fmt.Sprintf("%s %s (failed)", event.Method, event.URL)
		}
		return fmt.Sprintf("%s %s %d (%.0fms)", event.Method, event.URL, event.Status, event.DurationMs)
	case string(domain.LevelTime):
		return fmt.Sprintf("%s: %.1fms", event.Label, event.DurationMs)
	}
	if event.Text == "" {
		return string(event.Level)
	}
	return event.Text
}

// hoverDetail renders the multi-line detail block for one event.
func hoverDetail(event domain.LogEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", strings.ToUpper(string(event.Level)), formatEvent(event))
	if len(event.Values) > 0 {
		if encoded, err := json.Marshal(event.Values); err == nil {
			fmt.Fprintf(&b, "\n%s", encoded)
		}
	}
	fmt.Fprintf(&b, "\n%s", event.Timestamp.Format(time.RFC3339))
	if event.Stack != "" {
		fmt.Fprintf(&b, "\n%s", event.Stack)
	}
	return b.String()
}
