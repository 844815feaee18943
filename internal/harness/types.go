package harness

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/epmem/internal/engine"
)

// Event kinds besides the engine command kinds.
const (
	KindTick    = "tick"
	KindRelease = "release"
)

// TraceEvent is one executed step.
type TraceEvent struct {
	Step      int    `json:"step"`
	Kind      string `json:"kind"`
	RequestID string `json:"request_id,omitempty"`
	Anchor    string `json:"anchor,omitempty"`
	// Args is the step input as printed in the transcript, e.g. "episode=3".
	Args   string `json:"args,omitempty"`
	Status string `json:"status,omitempty"`
	// Code is the command error code, or "STORE" for any other failure.
	Code      string                `json:"code,omitempty"`
	Episode   int64                 `json:"episode,omitempty"`
	Installed int                   `json:"installed,omitempty"`
	Orphans   int                   `json:"orphans,omitempty"`
	Report    *engine.EpisodeReport `json:"report,omitempty"`
	Match     *Match                `json:"match,omitempty"`
	// WM is the rendered subgraph under the anchor after the step.
	WM []string `json:"wm,omitempty"`
}

// Match is the scoring outcome of a successful query.
type Match struct {
	CueSize     int     `json:"cue_size"`
	Cardinality int     `json:"cardinality"`
	Score       float64 `json:"score"`
	Normalized  float64 `json:"normalized"`
	GraphMatch  bool    `json:"graph_match"`
}

// String renders the event head as one transcript line, without WM.
func (e TraceEvent) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%d] %s", e.Step, e.Kind)
	if e.RequestID != "" {
		b.WriteString(" " + e.RequestID)
	}
	if e.Anchor != "" {
		b.WriteString(" anchor=" + e.Anchor)
	}
	if e.Args != "" {
		b.WriteString(" " + e.Args)
	}
	if e.Status == "" {
		return b.String()
	}

	b.WriteString(" -> " + e.Status)
	if e.Status != engine.StatusSuccess.String() {
		b.WriteString(" " + e.Code)
		return b.String()
	}
	if e.Episode != 0 {
		fmt.Fprintf(&b, " episode=%d", e.Episode)
	}
	if r := e.Report; r != nil {
		fmt.Fprintf(&b, " nodes=%d edges=%d activated=%d closed=%d reuses=%d",
			r.NodesCreated, r.EdgesCreated, r.Activated, r.Closed, r.PoolReuses)
		return b.String()
	}
	if e.Kind == string(engine.CommandStoreLTI) {
		return b.String()
	}
	fmt.Fprintf(&b, " installed=%d", e.Installed)
	if e.Orphans > 0 {
		fmt.Fprintf(&b, " orphans=%d", e.Orphans)
	}
	if m := e.Match; m != nil {
		fmt.Fprintf(&b, " cue=%d cardinality=%d score=%s normalized=%s graph_match=%t",
			m.CueSize, m.Cardinality, formatFloat(m.Score), formatFloat(m.Normalized), m.GraphMatch)
	}
	return b.String()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace holds one event per executed step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains expectation and assertion failures.
	Errors []string `json:"errors,omitempty"`

	// Stats is the engine snapshot after the last step.
	Stats engine.Stats `json:"stats"`

	// Tables holds the final row count of every store table.
	Tables []engine.TableCount `json:"tables,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddEvent appends a step to the trace.
func (r *Result) AddEvent(e TraceEvent) {
	r.Trace = append(r.Trace, e)
}
