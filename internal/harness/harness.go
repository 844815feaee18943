package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/epmem/internal/config"
	"github.com/roach88/epmem/internal/engine"
	"github.com/roach88/epmem/internal/store"
	"github.com/roach88/epmem/internal/testutil"
	"github.com/roach88/epmem/internal/wm"
)

// codeStore marks a failure that is not a command error.
const codeStore = "STORE"

// Harness executes one scenario. It owns the working memory, the engine and
// the anchors the steps name.
type Harness struct {
	eng     *engine.Engine
	mem     *wm.Memory
	ids     *testutil.SequentialIDs
	anchors map[string]wm.Identifier
	logger  *slog.Logger
}

// Option configures a run.
type Option func(*runOptions)

type runOptions struct {
	logger *slog.Logger
	mutate []func(*config.Config)
}

// WithLogger sends engine events to logger. Default: discarded.
func WithLogger(logger *slog.Logger) Option {
	return func(o *runOptions) {
		o.logger = logger
	}
}

// WithConfig adjusts the resolved configuration, e.g. to run on a file
// database or the pure-Go driver.
func WithConfig(mutate func(*config.Config)) Option {
	return func(o *runOptions) {
		o.mutate = append(o.mutate, mutate)
	}
}

// Run executes a scenario and returns the result.
//
// Each run gets a fresh in-memory store unless WithConfig points it
// elsewhere, and request ids restart at req-0001, so runs are reproducible.
// An error is returned only when the scenario cannot be executed at all;
// failed expectations and assertions are reported in Result.Errors.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	ro := runOptions{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&ro)
	}

	cfg, err := scenario.EngineConfig()
	if err != nil {
		return nil, fmt.Errorf("resolve config: %w", err)
	}
	cfg.Database.Path = store.MemoryPath
	for _, m := range ro.mutate {
		m(&cfg)
	}

	h := &Harness{
		mem:     wm.NewMemory(),
		ids:     testutil.NewSequentialIDs(""),
		anchors: make(map[string]wm.Identifier),
		logger:  ro.logger,
	}
	h.eng, err = engine.New(h.mem, cfg,
		engine.WithObserver(engine.NewSlogObserver(ro.logger)),
		engine.WithRequestIDs(h.ids),
	)
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}
	defer h.eng.Close()

	result := NewResult()
	for i, step := range scenario.Steps {
		ev, err := h.execute(ctx, i+1, step)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
		result.AddEvent(ev)
		for _, msg := range checkExpect(ev, step.Expect) {
			result.AddError(fmt.Sprintf("step %d (%s): %s", ev.Step, ev.Kind, msg))
		}
	}

	result.Stats = h.eng.Stats()
	if h.eng.Status() == engine.StatusConnected {
		tables, err := h.eng.TableCounts(ctx)
		if err != nil {
			return nil, fmt.Errorf("count tables: %w", err)
		}
		result.Tables = tables
	}

	actx := &AssertionContext{Ctx: ctx, Store: h.eng.Store(), Stats: result.Stats}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

// anchor returns the identifier for name, creating it on first use.
func (h *Harness) anchor(name string) (string, wm.Identifier) {
	if name == "" {
		name = "R"
	}
	if id, ok := h.anchors[name]; ok {
		return name, id
	}
	letter := strings.ToUpper(name[:1])[0]
	id := h.mem.NewIdentifier(letter)
	h.anchors[name] = id
	return name, id
}

func (h *Harness) execute(ctx context.Context, n int, step Step) (TraceEvent, error) {
	if step.Tick != nil {
		return h.tick(ctx, n, *step.Tick)
	}

	ev := TraceEvent{Step: n, Kind: step.Command}
	cmd := engine.Command{Kind: engine.CommandKind(step.Command)}
	var anchor wm.Identifier
	if cmd.Kind != engine.CommandStoreLTI {
		ev.Anchor, anchor = h.anchor(step.Anchor)
		cmd.Anchor = anchor
	}
	if step.Command == CommandRelease {
		h.eng.Release(anchor)
		return ev, nil
	}

	switch cmd.Kind {
	case engine.CommandRetrieve:
		cmd.Episode = step.Episode
		ev.Args = fmt.Sprintf("episode=%d", step.Episode)
	case engine.CommandQuery:
		req, err := h.queryRequest(step)
		if err != nil {
			return ev, err
		}
		cmd.Query = req
		ev.Args = queryArgs(step)
	case engine.CommandStoreLTI:
		v, err := wm.ParseValue(step.LTI)
		if err != nil {
			return ev, err
		}
		id, ok := v.(wm.Identifier)
		if !ok {
			return ev, fmt.Errorf("lti %q is not an identifier", step.LTI)
		}
		cmd.LTI = id
		ev.Args = "lti=" + step.LTI
	}

	res := h.eng.Execute(ctx, cmd)
	h.logger.Debug("command executed", "step", n, "command", step.Command, "status", res.Status.String())
	ev.RequestID = res.RequestID
	ev.Status = res.Status.String()
	if res.Err != nil {
		ev.Code = codeOf(res.Err)
		return ev, nil
	}
	ev.Episode = res.Episode
	if cmd.Kind == engine.CommandStoreLTI {
		return ev, nil
	}
	ev.Installed = len(res.Installed)
	ev.Orphans = res.Orphans
	if cmd.Kind == engine.CommandQuery {
		ev.Match = &Match{
			CueSize:     res.CueSize,
			Cardinality: res.MatchCardinality,
			Score:       res.MatchScore,
			Normalized:  res.NormalizedScore,
			GraphMatch:  res.GraphMatch,
		}
	}
	ev.WM = wm.RenderLines(h.mem, anchor)
	return ev, nil
}

func (h *Harness) tick(ctx context.Context, n int, text string) (TraceEvent, error) {
	ev := TraceEvent{Step: n, Kind: KindTick}
	triples, err := wm.Parse(text)
	if err != nil {
		return ev, err
	}
	h.mem.Sync(triples)

	rep, err := h.eng.AddEpisode(ctx)
	if err != nil {
		h.logger.Warn("tick failed", "step", n, "error", err)
		ev.Status = engine.StatusFailure.String()
		ev.Code = codeStore
		return ev, nil
	}
	ev.Status = engine.StatusSuccess.String()
	ev.Episode = rep.Episode
	ev.Report = &rep
	return ev, nil
}

// queryRequest asserts the cues into working memory.
func (h *Harness) queryRequest(step Step) (engine.QueryRequest, error) {
	req := engine.QueryRequest{
		Before:   step.Before,
		After:    step.After,
		Prohibit: step.Prohibit,
	}
	var err error
	if req.Pos, err = h.mem.AddText(step.Pos); err != nil {
		return req, fmt.Errorf("pos cue: %w", err)
	}
	if step.Neg != "" {
		if req.Neg, err = h.mem.AddText(step.Neg); err != nil {
			return req, fmt.Errorf("neg cue: %w", err)
		}
	}
	return req, nil
}

func queryArgs(step Step) string {
	var parts []string
	if step.Neg != "" {
		parts = append(parts, "neg")
	}
	if step.Before > 0 {
		parts = append(parts, fmt.Sprintf("before=%d", step.Before))
	}
	if step.After > 0 {
		parts = append(parts, fmt.Sprintf("after=%d", step.After))
	}
	if len(step.Prohibit) > 0 {
		eps := make([]string, len(step.Prohibit))
		for i, ep := range step.Prohibit {
			eps[i] = strconv.FormatInt(ep, 10)
		}
		parts = append(parts, "prohibit="+strings.Join(eps, ","))
	}
	return strings.Join(parts, " ")
}

func codeOf(err error) string {
	if code := engine.Code(err); code != "" {
		return string(code)
	}
	return codeStore
}

// checkExpect returns one message per unmet expectation.
func checkExpect(ev TraceEvent, want *Expect) []string {
	if want == nil {
		return nil
	}
	var errs []string
	fail := func(field string, want, got any) {
		errs = append(errs, fmt.Sprintf("expected %s %v, got %v", field, want, got))
	}

	if want.Status != "" && want.Status != ev.Status {
		fail("status", want.Status, ev.Status)
	}
	if want.Code != "" && want.Code != ev.Code {
		fail("code", want.Code, ev.Code)
	}
	if want.Episode != nil && *want.Episode != ev.Episode {
		fail("episode", *want.Episode, ev.Episode)
	}
	if want.Orphans != nil && *want.Orphans != ev.Orphans {
		fail("orphans", *want.Orphans, ev.Orphans)
	}
	if want.WM != nil && !slices.Equal(want.WM, ev.WM) {
		fail("wm", want.WM, ev.WM)
	}

	var m Match
	if ev.Match != nil {
		m = *ev.Match
	}
	if want.Cardinality != nil && *want.Cardinality != m.Cardinality {
		fail("cardinality", *want.Cardinality, m.Cardinality)
	}
	if want.GraphMatch != nil && *want.GraphMatch != m.GraphMatch {
		fail("graph_match", *want.GraphMatch, m.GraphMatch)
	}

	var r engine.EpisodeReport
	if ev.Report != nil {
		r = *ev.Report
	}
	counts := []struct {
		name string
		want *int
		got  int
	}{
		{"nodes_created", want.NodesCreated, r.NodesCreated},
		{"edges_created", want.EdgesCreated, r.EdgesCreated},
		{"activated", want.Activated, r.Activated},
		{"closed", want.Closed, r.Closed},
		{"pool_reuses", want.PoolReuses, r.PoolReuses},
	}
	for _, c := range counts {
		if c.want != nil && *c.want != c.got {
			fail(c.name, *c.want, c.got)
		}
	}
	return errs
}
