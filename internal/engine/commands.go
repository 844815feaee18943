package engine

import (
	"context"
	"fmt"
	"slices"

	"github.com/roach88/epmem/internal/wm"
)

// CommandKind names an engine command.
type CommandKind string

const (
	CommandRetrieve CommandKind = "retrieve"
	CommandNext     CommandKind = "next"
	CommandPrevious CommandKind = "previous"
	CommandQuery    CommandKind = "query"
	CommandStoreLTI CommandKind = "store"
)

// Command is a structured request. Anchor is the identifier retrieved
// episodes are installed under; it is unused by CommandStoreLTI.
type Command struct {
	Kind    CommandKind
	Anchor  wm.Identifier
	Episode int64
	Query   QueryRequest
	LTI     wm.Identifier
}

// QueryRequest is a cue-based retrieval.
type QueryRequest struct {
	// Pos is the root of the positive cue. Required.
	Pos wm.Identifier
	// Neg is the root of the negative cue, or the zero Identifier.
	Neg wm.Identifier
	// Before, when positive, limits the search to episodes < Before.
	Before int64
	// After limits the search to episodes > After.
	After int64
	// Prohibit lists episodes that are never returned.
	Prohibit []int64
}

// ResultStatus is the outcome of a command.
type ResultStatus int

const (
	StatusSuccess ResultStatus = iota
	StatusFailure
	StatusBadCommand
)

func (s ResultStatus) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFailure:
		return "failure"
	case StatusBadCommand:
		return "bad-cmd"
	default:
		return fmt.Sprintf("result(%d)", int(s))
	}
}

// Result reports a command outcome. The query fields are set by
// CommandQuery only.
type Result struct {
	RequestID string       `json:"request_id"`
	Command   CommandKind  `json:"command"`
	Status    ResultStatus `json:"-"`
	Err       error        `json:"-"`
	Episode   int64        `json:"episode,omitempty"`
	Installed []wm.WME     `json:"-"`
	Orphans   int          `json:"orphans,omitempty"`

	CueSize          int     `json:"cue_size,omitempty"`
	MatchCardinality int     `json:"match_cardinality,omitempty"`
	MatchScore       float64 `json:"match_score,omitempty"`
	NormalizedScore  float64 `json:"normalized_match_score,omitempty"`
	GraphMatch       bool    `json:"graph_match,omitempty"`
	// Mapping sends each cue identifier to the installed identifier it was
	// matched with. Set only after a successful graph-match.
	Mapping map[wm.Identifier]wm.Identifier `json:"-"`
}

// Retrieve installs episode under anchor.
func (e *Engine) Retrieve(ctx context.Context, anchor wm.Identifier, episode int64) Result {
	return e.Execute(ctx, Command{Kind: CommandRetrieve, Anchor: anchor, Episode: episode})
}

// Next installs the episode after the one anchor last retrieved.
func (e *Engine) Next(ctx context.Context, anchor wm.Identifier) Result {
	return e.Execute(ctx, Command{Kind: CommandNext, Anchor: anchor})
}

// Previous installs the episode before the one anchor last retrieved.
func (e *Engine) Previous(ctx context.Context, anchor wm.Identifier) Result {
	return e.Execute(ctx, Command{Kind: CommandPrevious, Anchor: anchor})
}

// Query installs the episode that best matches req under anchor.
func (e *Engine) Query(ctx context.Context, anchor wm.Identifier, req QueryRequest) Result {
	return e.Execute(ctx, Command{Kind: CommandQuery, Anchor: anchor, Query: req})
}

// Execute runs one command. Errors are reported in the Result, never by
// panicking: bad input yields StatusBadCommand, everything else that fails
// yields StatusFailure.
func (e *Engine) Execute(ctx context.Context, cmd Command) Result {
	res := Result{RequestID: e.requests.Generate(), Command: cmd.Kind}
	err := e.execute(ctx, cmd, &res)
	switch {
	case err == nil:
		res.Status = StatusSuccess
	case IsBadCommand(err):
		res.Status = StatusBadCommand
	default:
		res.Status = StatusFailure
	}
	res.Err = err
	e.observer.CommandCompleted(res)
	return res
}

func (e *Engine) execute(ctx context.Context, cmd Command, res *Result) error {
	switch cmd.Kind {
	case CommandRetrieve, CommandNext, CommandPrevious, CommandQuery:
		if cmd.Anchor.IsZero() {
			return badCommand("%s needs an anchor", cmd.Kind)
		}
	case CommandStoreLTI:
	default:
		return badCommand("unknown command %q", cmd.Kind)
	}
	if err := e.ready(ctx); err != nil {
		return err
	}

	if cmd.Kind == CommandStoreLTI {
		return e.storeLTI(ctx, cmd.LTI, res)
	}

	e.retract(cmd.Anchor)
	var err error
	switch cmd.Kind {
	case CommandRetrieve:
		err = e.retrieve(ctx, cmd.Anchor, cmd.Episode, res)
	case CommandNext:
		err = e.step(ctx, cmd.Anchor, nextTimeSQL, res)
	case CommandPrevious:
		err = e.step(ctx, cmd.Anchor, prevTimeSQL, res)
	case CommandQuery:
		err = e.query(ctx, cmd.Anchor, cmd.Query, res)
	}
	if err != nil && !IsBadCommand(err) && !IsNoMemory(err) && !IsNoMatch(err) {
		e.fail(err)
	}
	return err
}

func (e *Engine) retrieve(ctx context.Context, anchor wm.Identifier, episode int64, res *Result) error {
	ok, err := e.episodeExists(ctx, episode)
	if err != nil {
		return err
	}
	if !ok {
		return noMemory("episode %d was not recorded", episode)
	}
	_, err = e.installFor(ctx, anchor, episode, res)
	return err
}

// step moves anchor to the neighbouring episode selected by query.
func (e *Engine) step(ctx context.Context, anchor wm.Identifier, query string, res *Result) error {
	r, ok := e.retrievals[anchor]
	if !ok || r.episode == 0 {
		return noMemory("%s has no current episode", anchor)
	}
	episode, ok, err := e.st.Int64(ctx, query, r.episode)
	if err != nil {
		return fmt.Errorf("step from episode %d: %w", r.episode, err)
	}
	if !ok {
		return noMemory("no episode next to %d", r.episode)
	}
	_, err = e.installFor(ctx, anchor, episode, res)
	return err
}

func (e *Engine) installFor(ctx context.Context, anchor wm.Identifier, episode int64, res *Result) (*installation, error) {
	inst, err := e.install(ctx, episode, anchor)
	if err != nil {
		return nil, err
	}
	e.retrievals[anchor] = &retrieval{episode: episode, wmes: inst.wmes}
	res.Episode = episode
	res.Installed = inst.wmes
	res.Orphans = inst.orphans
	return inst, nil
}

func (e *Engine) query(ctx context.Context, anchor wm.Identifier, req QueryRequest, res *Result) error {
	if req.Pos.IsZero() {
		return badCommand("query has no positive cue")
	}
	if req.After < 0 {
		return badCommand("after %d is negative", req.After)
	}
	if req.Before != 0 && req.Before <= req.After {
		return badCommand("before %d is not after %d", req.Before, req.After)
	}

	q, err := e.compileCue(ctx, req.Pos, req.Neg, !req.Neg.IsZero())
	if err != nil {
		return err
	}
	res.CueSize = len(q.leaves)

	t0 := e.clock.Current()
	if req.Before > 0 {
		t0 = min(t0, req.Before-1)
	}
	s := e.newSweep(q, t0, req.After, req.Prohibit)
	best, err := s.run(ctx)
	e.stats.Queries++
	e.stats.LastConsidered = int64(s.considered)
	e.stats.LastGraphMatchAttempts = int64(s.gmAttempts)
	if err != nil {
		return err
	}
	if best == nil {
		return noMatch("no episode matches cue %s", req.Pos)
	}

	inst, err := e.installFor(ctx, anchor, best.episode, res)
	if err != nil {
		return err
	}
	res.MatchCardinality = best.cardinality
	res.MatchScore = best.score
	if q.perfectScore != 0 {
		res.NormalizedScore = best.score / q.perfectScore
	}
	res.GraphMatch = best.graphMatched
	if best.graphMatched {
		res.Mapping = make(map[wm.Identifier]wm.Identifier, len(best.bindings))
		for sym, node := range best.bindings {
			if id, ok := inst.ids[node]; ok {
				res.Mapping[sym] = id
			}
		}
	}
	return nil
}

// Release retracts the WMEs installed for anchor. The anchor keeps its
// position for Next and Previous.
func (e *Engine) Release(anchor wm.Identifier) {
	e.retract(anchor)
}

func (e *Engine) retract(anchor wm.Identifier) {
	r, ok := e.retrievals[anchor]
	if !ok {
		return
	}
	// Children before parents keeps every retraction reachable.
	for _, w := range slices.Backward(r.wmes) {
		e.graph.Remove(w)
	}
	r.wmes = nil
}
