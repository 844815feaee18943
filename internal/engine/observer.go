package engine

import (
	"log/slog"

	"github.com/roach88/epmem/internal/wm"
)

// Observer receives engine events. Implementations must not call back into
// the engine.
type Observer interface {
	// EpisodeStored is called after a tick commits.
	EpisodeStored(r EpisodeReport)

	// EpisodeInstalled is called after an episode is rebuilt under anchor.
	EpisodeInstalled(anchor wm.Identifier, episode int64, wmes, orphans int)

	// EpisodeEvaluated is called for every episode a query scores.
	EpisodeEvaluated(episode int64, score float64, cardinality int, graphMatched bool)

	// CommandCompleted is called with every command result.
	CommandCompleted(r Result)

	// StoreFailed is called when a store failure puts the engine in the
	// problem state.
	StoreFailed(err error)
}

// EpisodeReport summarizes one recorded tick.
type EpisodeReport struct {
	Episode      int64 `json:"episode"`
	NodesCreated int   `json:"nodes_created"`
	EdgesCreated int   `json:"edges_created"`
	Activated    int   `json:"activated"`
	Closed       int   `json:"closed"`
	PoolReuses   int   `json:"pool_reuses"`
}

// NewSlogObserver returns an Observer that logs to logger, or to
// slog.Default() when logger is nil.
func NewSlogObserver(logger *slog.Logger) Observer {
	return slogObserver{logger: logger}
}

type slogObserver struct {
	logger *slog.Logger
}

func (o slogObserver) log() *slog.Logger {
	if o.logger != nil {
		return o.logger
	}
	return slog.Default()
}

func (o slogObserver) EpisodeStored(r EpisodeReport) {
	o.log().Debug("episode stored",
		"episode", r.Episode,
		"nodes_created", r.NodesCreated,
		"edges_created", r.EdgesCreated,
		"activated", r.Activated,
		"closed", r.Closed,
		"pool_reuses", r.PoolReuses,
	)
}

func (o slogObserver) EpisodeInstalled(anchor wm.Identifier, episode int64, wmes, orphans int) {
	o.log().Debug("episode installed", "anchor", anchor.String(), "episode", episode, "wmes", wmes)
	if orphans > 0 {
		o.log().Warn("dropped orphaned facts", "anchor", anchor.String(), "episode", episode, "orphans", orphans)
	}
}

func (o slogObserver) EpisodeEvaluated(episode int64, score float64, cardinality int, graphMatched bool) {
	o.log().Debug("episode evaluated",
		"episode", episode,
		"score", score,
		"cardinality", cardinality,
		"graph_matched", graphMatched,
	)
}

func (o slogObserver) CommandCompleted(r Result) {
	attrs := []any{
		"request_id", r.RequestID,
		"command", string(r.Command),
		"status", r.Status.String(),
		"episode", r.Episode,
	}
	if r.Err != nil {
		attrs = append(attrs, "error", r.Err)
	}
	o.log().Debug("command completed", attrs...)
}

func (o slogObserver) StoreFailed(err error) {
	o.log().Error("episodic store failed", "error", err)
}

// NopObserver discards every event.
type NopObserver struct{}

func (NopObserver) EpisodeStored(EpisodeReport) {}
func (NopObserver) EpisodeInstalled(wm.Identifier, int64, int, int) {}
func (NopObserver) EpisodeEvaluated(int64, float64, int, bool) {}
func (NopObserver) CommandCompleted(Result) {}
func (NopObserver) StoreFailed(error) {}

// Activation reports the activation of a cue WME. Queries with balance
// below 1 weight each cue leaf by it.
type Activation interface {
	Activation(w wm.WME) float64
}

// UniformActivation gives every WME activation 1.
type UniformActivation struct{}

// Activation implements Activation.
func (UniformActivation) Activation(wm.WME) float64 { return 1 }
