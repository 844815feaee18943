package engine

import (
	"context"
	"fmt"

	"github.com/roach88/epmem/internal/rit"
	"github.com/roach88/epmem/internal/wm"
)

// retrieval is what an anchor currently has installed.
type retrieval struct {
	episode int64
	wmes    []wm.WME
}

// installation is one episode rebuilt into working memory.
type installation struct {
	episode int64
	wmes    []wm.WME
	// ids maps identifier ids to the identifiers that now stand for them.
	// RootID maps to the anchor.
	ids     map[int64]wm.Identifier
	orphans int
}

// episodeExists reports whether episode was recorded.
func (e *Engine) episodeExists(ctx context.Context, episode int64) (bool, error) {
	_, ok, err := e.st.Int64(ctx, timeExistsSQL, episode)
	if err != nil {
		return false, fmt.Errorf("lookup episode %d: %w", episode, err)
	}
	return ok, nil
}

// facts returns (parent, attr, value) of every fact of one kind holding at
// episode, ordered by parent.
func (e *Engine) facts(ctx context.Context, f factSQL, tree *rit.Tree, episode int64) ([][]int64, error) {
	if err := rit.ClearLeftRight(ctx, e.st); err != nil {
		return nil, err
	}
	if err := tree.PrepLeftRight(ctx, episode, episode); err != nil {
		return nil, err
	}
	rows, err := e.st.Int64s(ctx, 3, f.episode, episode, episode, episode, episode)
	if clearErr := rit.ClearLeftRight(ctx, e.st); err == nil {
		err = clearErr
	}
	if err != nil {
		return nil, fmt.Errorf("load %s facts of episode %d: %w", f.tables.kind, episode, err)
	}
	return rows, nil
}

// install rebuilds episode under anchor. The caller has checked that the
// episode exists.
//
// Edges are attached in ascending q0 order. An edge whose q0 has no
// identifier yet is retried after the others; whatever is still unattached
// when a full pass makes no progress is dropped and counted as orphaned.
func (e *Engine) install(ctx context.Context, episode int64, anchor wm.Identifier) (*installation, error) {
	edges, err := e.facts(ctx, edgeSQL, e.edges, episode)
	if err != nil {
		return nil, err
	}
	nodes, err := e.facts(ctx, nodeSQL, e.nodes, episode)
	if err != nil {
		return nil, err
	}

	inst := &installation{
		episode: episode,
		ids:     map[int64]wm.Identifier{RootID: anchor},
	}

	pending := edges
	for len(pending) > 0 {
		var orphans [][]int64
		for _, f := range pending {
			parent, ok := inst.ids[f[0]]
			if !ok {
				orphans = append(orphans, f)
				continue
			}
			attr, acceptable, err := e.attribute(ctx, f[1])
			if err != nil {
				return nil, err
			}
			child := e.installedIdentifier(inst, attr, f[2])
			inst.wmes = append(inst.wmes, e.graph.Add(parent, attr, child, acceptable))
		}
		if len(orphans) == len(pending) {
			inst.orphans += len(orphans)
			break
		}
		pending = orphans
	}

	for _, f := range nodes {
		parent, ok := inst.ids[f[0]]
		if !ok {
			inst.orphans++
			continue
		}
		attr, acceptable, err := e.attribute(ctx, f[1])
		if err != nil {
			return nil, err
		}
		value, err := e.hashes.Value(ctx, f[2])
		if err != nil {
			return nil, err
		}
		inst.wmes = append(inst.wmes, e.graph.Add(parent, attr, value, acceptable))
	}

	e.stats.OrphansDropped += int64(inst.orphans)
	e.observer.EpisodeInstalled(anchor, episode, len(inst.wmes), inst.orphans)
	return inst, nil
}

// installedIdentifier returns the identifier standing for q1, creating it on
// first sight. Long-term identifiers are looked up, never created afresh.
func (e *Engine) installedIdentifier(inst *installation, attr wm.Value, q1 int64) wm.Identifier {
	if id, ok := inst.ids[q1]; ok {
		return id
	}
	var id wm.Identifier
	if rec, ok := e.ltis[q1]; ok {
		id, _ = e.graph.LongTermIdentifier(rec.key.letter, rec.key.number)
	} else {
		id = e.graph.NewIdentifier(wm.IdentifierLetter(attr))
	}
	inst.ids[q1] = id
	return id
}

// attribute decodes an attribute hash.
func (e *Engine) attribute(ctx context.Context, w int64) (wm.Value, bool, error) {
	if w == HashAcceptable {
		return wm.Sym("operator"), true, nil
	}
	v, err := e.hashes.Value(ctx, w)
	if err != nil {
		return nil, false, err
	}
	return v, false, nil
}
