package engine

import (
	"context"
	"fmt"

	"github.com/roach88/epmem/internal/store"
	"github.com/roach88/epmem/internal/wm"
)

type ltiKey struct {
	letter byte
	number uint64
}

// ltiRecord is a long-term identifier promotion. The identifier exists in
// the episodic store from episode time onward.
type ltiRecord struct {
	key  ltiKey
	time int64
}

func (r ltiRecord) identifier() wm.Identifier {
	return wm.Identifier{Letter: r.key.letter, Number: r.key.number, LongTerm: true}
}

func (e *Engine) loadLTIs(ctx context.Context) error {
	rows, err := e.st.Int64s(ctx, 4, ltiAllSQL)
	if err != nil {
		return fmt.Errorf("load ltis: %w", err)
	}
	for _, r := range rows {
		rec := ltiRecord{key: ltiKey{letter: byte(r[1]), number: uint64(r[2])}, time: r[3]}
		e.ltis[r[0]] = rec
		e.ltiIDs[rec.key] = r[0]
	}
	return nil
}

// ltiID returns the identifier id of a promoted long-term identifier.
func (e *Engine) ltiID(id wm.Identifier) (int64, bool) {
	q, ok := e.ltiIDs[ltiKey{letter: id.Letter, number: id.Number}]
	return q, ok
}

// promote records id as a long-term identifier at episode time, unless it
// already is one. It returns the identifier id.
func (e *Engine) promote(ctx context.Context, id wm.Identifier, time int64) (int64, error) {
	if q, ok := e.ltiID(id); ok {
		return q, nil
	}
	q := e.nextID
	key := ltiKey{letter: id.Letter, number: id.Number}
	if _, err := e.st.Exec(ctx, ltiAddSQL, q, int64(key.letter), int64(key.number), time); err != nil {
		return 0, fmt.Errorf("promote %s: %w", id, err)
	}
	e.nextID++
	if err := e.st.SetVar(ctx, store.VarNextID, e.nextID); err != nil {
		return 0, err
	}
	e.ltis[q] = ltiRecord{key: key, time: time}
	e.ltiIDs[key] = q
	return q, nil
}

// StoreLTI promotes a long-term identifier explicitly. Its promotion time is
// the next episode to be recorded.
func (e *Engine) StoreLTI(ctx context.Context, id wm.Identifier) Result {
	return e.Execute(ctx, Command{Kind: CommandStoreLTI, LTI: id})
}

func (e *Engine) storeLTI(ctx context.Context, id wm.Identifier, res *Result) error {
	if !id.LongTerm {
		return badCommand("%s is not a long-term identifier", id)
	}
	time := e.clock.Pending()
	if q, ok := e.ltiID(id); ok {
		res.Episode = e.ltis[q].time
		return nil
	}
	if _, err := e.promote(ctx, id, time); err != nil {
		e.fail(err)
		return err
	}
	res.Episode = time
	return nil
}
