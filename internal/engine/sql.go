package engine

import "fmt"

const (
	maxTimeSQL    = `SELECT MAX(id) FROM times`
	timeExistsSQL = `SELECT id FROM times WHERE id = ?`
	nextTimeSQL   = `SELECT MIN(id) FROM times WHERE id > ?`
	prevTimeSQL   = `SELECT MAX(id) FROM times WHERE id < ?`
	addTimeSQL    = `INSERT INTO times (id) VALUES (?)`

	ltiAllSQL = `SELECT parent_id, letter, num, time_id FROM lti ORDER BY parent_id`
	ltiAddSQL = `INSERT INTO lti (parent_id, letter, num, time_id) VALUES (?, ?, ?, ?)`
)

// factTables names the tables and columns of one fact kind.
type factTables struct {
	kind   string
	unique string
	key    string
	parent string
	attr   string
	value  string
	now    string
	point  string
	rng    string
}

var (
	nodeTables = factTables{
		kind: "node", unique: "node_unique", key: "child_id",
		parent: "parent_id", attr: "attrib", value: "value",
		now: "node_now", point: "node_point", rng: "node_range",
	}
	edgeTables = factTables{
		kind: "edge", unique: "edge_unique", key: "parent_id",
		parent: "q0", attr: "w", value: "q1",
		now: "edge_now", point: "edge_point", rng: "edge_range",
	}
)

// factSQL is the statement set for one fact kind.
type factSQL struct {
	tables factTables

	find    string // (parent, attr, value) -> id
	add     string // parent, attr, value, last
	setLast string // last, id

	addNow   string // id, start
	delNow   string // id
	allNow   string // -> id, start
	addPoint string // id, start

	// episode selects (parent, attr, value) of every fact holding at one
	// episode, given the RIT scratch tables primed for it. Args: t, t, t, t.
	episode string

	// rows is the sweep's frontier cursor: facts under (parent, attr, value)
	// whose last > after, newest first. Args: parent, attr, value, after.
	rows string
	// rowsAny is rows without the value constraint.
	rowsAny string

	// spans selects [start, end] of one fact's occurrences that overlap
	// (after, upper]. Args: id, upper, after, id, upper, after, id, upper.
	spans string
}

const openEnd = "9223372036854775807"

func newFactSQL(t factTables) factSQL {
	cols := fmt.Sprintf("f.%s, f.%s, f.%s", t.parent, t.attr, t.value)
	return factSQL{
		tables: t,

		find:    fmt.Sprintf(`SELECT %s FROM %s WHERE %s = ? AND %s = ? AND %s = ?`, t.key, t.unique, t.parent, t.attr, t.value),
		add:     fmt.Sprintf(`INSERT INTO %s (%s, %s, %s, last) VALUES (?, ?, ?, ?)`, t.unique, t.parent, t.attr, t.value),
		setLast: fmt.Sprintf(`UPDATE %s SET last = ? WHERE %s = ?`, t.unique, t.key),

		addNow:   fmt.Sprintf(`INSERT INTO %s (id, start_episode_id) VALUES (?, ?)`, t.now),
		delNow:   fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, t.now),
		allNow:   fmt.Sprintf(`SELECT id, start_episode_id FROM %s ORDER BY id`, t.now),
		addPoint: fmt.Sprintf(`INSERT INTO %s (id, start_episode_id) VALUES (?, ?)`, t.point),

		episode: fmt.Sprintf(`SELECT %[1]s FROM %[2]s o, %[3]s f
			WHERE f.%[4]s = o.id AND o.start_episode_id <= ?
			UNION ALL
			SELECT %[1]s FROM %[5]s o, %[3]s f
			WHERE f.%[4]s = o.id AND o.start_episode_id = ?
			UNION ALL
			SELECT %[1]s FROM %[6]s o, rit_left_nodes lt, %[3]s f
			WHERE f.%[4]s = o.id AND o.rit_id BETWEEN lt.min AND lt.max AND o.end_episode_id >= ?
			UNION ALL
			SELECT %[1]s FROM %[6]s o, rit_right_nodes rt, %[3]s f
			WHERE f.%[4]s = o.id AND o.rit_id = rt.node AND o.start_episode_id <= ?
			ORDER BY 1, 2, 3`, cols, t.now, t.unique, t.key, t.point, t.rng),

		rows: fmt.Sprintf(`SELECT %s, %s, last FROM %s
			WHERE %s = ? AND %s = ? AND %s = ? AND last > ?
			ORDER BY last DESC, %s`, t.key, t.value, t.unique, t.parent, t.attr, t.value, t.key),
		rowsAny: fmt.Sprintf(`SELECT %s, %s, last FROM %s
			WHERE %s = ? AND %s = ? AND last > ?
			ORDER BY last DESC, %s`, t.key, t.value, t.unique, t.parent, t.attr, t.key),

		spans: fmt.Sprintf(`SELECT start_episode_id, end_episode_id FROM %[1]s
			WHERE id = ? AND start_episode_id <= ? AND end_episode_id > ?
			UNION ALL
			SELECT start_episode_id, start_episode_id FROM %[2]s
			WHERE id = ? AND start_episode_id <= ? AND start_episode_id > ?
			UNION ALL
			SELECT start_episode_id, %[4]s FROM %[3]s
			WHERE id = ? AND start_episode_id <= ?`, t.rng, t.point, t.now, openEnd),
	}
}

var (
	nodeSQL = newFactSQL(nodeTables)
	edgeSQL = newFactSQL(edgeTables)
)

// preparedStatements are pooled when the store is opened. Everything else is
// prepared on first use.
var preparedStatements = func() []string {
	qs := []string{
		maxTimeSQL, timeExistsSQL, nextTimeSQL, prevTimeSQL, addTimeSQL,
		ltiAllSQL, ltiAddSQL,
		hashGetSQL, hashAddSQL, hashValueSQL,
	}
	for _, f := range []factSQL{nodeSQL, edgeSQL} {
		qs = append(qs,
			f.find, f.add, f.setLast,
			f.addNow, f.delNow, f.allNow, f.addPoint,
			f.episode, f.rows, f.rowsAny, f.spans,
		)
	}
	return qs
}()
