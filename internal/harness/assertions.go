package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/roach88/epmem/internal/engine"
	"github.com/roach88/epmem/internal/store"
)

// validIdentifier matches valid SQL identifiers (table/column names).
// Table and column names cannot be bound as parameters, so they are
// checked against this pattern before interpolation.
var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  %s\n", event)
		}
	}

	return buf.String()
}

// eventMatches reports whether event satisfies every selector set on a.
func eventMatches(event TraceEvent, a Assertion) bool {
	if event.Kind != a.Command {
		return false
	}
	if a.Status != "" && event.Status != a.Status {
		return false
	}
	if a.Code != "" && event.Code != a.Code {
		return false
	}
	if a.Episode != nil && event.Episode != *a.Episode {
		return false
	}
	return true
}

func describeSelector(a Assertion) string {
	parts := []string{a.Command}
	if a.Status != "" {
		parts = append(parts, "status="+a.Status)
	}
	if a.Code != "" {
		parts = append(parts, "code="+a.Code)
	}
	if a.Episode != nil {
		parts = append(parts, fmt.Sprintf("episode=%d", *a.Episode))
	}
	return strings.Join(parts, " ")
}

// assertTranscriptContains checks that some event matches the selector.
func assertTranscriptContains(trace []TraceEvent, assertion Assertion) error {
	for _, event := range trace {
		if eventMatches(event, assertion) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTranscriptContains,
		Expected: describeSelector(assertion),
		Actual:   "not found in transcript",
		Trace:    trace,
	}
}

// assertTranscriptOrder checks that the commands appear in order.
// Other events may appear in between.
func assertTranscriptOrder(trace []TraceEvent, assertion Assertion) error {
	next := 0
	for _, event := range trace {
		if next < len(assertion.Commands) && event.Kind == assertion.Commands[next] {
			next++
		}
	}
	if next == len(assertion.Commands) {
		return nil
	}

	actual := make([]string, 0, len(trace))
	for _, event := range trace {
		actual = append(actual, event.Kind)
	}
	return &AssertionError{
		Type:     AssertTranscriptOrder,
		Expected: fmt.Sprintf("order %v", assertion.Commands),
		Actual:   fmt.Sprintf("%v (missing %q)", actual, assertion.Commands[next]),
		Trace:    trace,
	}
}

// assertTranscriptCount checks that exactly Count events match.
func assertTranscriptCount(trace []TraceEvent, assertion Assertion) error {
	n := 0
	for _, event := range trace {
		if eventMatches(event, assertion) {
			n++
		}
	}
	if n == assertion.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertTranscriptCount,
		Expected: fmt.Sprintf("%s exactly %d times", describeSelector(assertion), assertion.Count),
		Actual:   fmt.Sprintf("found %d times", n),
		Trace:    trace,
	}
}

// assertFinalState checks that exactly one row of the table matches Where
// and that it carries the expected values (subset semantics).
func assertFinalState(ctx context.Context, st *store.Store, assertion Assertion) error {
	query, whereArgs, err := selectSQL("*", assertion)
	if err != nil {
		return err
	}

	rows, err := st.Query(ctx, query, whereArgs...)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("query table %s", assertion.Table),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("get columns: %w", err)
	}

	if !rows.Next() {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("row in %s where %s", assertion.Table, formatWhereClause(assertion.Where)),
			Actual:   "row not found",
		}
	}

	values := make([]any, len(columns))
	valuePtrs := make([]any, len(columns))
	for i := range values {
		valuePtrs[i] = &values[i]
	}
	if err := rows.Scan(valuePtrs...); err != nil {
		return fmt.Errorf("scan row: %w", err)
	}

	if rows.Next() {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("exactly one row in %s where %s", assertion.Table, formatWhereClause(assertion.Where)),
			Actual:   "multiple rows matched (assertion is ambiguous)",
		}
	}

	actualRow := make(map[string]any, len(columns))
	for i, col := range columns {
		actualRow[col] = values[i]
	}

	keys := sortedKeys(assertion.Expect)
	for _, key := range keys {
		expectedValue := assertion.Expect[key]
		actualValue, exists := actualRow[key]
		if !exists {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("field %q not present in result columns: %v", key, columns),
			}
		}
		if !stateValuesEqual(expectedValue, actualValue) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q = %v (type %T)", key, expectedValue, expectedValue),
				Actual:   fmt.Sprintf("field %q = %v (type %T)", key, actualValue, actualValue),
			}
		}
	}
	return nil
}

// assertRowCount checks the number of rows matching Where.
func assertRowCount(ctx context.Context, st *store.Store, assertion Assertion) error {
	query, whereArgs, err := selectSQL("COUNT(*)", assertion)
	if err != nil {
		return err
	}
	n, _, err := st.Int64(ctx, query, whereArgs...)
	if err != nil {
		return &AssertionError{
			Type:     AssertRowCount,
			Expected: fmt.Sprintf("count rows of %s", assertion.Table),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}
	if n != int64(assertion.Count) {
		return &AssertionError{
			Type:     AssertRowCount,
			Expected: fmt.Sprintf("%d rows in %s where %s", assertion.Count, assertion.Table, formatWhereClause(assertion.Where)),
			Actual:   fmt.Sprintf("%d rows", n),
		}
	}
	return nil
}

// assertStat compares an engine counter, looked up by its JSON name.
func assertStat(stats engine.Stats, assertion Assertion) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("encode stats: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("decode stats: %w", err)
	}

	got, ok := fields[assertion.Stat].(float64)
	if !ok {
		return &AssertionError{
			Type:     AssertStat,
			Expected: fmt.Sprintf("numeric stat %q", assertion.Stat),
			Actual:   "no such stat",
		}
	}
	if got != *assertion.Value {
		return &AssertionError{
			Type:     AssertStat,
			Expected: fmt.Sprintf("%s = %v", assertion.Stat, *assertion.Value),
			Actual:   fmt.Sprintf("%s = %v", assertion.Stat, got),
		}
	}
	return nil
}

// selectSQL builds a parameterized SELECT over assertion.Table.
func selectSQL(columns string, assertion Assertion) (string, []any, error) {
	if assertion.Table == "" {
		return "", nil, fmt.Errorf("%s assertion requires table name", assertion.Type)
	}
	if !validIdentifier.MatchString(assertion.Table) {
		return "", nil, fmt.Errorf("invalid table name %q: must match pattern %s", assertion.Table, validIdentifier.String())
	}
	whereSQL, whereArgs, err := buildWhereClause(assertion.Where)
	if err != nil {
		return "", nil, err
	}
	query := fmt.Sprintf("SELECT %s FROM %s", columns, assertion.Table)
	if whereSQL != "" {
		query += " WHERE " + whereSQL
	}
	return query, whereArgs, nil
}

// buildWhereClause constructs a parameterized WHERE clause.
// Keys are sorted for determinism.
func buildWhereClause(where map[string]any) (string, []any, error) {
	if len(where) == 0 {
		return "", nil, nil
	}

	keys := sortedKeys(where)
	clauses := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))

	for _, key := range keys {
		if !validIdentifier.MatchString(key) {
			return "", nil, fmt.Errorf("invalid column name %q in where clause: must match pattern %s", key, validIdentifier.String())
		}
		clauses = append(clauses, fmt.Sprintf("%s = ?", key))
		args = append(args, toSQLValue(where[key]))
	}

	return strings.Join(clauses, " AND "), args, nil
}

// toSQLValue converts a YAML scalar to a SQL argument.
func toSQLValue(v any) any {
	switch val := v.(type) {
	case int:
		return int64(val)
	case string, int64, float64, bool:
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}

// formatWhereClause creates a human-readable description of WHERE conditions.
func formatWhereClause(where map[string]any) string {
	if len(where) == 0 {
		return "(no conditions)"
	}
	keys := sortedKeys(where)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, " AND ")
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// stateValuesEqual compares a YAML value with a value scanned from SQLite,
// which returns integers as int64, reals as float64 and text as string or
// []byte.
func stateValuesEqual(expected, actual any) bool {
	if expected == nil || actual == nil {
		return expected == nil && actual == nil
	}
	if b, ok := actual.([]byte); ok {
		actual = string(b)
	}

	switch exp := expected.(type) {
	case string:
		act, ok := actual.(string)
		return ok && exp == act
	case int:
		return numericEqual(float64(exp), actual)
	case int64:
		return numericEqual(float64(exp), actual)
	case float64:
		return numericEqual(exp, actual)
	case bool:
		switch act := actual.(type) {
		case bool:
			return exp == act
		case int64:
			return exp == (act != 0)
		}
		return false
	}
	return reflect.DeepEqual(expected, actual)
}

func numericEqual(exp float64, actual any) bool {
	switch act := actual.(type) {
	case int64:
		return exp == float64(act)
	case int:
		return exp == float64(act)
	case float64:
		return exp == act
	}
	return false
}

// AssertionContext provides the store and counters for assertions that
// look past the transcript.
type AssertionContext struct {
	Ctx   context.Context
	Store *store.Store
	Stats engine.Stats
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTranscriptContains:
			err = assertTranscriptContains(result.Trace, assertion)
		case AssertTranscriptOrder:
			err = assertTranscriptOrder(result.Trace, assertion)
		case AssertTranscriptCount:
			err = assertTranscriptCount(result.Trace, assertion)
		case AssertFinalState, AssertRowCount:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: %s requires database context", i, assertion.Type)
			} else if assertion.Type == AssertFinalState {
				err = assertFinalState(actx.Ctx, actx.Store, assertion)
			} else {
				err = assertRowCount(actx.Ctx, actx.Store, assertion)
			}
		case AssertStat:
			if actx == nil {
				err = fmt.Errorf("assertion[%d]: stat requires engine context", i)
			} else {
				err = assertStat(actx.Stats, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
