package wm

// WME is one working-memory element: the triple (ID ^Attr Value), optionally
// an acceptable preference, stamped with the timetag it was asserted under.
// WMEs are owned values; holding one does not pin anything in the graph.
type WME struct {
	Timetag    uint64
	ID         Identifier
	Attr       Value
	Value      Value
	Acceptable bool
}

// Triple returns the WME without its timetag.
func (w WME) Triple() Triple {
	return Triple{ID: w.ID, Attr: w.Attr, Value: w.Value, Acceptable: w.Acceptable}
}

func (w WME) String() string {
	return w.Triple().String()
}

// Triple is a WME that has not been asserted.
type Triple struct {
	ID         Identifier
	Attr       Value
	Value      Value
	Acceptable bool
}

func (t Triple) String() string {
	s := "(" + t.ID.String() + " ^" + t.Attr.String() + " " + t.Value.String()
	if t.Acceptable {
		s += " +"
	}
	return s + ")"
}

// Graph is the working-memory graph as seen by the episodic engine.
//
// The engine reads the graph breadth-first through Children and writes
// reconstructed episodes back through Add. Implementations are not required
// to be safe for concurrent use; the engine calls them from one goroutine.
type Graph interface {
	// Root is the top-level state identifier every episode is recorded from.
	Root() Identifier

	// Children returns the WMEs whose ID is id, in a stable order.
	Children(id Identifier) []WME

	// Add asserts (id ^attr value) and returns the new WME.
	Add(id Identifier, attr, value Value, acceptable bool) WME

	// Remove retracts a WME previously returned by Add or Children.
	// It reports whether the WME was present.
	Remove(w WME) bool

	// NewIdentifier allocates a short-term identifier that is not yet in use.
	NewIdentifier(letter byte) Identifier

	// LongTermIdentifier returns the long-term identifier with the given
	// letter and number, and whether it was already present in the graph.
	LongTermIdentifier(letter byte, number uint64) (Identifier, bool)
}
