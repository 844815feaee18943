package rit

import (
	"fmt"
	"math"
	"math/bits"
)

// OffsetUnset marks a layout that has not seen its first interval.
const OffsetUnset int64 = -1

// Layout is the shape of one RIT axis. Labels are integers relative to
// Offset. Label 0 is the root; positive labels hang off RightRoot and
// negative labels off LeftRoot, each a complete bisection tree:
//
//	RightRoot = 2^k covers [1, 2^(k+1)-1]
//	LeftRoot = -2^k covers [-(2^(k+1)-1), -1]; 0 means no left tree yet
//
// Every interval is stored under its fork: the first label on the bisection
// path from the root that lies inside the interval.
type Layout struct {
	Offset    int64 `json:"offset"`
	LeftRoot  int64 `json:"left_root"`
	RightRoot int64 `json:"right_root"`
	// MinStep is the smallest bisection step seen at a non-root fork.
	// Diagnostic only.
	MinStep int64 `json:"min_step"`
}

// NewLayout returns an empty layout.
func NewLayout() Layout {
	return Layout{
		Offset:    OffsetUnset,
		LeftRoot:  0,
		RightRoot: 1,
		MinStep:   math.MaxInt64,
	}
}

// Place records an interval of absolute times and returns the fork label.
// The first call fixes Offset at lower. The roots grow as needed, so labels
// handed out earlier stay valid.
func (l *Layout) Place(lower, upper int64) (int64, error) {
	if lower > upper {
		return 0, fmt.Errorf("rit: inverted interval [%d, %d]", lower, upper)
	}
	if l.Offset == OffsetUnset {
		l.Offset = lower
	}
	lo, hi := lower-l.Offset, upper-l.Offset
	l.grow(lo, hi)
	return l.fork(lo, hi)
}

// grow widens the root whose side must hold [lo, hi].
func (l *Layout) grow(lo, hi int64) {
	switch {
	case hi < 0:
		need := -(int64(1) << (bits.Len64(uint64(-lo)) - 1))
		if l.LeftRoot == 0 || need < l.LeftRoot {
			l.LeftRoot = need
		}
	case lo > 0:
		need := int64(1) << (bits.Len64(uint64(hi)) - 1)
		if need > l.RightRoot {
			l.RightRoot = need
		}
	}
}

func (l *Layout) fork(lo, hi int64) (int64, error) {
	if lo <= 0 && 0 <= hi {
		return 0, nil
	}
	node := l.RightRoot
	if hi < 0 {
		node = l.LeftRoot
	}
	step := abs(node) / 2
	for {
		switch {
		case hi < node:
			if step == 0 {
				return 0, fmt.Errorf("rit: no fork for [%d, %d]", lo, hi)
			}
			node -= step
		case lo > node:
			if step == 0 {
				return 0, fmt.Errorf("rit: no fork for [%d, %d]", lo, hi)
			}
			node += step
		default:
			if step < l.MinStep && step > 0 {
				l.MinStep = step
			}
			return node, nil
		}
		step /= 2
	}
}

// Path returns the labels visited while searching for the relative label x,
// starting with the root.
func (l *Layout) Path(x int64) []int64 {
	path := []int64{0}
	if x == 0 {
		return path
	}
	node := l.RightRoot
	if x < 0 {
		if l.LeftRoot == 0 {
			return path
		}
		node = l.LeftRoot
	}
	step := abs(node) / 2
	for {
		path = append(path, node)
		if x == node || step == 0 {
			return path
		}
		if x < node {
			node -= step
		} else {
			node += step
		}
		step /= 2
	}
}

// Span is an inclusive range of labels.
type Span struct {
	Min, Max int64
}

// Cover computes the scratch sets for the absolute query window
// [lower, upper]. Intervals overlapping the window are exactly:
//
//   - those forked at a label in some left span whose end >= lower
//   - those forked at a right label whose start <= upper
//
// The first left span is always the window itself.
func (l *Layout) Cover(lower, upper int64) (left []Span, right []int64) {
	if l.Offset == OffsetUnset {
		return nil, nil
	}
	lo, hi := lower-l.Offset, upper-l.Offset
	left = append(left, Span{Min: lo, Max: hi})

	seen := make(map[int64]bool)
	for _, x := range []int64{lo, hi} {
		for _, n := range l.Path(x) {
			if seen[n] {
				continue
			}
			seen[n] = true
			switch {
			case n < lo:
				left = append(left, Span{Min: n, Max: n})
			case n > hi:
				right = append(right, n)
			}
		}
	}
	return left, right
}

func abs(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}
