// Package rit implements the Range-Interval-Tree used to index when facts
// held.
//
// A closed interval [start, end] is stored as one row labelled with its fork
// node in an implicit bisection tree. Finding every interval that covers a
// time becomes two index scans: labels on the search path below the time
// (check end) and labels above it (check start). The labels of a query's
// search path are written to the rit_left_nodes and rit_right_nodes scratch
// tables so the scans can be joined in SQL.
//
// Layout is the pure arithmetic. Tree persists a Layout per Axis.
package rit
