// Package engine implements the flow interpreter: it executes the block bound
// to a node, recovers block failures, and resolves the next node either from
// an explicit directive or by first-match edge lookup.
package engine
