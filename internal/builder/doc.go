// Package builder holds the draft of a trip being edited: an ordered set of
// days, each with an ordered, reorderable list of events, plus a dirty flag
// for unsaved-edit detection.
//
// A Store is owned by a single writer. It does no I/O and never fails:
// operations on days or events that do not exist are silent no-ops. Every
// mutation replaces the slices it touches instead of writing into them, so
// a State obtained earlier is never changed underneath its holder.
package builder
