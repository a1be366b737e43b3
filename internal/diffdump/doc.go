// Package diffdump renders unified diffs between two Node values, used by
// the ApplyCache driver to show how the free-variable set changed between
// two successive FVMismatch attempts.
//
// The code in this package builds on top of https://github.com/andreyvit/diff,
// which generates line diffs (with unlimited context lines) on top of the word
// diffs produced by the diffmatchpatch package
// (https://github.com/sergi/go-diff).
//
// This is not GNU-diff-equivalent: it is not smart about reordered lines, but
// that is not a concern for the short dependency summaries it renders.
package diffdump
