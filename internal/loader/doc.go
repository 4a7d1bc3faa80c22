// Package loader makes sure an external mapping library is loaded into the
// process exactly once, no matter how many components ask for it at the same
// time. Concurrent callers share the in-flight attempt; a failed attempt is
// not cached unless the loader was built with WithPermanentFailure.
package loader
