// Package engine hosts a single native engine runtime on one dedicated,
// OS-thread-pinned goroutine. Callers on any goroutine hand closures to that
// engine thread with Dispatch and await each result through a Future. The
// Host owns the at-most-one engine instance, its frame loop, the window
// registry, and the log broker.
package engine
