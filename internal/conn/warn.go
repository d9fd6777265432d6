package conn

// dispatchWarning delivers w to the configured sink, if any, rather than
// a process-global warning system. A nil sink silently drops the
// warning; the caller already logged it through zerolog before reaching
// here.
func dispatchWarning(sink func(CommandWarning), w CommandWarning) {
	if sink == nil {
		return
	}
	sink(w)
}
