package meterz

// Guard is one open measurement. It is released by Exit.
type Guard struct {
	meter   *Meter
	label   Label
	closing string
	enter   uint64
	done    bool
}

// Exit reads the counter and emits the Exit record.
// Safe to call multiple times - subsequent calls are no-ops.
func (g *Guard) Exit() {
	// Prevent double-emitting.
	if g.done {
		return
	}
	g.done = true

	m := g.meter
	n := m.emitter.EmitExit(g.closing, m.counter)
	m.depth--
	m.emit(Record{Kind: Exit, Label: g.label, Counter: n})
}

// Label returns the guard's label.
func (g *Guard) Label() Label {
	return g.label
}

// EnterCounter returns the counter reading taken on entry.
func (g *Guard) EnterCounter() uint64 {
	return g.enter
}

// Done reports whether Exit has run.
func (g *Guard) Done() bool {
	return g.done
}
