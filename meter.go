package meterz

// RecordHandler is called after a bracket record has been emitted.
type RecordHandler func(record Record)

type handlerEntry struct {
	handler RecordHandler
	id      uint64
}

// Option configures a Meter.
type Option func(*Meter)

// WithLineLimit imposes a per-line limit in addition to any limit the sink
// reports through Limiter.
func WithLineLimit(limit int) Option {
	return func(m *Meter) {
		m.lineLimit = limit
	}
}

// Meter brackets work with counter snapshots for one execution.
// Meter is NOT safe for concurrent use: the executions it models are
// single-threaded and their records must leave in program order.
//
//nolint:govet // Field order optimized for functionality over memory
type Meter struct {
	handlers  []handlerEntry
	panicHook func(handlerID uint64, r interface{})
	counter   Counter
	emitter   *Emitter
	nextID    uint64
	sequence  int
	depth     int
	lineLimit int
}

// New creates a meter reading counter and writing to sink.
// Both are explicit handles so a simulated host can stand in for a real one.
func New(counter Counter, sink Sink, opts ...Option) *Meter {
	m := &Meter{
		handlers: make([]handlerEntry, 0),
		counter:  counter,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.emitter = NewEmitter(sink, m.lineLimit)
	return m
}

// Enter opens a guard for label and emits its Enter record.
// Close it with Exit, normally deferred:
//
//	defer meter.Enter("transfer").Exit()
//
// Enter panics with a *LineError if label cannot be carried by the channel
// intact; that happens before any line is written.
func (m *Meter) Enter(label Label) *Guard {
	open, closing, err := m.emitter.Frame(label)
	if err != nil {
		panic(err)
	}

	n := m.emitter.EmitEnter(open, m.counter)
	m.depth++
	m.emit(Record{Kind: Enter, Label: label, Counter: n})

	return &Guard{
		meter:   m,
		label:   label,
		closing: closing,
		enter:   n,
	}
}

// Measure runs work inside a guard labelled label and returns work's error
// unchanged. The Exit record is emitted on every path out of work,
// including a panic, which then continues to unwind.
func (m *Meter) Measure(label Label, work func() error) error {
	defer m.Enter(label).Exit()
	return work()
}

// MeasureValue is Measure for work that also produces a value.
func MeasureValue[T any](m *Meter, label Label, work func() (T, error)) (T, error) {
	defer m.Enter(label).Exit()
	return work()
}

// Depth returns the number of open guards.
func (m *Meter) Depth() int {
	return m.depth
}

// Records returns the number of bracket records emitted so far.
func (m *Meter) Records() int {
	return m.sequence
}

// OnRecord registers a handler called synchronously after every record.
func (m *Meter) OnRecord(handler RecordHandler) uint64 {
	if handler == nil {
		return 0
	}

	m.nextID++
	m.handlers = append(m.handlers, handlerEntry{
		id:      m.nextID,
		handler: handler,
	})

	return m.nextID
}

// RemoveHandler removes a handler by ID.
func (m *Meter) RemoveHandler(id uint64) {
	// Preserve order
	for i, h := range m.handlers {
		if h.id == id {
			copy(m.handlers[i:], m.handlers[i+1:])
			m.handlers = m.handlers[:len(m.handlers)-1]
			return
		}
	}
}

// SetPanicHook sets a function to be called when a handler panics.
func (m *Meter) SetPanicHook(hook func(handlerID uint64, r interface{})) {
	m.panicHook = hook
}

// emit stamps the record with its sequence number and runs the handlers.
func (m *Meter) emit(record Record) {
	record.Sequence = m.sequence
	m.sequence++

	if len(m.handlers) == 0 {
		return
	}

	// Handlers may remove themselves.
	handlers := make([]handlerEntry, len(m.handlers))
	copy(handlers, m.handlers)
	for _, h := range handlers {
		m.safeCall(h, record)
	}
}

func (m *Meter) safeCall(entry handlerEntry, record Record) {
	defer func() {
		if r := recover(); r != nil {
			if m.panicHook != nil {
				m.panicHook(entry.id, r)
			}
		}
	}()
	entry.handler(record)
}
