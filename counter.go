package meterz

import (
	"errors"
	"fmt"
	"time"

	"github.com/zoobzio/clockz"
)

// ErrBudgetExhausted is returned when a Budget cannot cover a charge.
var ErrBudgetExhausted = errors.New("meterz: budget exhausted")

// Counter reports the units of budget remaining in the current execution.
// Readings never increase within one execution.
type Counter interface {
	Remaining() uint64
}

// CounterFunc adapts a function to the Counter interface.
type CounterFunc func() uint64

// Remaining calls f.
func (f CounterFunc) Remaining() uint64 {
	return f()
}

// Budget simulates a host meter with a fixed unit limit.
// Budget is NOT safe for concurrent use; one Budget models one execution.
type Budget struct {
	limit     uint64
	remaining uint64
	queryCost uint64
}

// NewBudget creates a budget with limit units available.
func NewBudget(limit uint64) *Budget {
	return &Budget{
		limit:     limit,
		remaining: limit,
	}
}

// SetQueryCost sets the units charged by every Remaining call.
// Hosts charge for reading the meter; this models that tax.
func (b *Budget) SetQueryCost(cost uint64) {
	b.queryCost = cost
}

// Consume charges n units. If fewer than n remain the budget drains to zero
// and ErrBudgetExhausted is returned.
func (b *Budget) Consume(n uint64) error {
	if n > b.remaining {
		left := b.remaining
		b.remaining = 0
		return fmt.Errorf("%w: requested %d, remaining %d", ErrBudgetExhausted, n, left)
	}
	b.remaining -= n
	return nil
}

// Remaining charges the query cost and returns the units left afterwards.
func (b *Budget) Remaining() uint64 {
	if b.queryCost >= b.remaining {
		b.remaining = 0
	} else {
		b.remaining -= b.queryCost
	}
	return b.remaining
}

// Consumed returns the units spent so far without charging a query.
func (b *Budget) Consumed() uint64 {
	return b.limit - b.remaining
}

// Reset refills the budget for a new execution.
func (b *Budget) Reset() {
	b.remaining = b.limit
}

// DeadlineCounter meters wall-clock time. Remaining units are the
// nanoseconds left before the deadline, floored at zero.
type DeadlineCounter struct {
	deadline time.Time
	clock    clockz.Clock
}

// NewDeadlineCounter creates a counter that runs out after budget elapses.
// Uses the real clock for production behavior.
func NewDeadlineCounter(budget time.Duration) *DeadlineCounter {
	return NewDeadlineCounterWithClock(clockz.RealClock, budget)
}

// NewDeadlineCounterWithClock creates a deadline counter on the given clock.
// Enables clock injection for deterministic testing.
func NewDeadlineCounterWithClock(clock clockz.Clock, budget time.Duration) *DeadlineCounter {
	return &DeadlineCounter{
		deadline: clock.Now().Add(budget),
		clock:    clock,
	}
}

// Remaining returns the nanoseconds left before the deadline.
func (d *DeadlineCounter) Remaining() uint64 {
	left := d.deadline.Sub(d.clock.Now())
	if left <= 0 {
		return 0
	}
	return uint64(left)
}
