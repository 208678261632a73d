package meterz

import (
	"errors"
	"testing"
	"time"

	"github.com/zoobzio/clockz"
)

func TestBudgetConsume(t *testing.T) {
	budget := NewBudget(1000)

	if err := budget.Consume(250); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if got := budget.Remaining(); got != 750 {
		t.Errorf("Expected 750 remaining, got %d", got)
	}
	if got := budget.Consumed(); got != 250 {
		t.Errorf("Expected 250 consumed, got %d", got)
	}
}

func TestBudgetExhausted(t *testing.T) {
	budget := NewBudget(100)

	err := budget.Consume(101)
	if !errors.Is(err, ErrBudgetExhausted) {
		t.Fatalf("Expected ErrBudgetExhausted, got %v", err)
	}
	if got := budget.Remaining(); got != 0 {
		t.Errorf("Expected budget drained to 0, got %d", got)
	}
}

func TestBudgetQueryCost(t *testing.T) {
	budget := NewBudget(1000)
	budget.SetQueryCost(100)

	first := budget.Remaining()
	second := budget.Remaining()

	if first != 900 {
		t.Errorf("Expected first reading 900, got %d", first)
	}
	if second != 800 {
		t.Errorf("Expected second reading 800, got %d", second)
	}

	// Query cost saturates at zero.
	budget.SetQueryCost(5000)
	if got := budget.Remaining(); got != 0 {
		t.Errorf("Expected 0 after oversized query cost, got %d", got)
	}
}

func TestBudgetReset(t *testing.T) {
	budget := NewBudget(500)
	_ = budget.Consume(300)
	budget.Reset()

	if got := budget.Remaining(); got != 500 {
		t.Errorf("Expected reset budget at 500, got %d", got)
	}
}

func TestCounterFunc(t *testing.T) {
	readings := []uint64{30, 20, 10}
	i := 0
	counter := CounterFunc(func() uint64 {
		v := readings[i]
		i++
		return v
	})

	for _, want := range readings {
		if got := counter.Remaining(); got != want {
			t.Errorf("Expected %d, got %d", want, got)
		}
	}
}

func TestDeadlineCounter(t *testing.T) {
	clock := clockz.NewFakeClock()
	counter := NewDeadlineCounterWithClock(clock, time.Second)

	if got := counter.Remaining(); got != uint64(time.Second) {
		t.Errorf("Expected %d remaining, got %d", uint64(time.Second), got)
	}

	clock.Advance(300 * time.Millisecond)
	if got := counter.Remaining(); got != uint64(700*time.Millisecond) {
		t.Errorf("Expected %d remaining, got %d", uint64(700*time.Millisecond), got)
	}

	clock.Advance(2 * time.Second)
	if got := counter.Remaining(); got != 0 {
		t.Errorf("Expected 0 after deadline, got %d", got)
	}
}

func TestDeadlineCounterMeasuresWork(t *testing.T) {
	clock := clockz.NewFakeClock()
	counter := NewDeadlineCounterWithClock(clock, time.Minute)
	collector := NewCollector(0)
	meter := New(counter, collector)

	_ = meter.Measure("slow", func() error {
		clock.Advance(250 * time.Millisecond)
		return nil
	})

	trace, err := Reconstruct(collector.Lines())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if got := trace.Roots[0].Gross(); got != uint64(250*time.Millisecond) {
		t.Errorf("Expected gross %d ns, got %d", uint64(250*time.Millisecond), got)
	}
}
