package tickbuffer

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func units(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s-%d", prefix, i)
	}
	return out
}

func TestNewValidation(t *testing.T) {
	if _, err := New[string, int](0, time.Second); err == nil {
		t.Fatalf("zero insertBatchSize accepted")
	}
	if _, err := New[string, int](10, 0); err == nil {
		t.Fatalf("zero flushTimeout accepted")
	}
}

func TestAddUnitsRejectsEmptyAndDuplicate(t *testing.T) {
	b, err := New[string, int](10, time.Second)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := b.AddUnits(nil, "b1", 1); err == nil {
		t.Fatalf("empty slice accepted")
	}
	if err := b.AddUnits(units("a", 3), "b1", 1); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := b.AddUnits(units("a", 3), "b1", 1); !errors.Is(err, ErrDuplicateBatch) {
		t.Fatalf("expected ErrDuplicateBatch, got %v", err)
	}
}

// Three 100-unit batches against a flush size of 250: the first flush carries
// 250 units and completes exactly the first two batches; the second carries
// the remaining 50 and completes the third.
func TestFlushAcksOnlyCompletedBatches(t *testing.T) {
	b, err := New[string, int](250, time.Second)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	for i := 1; i <= 3; i++ {
		if err := b.AddUnits(units(fmt.Sprintf("b%d", i), 100), fmt.Sprintf("b%d", i), i); err != nil {
			t.Fatalf("add b%d: %v", i, err)
		}
	}
	if !b.ShouldFlush() {
		t.Fatalf("expected size-triggered flush at 300 units")
	}

	out, completed := b.Flush()
	if len(out) != 250 {
		t.Fatalf("first flush size: got %d want 250", len(out))
	}
	if len(completed) != 2 || completed[0] != 1 || completed[1] != 2 {
		t.Fatalf("first flush acks: got %v want [1 2]", completed)
	}
	if b.Len() != 50 {
		t.Fatalf("residual: got %d want 50", b.Len())
	}

	out, completed = b.Flush()
	if len(out) != 50 {
		t.Fatalf("second flush size: got %d want 50", len(out))
	}
	if len(completed) != 1 || completed[0] != 3 {
		t.Fatalf("second flush acks: got %v want [3]", completed)
	}
	if b.Len() != 0 {
		t.Fatalf("buffer not empty")
	}

	// No further flush may re-surface an ack.
	out, completed = b.Flush()
	if len(out) != 0 || len(completed) != 0 {
		t.Fatalf("empty flush returned data: %v %v", out, completed)
	}
}

func TestFlushPreservesFIFO(t *testing.T) {
	b, _ := New[string, int](4, time.Second)
	_ = b.AddUnits([]string{"a0", "a1"}, "a", 1)
	_ = b.AddUnits([]string{"b0", "b1"}, "b", 2)
	out, _ := b.Flush()
	want := []string{"a0", "a1", "b0", "b1"}
	for i, v := range want {
		if out[i] != v {
			t.Fatalf("order: got %v want %v", out, want)
		}
	}
}

func TestDrainEmptiesEverythingInOneCall(t *testing.T) {
	b, _ := New[string, int](250, time.Second)
	for i := 1; i <= 3; i++ {
		_ = b.AddUnits(units(fmt.Sprintf("b%d", i), 100), fmt.Sprintf("b%d", i), i)
	}
	out, completed := b.Drain()
	if len(out) != 300 {
		t.Fatalf("drain size: got %d want 300", len(out))
	}
	if len(completed) != 3 {
		t.Fatalf("drain acks: got %v want all three", completed)
	}
	if b.Len() != 0 {
		t.Fatalf("buffer not empty after drain")
	}
}

func TestShouldFlushOnTimeout(t *testing.T) {
	b, _ := New[string, int](100, 2*time.Second)
	now := time.Now()
	b.now = func() time.Time { return now }
	b.lastFlush = now

	_ = b.AddUnits(units("a", 5), "a", 1)
	if b.ShouldFlush() {
		t.Fatalf("should not flush before timeout")
	}
	now = now.Add(2 * time.Second)
	if !b.ShouldFlush() {
		t.Fatalf("should flush once aged past timeout")
	}
	// Flushing resets the age window.
	b.Flush()
	_ = b.AddUnits(units("b", 5), "b", 2)
	if b.ShouldFlush() {
		t.Fatalf("age window not reset by flush")
	}
}

func TestEmptyBufferNeverFlushesOnAge(t *testing.T) {
	b, _ := New[string, int](100, time.Millisecond)
	now := time.Now()
	b.now = func() time.Time { return now.Add(time.Hour) }
	if b.ShouldFlush() {
		t.Fatalf("empty buffer reported flushable")
	}
}

// An ack with no units of its own queues behind the batches already buffered
// and surfaces only once the flush front passes its position, keeping acks in
// batch arrival order.
func TestAddCompletedSurfacesInArrivalOrder(t *testing.T) {
	b, _ := New[string, int](2, time.Second)
	_ = b.AddUnits([]string{"a0"}, "a", 1)
	b.AddCompleted(2)
	_ = b.AddUnits([]string{"c0"}, "c", 3)

	out, completed := b.Flush()
	if len(out) != 1 || out[0] != "a0" {
		t.Fatalf("first flush units: got %v want [a0]", out)
	}
	if len(completed) != 2 || completed[0] != 1 || completed[1] != 2 {
		t.Fatalf("first flush acks: got %v want [1 2]", completed)
	}

	out, completed = b.Flush()
	if len(out) != 1 || out[0] != "c0" {
		t.Fatalf("second flush units: got %v want [c0]", out)
	}
	if len(completed) != 1 || completed[0] != 3 {
		t.Fatalf("second flush acks: got %v want [3]", completed)
	}
	if b.Len() != 0 {
		t.Fatalf("buffer not empty")
	}
}

// A marker left just past the flush prefix has nothing of its own to write;
// the same flush completes it rather than stranding it for the next one.
func TestFlushConsumesTrailingMarkers(t *testing.T) {
	b, _ := New[string, int](2, time.Second)
	_ = b.AddUnits([]string{"a0", "a1"}, "a", 1)
	b.AddCompleted(2)

	out, completed := b.Flush()
	if len(out) != 2 {
		t.Fatalf("flush units: got %v", out)
	}
	if len(completed) != 2 || completed[0] != 1 || completed[1] != 2 {
		t.Fatalf("flush acks: got %v want [1 2]", completed)
	}
	if b.Len() != 0 {
		t.Fatalf("trailing marker left behind: %d", b.Len())
	}
}

// A batch spanning three flushes must surface its ack exactly once, on the
// flush that carries its final unit.
func TestAckExactlyOnceAcrossPartialFlushes(t *testing.T) {
	b, _ := New[string, int](10, time.Second)
	_ = b.AddUnits(units("big", 25), "big", 7)

	var acks []int
	for i := 0; i < 3; i++ {
		_, completed := b.Flush()
		acks = append(acks, completed...)
	}
	if len(acks) != 1 || acks[0] != 7 {
		t.Fatalf("acks: got %v want [7]", acks)
	}
}
