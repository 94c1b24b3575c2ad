package sim

import "testing"

func TestMessageQueue_FIFOAndSeq(t *testing.T) {
	q := NewMessageQueue(8)
	for i := 0; i < 5; i++ {
		if !q.Push(SetStanceMessage(UnitID{Index: uint32(i), Gen: 1}, StanceProne)) {
			t.Fatalf("push %d failed", i)
		}
	}
	msgs := q.Drain()
	if len(msgs) != 5 {
		t.Fatalf("drained %d, want 5", len(msgs))
	}
	for i, m := range msgs {
		if m.Unit.Index != uint32(i) {
			t.Fatalf("order broken at %d: %v", i, m.Unit)
		}
		if i > 0 && m.Seq <= msgs[i-1].Seq {
			t.Fatalf("sequence numbers not increasing: %d then %d", msgs[i-1].Seq, m.Seq)
		}
	}
	if q.Len() != 0 {
		t.Fatalf("queue not empty after drain: %d", q.Len())
	}
}

func TestMessageQueue_FullRingRejects(t *testing.T) {
	q := NewMessageQueue(2)
	if !q.Push(Message{}) || !q.Push(Message{}) {
		t.Fatal("pushes under capacity must succeed")
	}
	if q.Push(Message{}) {
		t.Fatal("push into a full ring must fail")
	}
	q.Drain()
	if !q.Push(Message{}) {
		t.Fatal("ring must accept again after drain")
	}
}

func TestMessageQueue_SeqSharedWithInternal(t *testing.T) {
	q := NewMessageQueue(4)
	q.Push(Message{})
	first := q.Drain()[0].Seq
	internal := q.NextSeq()
	if internal <= first {
		t.Fatalf("internal seq %d must continue after %d", internal, first)
	}
	q.Push(Message{})
	if next := q.Drain()[0].Seq; next <= internal {
		t.Fatalf("enqueue seq %d must continue after internal %d", next, internal)
	}
}
