package dataflow

import "testing"

func TestAckMessageAcknowledgeOnce(t *testing.T) {
	var calls int
	msg := NewAckMessage("body", "msg-1", nil, func() { calls++ })

	msg.Acknowledge()
	msg.Acknowledge()
	msg.Acknowledge()

	if calls != 1 {
		t.Fatalf("expected exactly one ack callback invocation, got %d", calls)
	}
}

func TestAckMessageNilCallbackIsSafe(t *testing.T) {
	msg := AckMessage[int]{Body: 1}
	msg.Acknowledge() // must not panic
}

func TestWithBodyPreservesAcknowledgment(t *testing.T) {
	var calls int
	orig := NewAckMessage(42, "msg-1", map[string]string{"partition": "3"}, func() { calls++ })

	derived := WithBody(orig, "forty-two")
	if derived.Body != "forty-two" {
		t.Fatalf("expected derived body to be replaced, got %v", derived.Body)
	}
	if derived.MessageID != "msg-1" {
		t.Fatalf("expected MessageID to carry over, got %q", derived.MessageID)
	}

	derived.Acknowledge()
	orig.Acknowledge()
	if calls != 1 {
		t.Fatalf("expected ack to fire once across both handles, got %d", calls)
	}
}
