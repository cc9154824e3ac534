package broadcast

import "testing"

func TestPublishDeliversToAllSubscribers(t *testing.T) {
	h := NewHub()
	a := h.Subscribe()
	b := h.Subscribe()

	h.Publish([]byte("x"))

	if got := <-a.Ch; string(got) != "x" {
		t.Fatalf("a received %q, want %q", got, "x")
	}
	if got := <-b.Ch; string(got) != "x" {
		t.Fatalf("b received %q, want %q", got, "x")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	h := NewHub()
	sub := h.Subscribe()
	h.Unsubscribe(sub)

	h.Publish([]byte("x"))

	select {
	case v, ok := <-sub.Ch:
		if ok {
			t.Fatalf("unsubscribed subscriber received %q", v)
		}
	default:
	}
}

func TestPublishDropsWhenSubscriberFull(t *testing.T) {
	h := NewHub()
	sub := h.Subscribe()

	for i := 0; i < subscriberCap+5; i++ {
		h.Publish([]byte{byte(i)})
	}

	if sub.Lagged() == 0 {
		t.Fatal("expected Lagged() > 0 after overfilling subscriber channel")
	}
}

func TestCloseClosesEverySubscriber(t *testing.T) {
	h := NewHub()
	sub := h.Subscribe()
	h.Close()

	if _, ok := <-sub.Ch; ok {
		t.Fatal("expected sub.Ch to be closed after Close")
	}
}

func TestSubscribeAfterCloseReturnsClosedChannel(t *testing.T) {
	h := NewHub()
	h.Close()

	sub := h.Subscribe()
	if _, ok := <-sub.Ch; ok {
		t.Fatal("expected Subscribe after Close to return an already-closed channel")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	h := NewHub()
	h.Close()
	h.Close()
}
