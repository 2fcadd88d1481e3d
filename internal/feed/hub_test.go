package feed

import "testing"

func TestHub_InvalidateSignalsSubscriber(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Changes(7)
	defer cancel()

	hub.Invalidate(7)

	select {
	case <-ch:
	default:
		t.Fatal("expected a pending change signal")
	}
}

func TestHub_SignalsCoalesce(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Changes(7)
	defer cancel()

	// A slow subscriber sees many invalidations as one signal.
	hub.Invalidate(7)
	hub.Invalidate(7)
	hub.Invalidate(7)

	<-ch
	select {
	case <-ch:
		t.Fatal("signals should coalesce to a single pending notification")
	default:
	}
}

func TestHub_InvalidateOtherViewer(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Changes(7)
	defer cancel()

	hub.Invalidate(8)

	select {
	case <-ch:
		t.Fatal("viewer 7 should not see viewer 8's invalidation")
	default:
	}
}

func TestHub_CancelReleasesSubscription(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Changes(7)
	cancel()

	hub.Invalidate(7)

	select {
	case <-ch:
		t.Fatal("cancelled subscription should receive no signals")
	default:
	}
}
