package progress

import (
	"errors"
	"testing"
	"time"
)

func recv(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestSubscribeReceivesPublishedEvent(t *testing.T) {
	b := New()
	defer b.Close()

	sub := b.Subscribe(nil)
	defer sub.Close()

	b.Publish(Started("release-1", nil))

	got := recv(t, sub.C)
	if got.Kind != KindStarted || got.ID != "release-1" {
		t.Errorf("got %+v, want Started{release-1}", got)
	}
}

func TestForReleaseFilterMatchesDirectAndIndirectID(t *testing.T) {
	b := New()
	defer b.Close()

	sub := b.Subscribe(ForRelease("rel-1"))
	defer sub.Close()

	importID := "import-1"
	b.Publish(Progress("rel-2", 50, PhaseAcquire, &importID)) // should be filtered out
	releaseID := "rel-1"
	b.Publish(Complete("import-1", &releaseID, &importID)) // ReleaseID matches

	got := recv(t, sub.C)
	if got.Kind != KindComplete || got.ReleaseID == nil || *got.ReleaseID != "rel-1" {
		t.Errorf("got %+v, want Complete with ReleaseID rel-1", got)
	}

	select {
	case e := <-sub.C:
		t.Errorf("unexpected second event delivered: %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestForImportFilter(t *testing.T) {
	b := New()
	defer b.Close()

	sub := b.Subscribe(ForImport("import-1"))
	defer sub.Close()

	mine := "import-1"
	b.Publish(Preparing("import-2", StepParsingMetadata))
	b.Publish(Preparing("import-1", StepDiscoveringFiles))

	got := recv(t, sub.C)
	if got.Kind != KindPreparing || got.Step != StepDiscoveringFiles || got.ImportID == nil || *got.ImportID != mine {
		t.Errorf("got %+v, want Preparing{DiscoveringFiles} for import-1", got)
	}
}

func TestFailedCarriesErrorString(t *testing.T) {
	b := New()
	defer b.Close()

	sub := b.Subscribe(nil)
	defer sub.Close()

	b.Publish(Failed("track-9", errors.New("boom"), nil))

	got := recv(t, sub.C)
	if got.Kind != KindFailed || got.Error != "boom" {
		t.Errorf("got %+v, want Failed{boom}", got)
	}
}

func TestPublishNeverBlocksOnSlowSubscriber(t *testing.T) {
	b := New()
	defer b.Close()

	sub := b.Subscribe(nil)
	defer sub.Close()

	// Flood well past the subscriber's buffer without ever reading; Publish
	// must never block the caller even though the subscriber falls behind.
	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*4; i++ {
			b.Publish(Progress("rel-1", i%100, PhaseStore, nil))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()
	defer b.Close()

	sub := b.Subscribe(nil)
	sub.Close()
	// Give the bus goroutine a moment to process the unregister.
	time.Sleep(20 * time.Millisecond)

	b.Publish(Started("release-1", nil))

	select {
	case _, ok := <-sub.C:
		if ok {
			t.Errorf("expected no delivery after unsubscribe")
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCloseClosesSubscriberChannels(t *testing.T) {
	b := New()
	sub := b.Subscribe(nil)
	b.Close()

	select {
	case _, ok := <-sub.C:
		if ok {
			t.Errorf("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber channel was never closed")
	}
}
