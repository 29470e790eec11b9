package msgstore

import (
	"sync"
	"testing"

	"github.com/sdrees/vernemq/pkg/id"
)

func TestStagingHarvestOrderedByTimestamp(t *testing.T) {
	st := NewStagingTables(4)
	sub := SubscriberID{"mp", "client"}
	scan := ScanID{0x01}

	r1 := id.RefFromContent([]byte("one"))
	r2 := id.RefFromContent([]byte("two"))
	r3 := id.RefFromContent([]byte("three"))

	// Stage out of chronological order.
	st.Stage(scan, sub, Timestamp{SecondsLo: 30}, r3)
	st.Stage(scan, sub, Timestamp{SecondsLo: 10}, r1)
	st.Stage(scan, sub, Timestamp{SecondsLo: 20}, r2)

	got := st.Harvest(scan, sub)
	want := []id.Ref{r1, r2, r3}
	if len(got) != len(want) {
		t.Fatalf("got %d refs, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("position %d: got %s want %s", i, got[i], want[i])
		}
	}
}

func TestStagingHarvestConsumes(t *testing.T) {
	st := NewStagingTables(1)
	sub := SubscriberID{"mp", "client"}
	scan := ScanID{0x02}
	st.Stage(scan, sub, Timestamp{SecondsLo: 1}, id.RefFromContent([]byte("x")))

	if got := st.Harvest(scan, sub); len(got) != 1 {
		t.Fatalf("first harvest: got %d refs, want 1", len(got))
	}
	if got := st.Harvest(scan, sub); len(got) != 0 {
		t.Fatalf("second harvest: got %d refs, want 0", len(got))
	}
	if st.Len() != 0 {
		t.Fatalf("entries remained: %d", st.Len())
	}
}

func TestStagingScanIDsIsolated(t *testing.T) {
	st := NewStagingTables(2)
	sub := SubscriberID{"mp", "client"}
	ref := id.RefFromContent([]byte("x"))

	st.Stage(ScanID{0xAA}, sub, Timestamp{SecondsLo: 1}, ref)
	st.Stage(ScanID{0xBB}, sub, Timestamp{SecondsLo: 1}, ref)

	if got := st.Harvest(ScanID{0xAA}, sub); len(got) != 1 {
		t.Fatalf("scan AA: got %d, want 1", len(got))
	}
	if got := st.Harvest(ScanID{0xBB}, sub); len(got) != 1 {
		t.Fatalf("scan BB untouched by AA harvest: got %d, want 1", len(got))
	}
}

func TestStagingSubscribersIsolated(t *testing.T) {
	st := NewStagingTables(3)
	scan := ScanID{0x03}
	ref := id.RefFromContent([]byte("x"))

	st.Stage(scan, SubscriberID{"mp", "a"}, Timestamp{SecondsLo: 1}, ref)
	st.Stage(scan, SubscriberID{"mp", "ab"}, Timestamp{SecondsLo: 1}, ref)

	if got := st.Harvest(scan, SubscriberID{"mp", "a"}); len(got) != 1 {
		t.Fatalf("subscriber a: got %d, want 1", len(got))
	}
	if got := st.Harvest(scan, SubscriberID{"mp", "ab"}); len(got) != 1 {
		t.Fatalf("subscriber ab leaked into a's harvest: got %d, want 1", len(got))
	}
}

func TestStagingConcurrentProducers(t *testing.T) {
	st := NewStagingTables(4)
	sub := SubscriberID{"mp", "client"}
	scan := ScanID{0x04}

	const producers = 8
	const perProducer = 50
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				ref := id.RefFromContent([]byte{byte(p), byte(i)})
				st.Stage(scan, sub, Timestamp{SecondsLo: uint32(i)}, ref)
			}
		}(p)
	}
	wg.Wait()

	if got := st.Harvest(scan, sub); len(got) != producers*perProducer {
		t.Fatalf("got %d refs, want %d", len(got), producers*perProducer)
	}
}
