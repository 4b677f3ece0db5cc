package bluetooth

import (
	"testing"
	"time"
)

func TestScanResultStoreUpsertSameAddress(t *testing.T) {
	store := NewScanResultStore()
	base := time.Unix(1700000000, 0)

	store.Upsert(PeerRecord{Address: "AA:BB:CC:DD:EE:01", Name: "first", LastSeen: base})
	store.Upsert(PeerRecord{Address: "AA:BB:CC:DD:EE:01", Name: "second", LastSeen: base.Add(time.Second)})

	if store.Len() != 1 {
		t.Fatalf("Expected 1 record, got %d", store.Len())
	}

	rec, ok := store.Get("AA:BB:CC:DD:EE:01")
	if !ok {
		t.Fatal("Expected record to exist")
	}
	if rec.Name != "second" || !rec.LastSeen.Equal(base.Add(time.Second)) {
		t.Errorf("Expected latest record to win, got %+v", rec)
	}
}

func TestScanResultStoreReplacesWholeRecord(t *testing.T) {
	store := NewScanResultStore()
	store.Upsert(PeerRecord{Address: "AA", Name: "named", RawPayload: []byte{1, 2}})
	store.Upsert(PeerRecord{Address: "AA"})

	rec, _ := store.Get("AA")
	if rec.Name != "" || rec.RawPayload != nil {
		t.Errorf("Expected fields to be replaced, not merged: %+v", rec)
	}
}

func TestScanResultStoreKeepsFirstSeenOrder(t *testing.T) {
	store := NewScanResultStore()
	now := time.Unix(1700000000, 0)

	store.Upsert(PeerRecord{Address: "A", LastSeen: now})
	store.Upsert(PeerRecord{Address: "B", LastSeen: now})
	store.Upsert(PeerRecord{Address: "A", Name: "updated", LastSeen: now})

	snapshot := store.Snapshot(now)
	if len(snapshot) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(snapshot))
	}
	if snapshot[0].Address != "A" || snapshot[1].Address != "B" {
		t.Errorf("Expected order [A B], got [%s %s]", snapshot[0].Address, snapshot[1].Address)
	}
	if snapshot[0].Name != "updated" {
		t.Errorf("Expected updated record in place, got %q", snapshot[0].Name)
	}
}

func TestScanResultStoreSnapshotRendersRecencyAtCallTime(t *testing.T) {
	store := NewScanResultStore()
	seen := time.Unix(1700000000, 0)
	store.Upsert(PeerRecord{Address: "A", LastSeen: seen})

	early := store.Snapshot(seen.Add(2 * time.Second))
	late := store.Snapshot(seen.Add(125 * time.Second))

	if early[0].Recency != "just now" {
		t.Errorf("Expected 'just now', got %q", early[0].Recency)
	}
	if late[0].Recency != "2 minutes ago" {
		t.Errorf("Expected '2 minutes ago', got %q", late[0].Recency)
	}
	if early[0].DisplayName != unknownDeviceName {
		t.Errorf("Expected placeholder name, got %q", early[0].DisplayName)
	}
}

func TestScanResultStoreClear(t *testing.T) {
	store := NewScanResultStore()
	store.Upsert(PeerRecord{Address: "A"})
	store.Upsert(PeerRecord{Address: "B"})
	store.Clear()

	if store.Len() != 0 {
		t.Errorf("Expected empty store, got %d", store.Len())
	}
	if _, ok := store.Get("A"); ok {
		t.Error("Expected index to be cleared")
	}

	store.Upsert(PeerRecord{Address: "B"})
	if snapshot := store.Snapshot(time.Now()); len(snapshot) != 1 || snapshot[0].Address != "B" {
		t.Errorf("Unexpected snapshot after clear: %+v", snapshot)
	}
}

func TestScanResultStoreSnapshotLastSeenText(t *testing.T) {
	store := NewScanResultStore()
	seen := time.Unix(1700000000, 0)
	store.Upsert(PeerRecord{Address: "A", Name: "Peer", LastSeen: seen})

	snap := store.Snapshot(seen.Add(45 * time.Second))[0]
	if snap.LastSeenText != "Last seen 45 seconds ago" {
		t.Errorf("Unexpected last seen text %q", snap.LastSeenText)
	}
	if snap.DisplayName != "Peer" {
		t.Errorf("Expected advertised name, got %q", snap.DisplayName)
	}
}

func TestScanResultStoreSnapshotIsACopy(t *testing.T) {
	store := NewScanResultStore()
	store.Upsert(PeerRecord{
		Address:      "A",
		ServiceUUIDs: []string{BeaconServiceUUID},
		RawPayload:   []byte{0x01, 0x02},
	})

	snap := store.Snapshot(time.Now())
	snap[0].RawPayload[0] = 0xee
	snap[0].ServiceUUIDs[0] = "changed"

	rec, _ := store.Get("A")
	if rec.RawPayload[0] != 0x01 {
		t.Errorf("Snapshot payload aliases the store: %x", rec.RawPayload)
	}
	if rec.ServiceUUIDs[0] != BeaconServiceUUID {
		t.Errorf("Snapshot UUIDs alias the store: %v", rec.ServiceUUIDs)
	}
}
