package bluetooth

import (
	"slices"
	"time"
)

const unknownDeviceName = "Unknown device"

// PeerRecord is one observation of an advertising peer.
type PeerRecord struct {
	Address      string    `json:"address"`
	Name         string    `json:"name,omitempty"`
	LastSeen     time.Time `json:"last_seen"`
	RSSI         int16     `json:"rssi"`
	ServiceUUIDs []string  `json:"service_uuids,omitempty"`
	RawPayload   []byte    `json:"raw_payload,omitempty"`
}

// DisplayName returns the advertised name or a placeholder for nameless peers.
func (p PeerRecord) DisplayName() string {
	if p.Name == "" {
		return unknownDeviceName
	}
	return p.Name
}

// PeerSnapshot is a PeerRecord rendered for display at a given instant.
type PeerSnapshot struct {
	PeerRecord
	DisplayName  string `json:"display_name"`
	Recency      string `json:"recency"`
	LastSeenText string `json:"last_seen_text"`
}

// ScanResultStore keeps one record per device address in first-seen order.
// It does no locking of its own; ScanSession serialises access.
type ScanResultStore struct {
	records []PeerRecord
	index   map[string]int
}

// NewScanResultStore creates an empty store
func NewScanResultStore() *ScanResultStore {
	return &ScanResultStore{
		index: make(map[string]int),
	}
}

// Upsert replaces the record for rec.Address in place, or appends it when the
// address has not been seen yet. The whole record is replaced, never merged.
func (s *ScanResultStore) Upsert(rec PeerRecord) {
	if pos, exists := s.index[rec.Address]; exists {
		s.records[pos] = rec
		return
	}
	s.index[rec.Address] = len(s.records)
	s.records = append(s.records, rec)
}

// Get returns the current record for address.
func (s *ScanResultStore) Get(address string) (PeerRecord, bool) {
	pos, exists := s.index[address]
	if !exists {
		return PeerRecord{}, false
	}
	return s.records[pos], true
}

func (s *ScanResultStore) Len() int {
	return len(s.records)
}

// Snapshot returns copies of the records in first-seen order with recency
// rendered relative to now.
func (s *ScanResultStore) Snapshot(now time.Time) []PeerSnapshot {
	out := make([]PeerSnapshot, 0, len(s.records))
	for _, rec := range s.records {
		elapsed := now.Sub(rec.LastSeen)
		rec.ServiceUUIDs = slices.Clone(rec.ServiceUUIDs)
		rec.RawPayload = slices.Clone(rec.RawPayload)
		out = append(out, PeerSnapshot{
			PeerRecord:   rec,
			DisplayName:  rec.DisplayName(),
			Recency:      DescribeRecency(elapsed),
			LastSeenText: LastSeenText(elapsed),
		})
	}
	return out
}

// Clear discards every record.
func (s *ScanResultStore) Clear() {
	s.records = nil
	s.index = make(map[string]int)
}
