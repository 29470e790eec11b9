package msgstore

import (
	"hash/fnv"
	"sort"
	"strings"
	"sync"

	"github.com/sdrees/vernemq/pkg/id"
)

// ScanID identifies one find operation. The zero value is InitScanID,
// reserved for entries deposited by startup recovery.
type ScanID = id.ID

// InitScanID is the reserved scan-id used by bucket recovery.
var InitScanID = ScanID{}

// StagingTables is the cross-bucket rendezvous for subscriber scans: buckets
// deposit (scan-id, subscriber, timestamp, ref) entries, the find coordinator
// harvests and removes them. A subscriber always maps to the same table, so
// contention spreads across M locks while each harvest stays local to one.
//
// Concurrent inserts are disjoint by construction: every key embeds a
// scan-id that is unique per find operation, and InitScanID entries are
// produced only by recovery scans. Several buckets may stage InitScanID
// entries for the same subscriber at once, but every key also embeds the
// ref, and a ref lives in exactly one bucket, so no two buckets produce the
// same key.
type StagingTables struct {
	tables []*stagingTable
}

type stagingTable struct {
	mu      sync.Mutex
	entries map[string]struct{}
}

// NewStagingTables creates M tables. M must be >= 1.
func NewStagingTables(m int) *StagingTables {
	if m < 1 {
		m = 1
	}
	tables := make([]*stagingTable, m)
	for i := range tables {
		tables[i] = &stagingTable{entries: make(map[string]struct{})}
	}
	return &StagingTables{tables: tables}
}

// Stage deposits one entry for the subscriber under the given scan-id.
func (s *StagingTables) Stage(scanID ScanID, sub SubscriberID, ts Timestamp, ref id.Ref) {
	t := s.tableFor(sub)
	key := stagingKey(scanID, sub, ts, ref)
	t.mu.Lock()
	t.entries[key] = struct{}{}
	t.mu.Unlock()
}

// Harvest removes and returns all of the subscriber's refs staged under the
// given scan-id, in ascending (timestamp, ref) order.
func (s *StagingTables) Harvest(scanID ScanID, sub SubscriberID) []id.Ref {
	t := s.tableFor(sub)
	prefix := stagingPrefix(scanID, sub)

	t.mu.Lock()
	var matched []string
	for key := range t.entries {
		if strings.HasPrefix(key, prefix) {
			matched = append(matched, key)
		}
	}
	for _, key := range matched {
		delete(t.entries, key)
	}
	t.mu.Unlock()

	// Byte order of the encoded key is (timestamp, ref) order.
	sort.Strings(matched)
	refs := make([]id.Ref, 0, len(matched))
	for _, key := range matched {
		var ref id.Ref
		copy(ref[:], key[len(key)-id.RefSize:])
		refs = append(refs, ref)
	}
	return refs
}

// Len reports the total number of staged entries across all tables.
func (s *StagingTables) Len() int {
	total := 0
	for _, t := range s.tables {
		t.mu.Lock()
		total += len(t.entries)
		t.mu.Unlock()
	}
	return total
}

func (s *StagingTables) tableFor(sub SubscriberID) *stagingTable {
	return s.tables[int(subscriberHash(sub)%uint32(len(s.tables)))]
}

// stagingKey encodes (scan_id, subscriber, timestamp, ref) so that byte
// comparison orders a subscriber's entries by ascending timestamp.
func stagingKey(scanID ScanID, sub SubscriberID, ts Timestamp, ref id.Ref) string {
	b := make([]byte, 0, 16+len(sub.Mountpoint)+len(sub.ClientID)+2+timestampSize+id.RefSize)
	b = append(b, scanID[:]...)
	b = append(b, sub.Mountpoint...)
	b = append(b, fieldSep)
	b = append(b, sub.ClientID...)
	b = append(b, fieldSep)
	b = appendTimestamp(b, ts)
	b = append(b, ref[:]...)
	return string(b)
}

func stagingPrefix(scanID ScanID, sub SubscriberID) string {
	b := make([]byte, 0, 16+len(sub.Mountpoint)+len(sub.ClientID)+2)
	b = append(b, scanID[:]...)
	b = append(b, sub.Mountpoint...)
	b = append(b, fieldSep)
	b = append(b, sub.ClientID...)
	b = append(b, fieldSep)
	return string(b)
}

// subscriberHash is the stable hash selecting a staging table.
func subscriberHash(sub SubscriberID) uint32 {
	h := fnv.New32a()
	h.Write([]byte(sub.Mountpoint))
	h.Write([]byte{fieldSep})
	h.Write([]byte(sub.ClientID))
	return h.Sum32()
}
