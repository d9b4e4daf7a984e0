package notification

import (
	"cmp"
	"iter"
	"reflect"
	"slices"
	"sync"
	"time"

	"github.com/jwalitptl/booking-feed/internal/model"
	"github.com/jwalitptl/booking-feed/pkg/metrics"
)

// AckState is the per-notification acknowledgment state.
type AckState int

const (
	StateUnread AckState = iota
	StatePending
	StateAcknowledged
)

func (s AckState) String() string {
	switch s {
	case StateUnread:
		return "unread"
	case StatePending:
		return "pending_ack"
	case StateAcknowledged:
		return "acknowledged"
	default:
		return "unknown"
	}
}

type AppendResult int

const (
	Inserted AppendResult = iota
	Merged
	Duplicate
)

func (r AppendResult) String() string {
	switch r {
	case Inserted:
		return "inserted"
	case Merged:
		return "merged"
	default:
		return "duplicate"
	}
}

type entry struct {
	n     model.Notification
	state AckState
}

// Log is the ordered, deduplicated set of notifications held by one staff
// client. Entries are sorted by CreatedAt descending, then ID ascending.
//
// Read state can only change through the acknowledgment transitions below,
// which are unexported; callers go through Acknowledger.
type Log struct {
	mu      sync.RWMutex
	entries []*entry
	byID    map[string]*entry
	metrics *metrics.Metrics
}

func NewLog(m *metrics.Metrics) *Log {
	return &Log{
		byID:    make(map[string]*entry),
		metrics: m,
	}
}

// Append inserts n if its ID is unseen. For a known ID, the type and every
// booking, customer and metadata field n sets are merged into the existing
// entry; if nothing changes it is a duplicate. ID and CreatedAt never change.
// Read and acknowledgment fields on n are ignored.
func (l *Log) Append(n model.Notification) AppendResult {
	n.Read = false
	n.AcknowledgedAt = nil
	n.AcknowledgedBy = nil
	n.AcknowledgedByDisplayName = nil
	if n.Type != model.NotificationTypeModified || len(n.Metadata.Changes) == 0 {
		n.Metadata.Changes = nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if e, ok := l.byID[n.ID]; ok {
		result := e.merge(n)
		l.observe(result)
		return result
	}

	e := &entry{n: n, state: StateUnread}
	i, _ := slices.BinarySearchFunc(l.entries, e, compareEntries)
	l.entries = slices.Insert(l.entries, i, e)
	l.byID[n.ID] = e
	l.observe(Inserted)
	return Inserted
}

// merge folds a later version of the same event into e. Set fields on n win;
// fields n leaves empty keep their current value.
func (e *entry) merge(n model.Notification) AppendResult {
	merged := e.n
	merged.Type = n.Type
	merged.CustomerName = pick(n.CustomerName, merged.CustomerName)
	merged.CustomerPhone = pickPtr(n.CustomerPhone, merged.CustomerPhone)
	merged.CustomerCode = pickPtr(n.CustomerCode, merged.CustomerCode)
	merged.BookingTime = pick(n.BookingTime, merged.BookingTime)
	merged.Bay = pickPtr(n.Bay, merged.Bay)
	merged.Duration = pickPtr(n.Duration, merged.Duration)
	merged.Metadata = mergeMetadata(merged.Metadata, n.Metadata)
	if merged.Type != model.NotificationTypeModified {
		merged.Metadata.Changes = nil
	}

	if reflect.DeepEqual(merged, e.n) {
		return Duplicate
	}
	e.n = merged
	return Merged
}

func mergeMetadata(cur, in model.Metadata) model.Metadata {
	cur.BookingID = pick(in.BookingID, cur.BookingID)
	cur.FormattedDate = pick(in.FormattedDate, cur.FormattedDate)
	cur.NumberOfPeople = pick(in.NumberOfPeople, cur.NumberOfPeople)
	cur.BookingType = pick(in.BookingType, cur.BookingType)
	if len(in.Changes) > 0 {
		cur.Changes = in.Changes
	}
	return cur
}

func pick[T comparable](in, cur T) T {
	var zero T
	if in != zero {
		return in
	}
	return cur
}

func pickPtr[T any](in, cur *T) *T {
	if in != nil {
		return in
	}
	return cur
}

func compareEntries(a, b *entry) int {
	if c := b.n.CreatedAt.Compare(a.n.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.n.ID, b.n.ID)
}

// Notifications returns a restartable sequence. Each iteration walks a
// snapshot taken when it starts, so concurrent appends never show up mid-read.
func (l *Log) Notifications() iter.Seq[model.Notification] {
	return func(yield func(model.Notification) bool) {
		for _, n := range l.Snapshot() {
			if !yield(n) {
				return
			}
		}
	}
}

// Snapshot copies the current ordered contents.
func (l *Log) Snapshot() []model.Notification {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]model.Notification, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.n
	}
	return out
}

// UnreadCount counts entries with Read == false. Pending entries count as read.
func (l *Log) UnreadCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.unreadLocked()
}

func (l *Log) unreadLocked() int {
	count := 0
	for _, e := range l.entries {
		if !e.n.Read {
			count++
		}
	}
	return count
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

func (l *Log) Get(id string) (model.Notification, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	e, ok := l.byID[id]
	if !ok {
		return model.Notification{}, false
	}
	return e.n, true
}

func (l *Log) State(id string) (AckState, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	e, ok := l.byID[id]
	if !ok {
		return StateUnread, false
	}
	return e.state, true
}

// Watermark is the newest CreatedAt held. ok is false while the Log is empty.
func (l *Log) Watermark() (time.Time, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.entries) == 0 {
		return time.Time{}, false
	}
	return l.entries[0].n.CreatedAt, true
}

// beginAck moves an unread entry to PENDING_ACK with the optimistic values.
// For an acknowledged entry it returns the canonical record instead.
func (l *Log) beginAck(id, staffID string, at time.Time) (existing *model.Acknowledgment, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.byID[id]
	if !ok {
		return nil, errNotInLog
	}

	switch e.state {
	case StateAcknowledged:
		return e.n.Acknowledgment(), nil
	case StatePending:
		return nil, errAckInFlight
	}

	e.state = StatePending
	e.n.Read = true
	e.n.AcknowledgedAt = &at
	e.n.AcknowledgedBy = &staffID
	e.n.AcknowledgedByDisplayName = nil
	l.refreshGauges()
	return nil, nil
}

// confirmAck overwrites a pending entry with the server's canonical record.
func (l *Log) confirmAck(ack model.Acknowledgment) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.byID[ack.ID]
	if !ok || e.state != StatePending {
		return
	}
	e.applyCanonical(ack)
	l.refreshGauges()
}

// rollbackAck returns a pending entry to UNREAD with every ack field cleared.
func (l *Log) rollbackAck(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.byID[id]
	if !ok || e.state != StatePending {
		return
	}
	e.state = StateUnread
	e.n.Read = false
	e.n.AcknowledgedAt = nil
	e.n.AcknowledgedBy = nil
	e.n.AcknowledgedByDisplayName = nil
	l.refreshGauges()
}

// reconcileAck applies a canonical record learned out of band. Only UNREAD
// entries move; pending and acknowledged ones are left alone.
func (l *Log) reconcileAck(ack model.Acknowledgment) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.byID[ack.ID]
	if !ok || e.state != StateUnread {
		return false
	}
	e.applyCanonical(ack)
	l.refreshGauges()
	return true
}

func (e *entry) applyCanonical(ack model.Acknowledgment) {
	at := ack.AcknowledgedAt
	by := ack.AcknowledgedBy
	e.state = StateAcknowledged
	e.n.Read = true
	e.n.AcknowledgedAt = &at
	e.n.AcknowledgedBy = &by
	e.n.AcknowledgedByDisplayName = nil
	if ack.AcknowledgedByDisplayName != "" {
		name := ack.AcknowledgedByDisplayName
		e.n.AcknowledgedByDisplayName = &name
	}
}

// observe and refreshGauges expect the caller to hold the lock.
func (l *Log) observe(result AppendResult) {
	if l.metrics == nil {
		return
	}
	switch result {
	case Merged:
		l.metrics.EventsMerged.Inc()
	case Duplicate:
		l.metrics.EventsDuplicate.Inc()
	}
	l.refreshGauges()
}

func (l *Log) refreshGauges() {
	if l.metrics == nil {
		return
	}
	l.metrics.Unread.Set(float64(l.unreadLocked()))
	l.metrics.LogSize.Set(float64(len(l.entries)))
}
