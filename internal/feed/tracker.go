package feed

import (
	"context"
	"log"
	"sort"
)

// FollowSource is the tracker's view of the social graph store: a way to load
// the viewer's followees and a change-signal subscription that fires whenever
// an edge for the viewer is added or removed.
type FollowSource interface {
	FolloweeIDs(ctx context.Context, viewerID int64) ([]int64, error)
	Changes(viewerID int64) (<-chan struct{}, func())
}

// Snapshot is one emission of the tracker: the deduplicated, sorted set of
// identities the viewer should see content from. Members always includes the
// viewer's own id (self-authored posts appear in the viewer's feed), except
// when the underlying load failed: then Members is empty and Err carries the
// non-fatal cause.
type Snapshot struct {
	Members []int64
	Err     error
}

// Tracker maintains the live follow set for one viewer. It emits a Snapshot
// on subscribe and again every time the graph changes. Consumers must treat
// emitted snapshots as immutable.
type Tracker struct {
	source   FollowSource
	viewerID int64
	out      chan Snapshot
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewTracker starts tracking viewerID's follow set. Call Close to release
// the underlying subscription; the snapshot channel is closed on teardown.
func NewTracker(source FollowSource, viewerID int64) *Tracker {
	ctx, cancel := context.WithCancel(context.Background())
	t := &Tracker{
		source:   source,
		viewerID: viewerID,
		out:      make(chan Snapshot, 1),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go t.run(ctx)
	return t
}

// Snapshots returns the emission channel. Closed when the tracker is closed.
func (t *Tracker) Snapshots() <-chan Snapshot {
	return t.out
}

// Close releases the graph subscription and stops emissions.
func (t *Tracker) Close() {
	t.cancel()
	<-t.done
}

func (t *Tracker) run(ctx context.Context) {
	defer close(t.done)
	defer close(t.out)

	changes, stop := t.source.Changes(t.viewerID)
	defer stop()

	if !t.emit(ctx, t.load(ctx)) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-changes:
			if !t.emit(ctx, t.load(ctx)) {
				return
			}
		}
	}
}

// load computes the current follow set: {viewer} ∪ followees, deduplicated.
func (t *Tracker) load(ctx context.Context) Snapshot {
	ids, err := t.source.FolloweeIDs(ctx, t.viewerID)
	if err != nil {
		// Non-fatal: surface an empty set, consumer may retry by resubscribing.
		log.Printf("[Tracker] load FAILED: viewer=%d err=%v", t.viewerID, err)
		return Snapshot{Members: []int64{}, Err: err}
	}

	set := make(map[int64]struct{}, len(ids)+1)
	set[t.viewerID] = struct{}{}
	for _, id := range ids {
		set[id] = struct{}{}
	}

	members := make([]int64, 0, len(set))
	for id := range set {
		members = append(members, id)
	}
	sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })

	return Snapshot{Members: members}
}

func (t *Tracker) emit(ctx context.Context, snap Snapshot) bool {
	select {
	case t.out <- snap:
		return true
	case <-ctx.Done():
		return false
	}
}
