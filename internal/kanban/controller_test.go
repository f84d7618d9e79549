package kanban

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadline/internal/config"
	"leadline/internal/domain"
	"leadline/internal/metrics"
	leadlinesdk "leadline/sdk/go"
)

// creditFixture mirrors the funnel of the credit variant with one lead in new.
func creditFixture(t *testing.T) (*Store, *fakeRemote) {
	t.Helper()
	remote := newFakeRemote()
	remote.pages[1] = domain.KanbanPage{"new": {lead("L1", "Lia", "new")}}
	remote.counts = domain.KanbanCounts{"new": 1, "analysis": 0}
	store := NewStore(remote, config.Default(config.VariantCredit), nil)
	require.NoError(t, store.Load(context.Background(), true))
	return store, remote
}

func TestChangeStatusSuccess(t *testing.T) {
	store, remote := creditFixture(t)
	gate := make(chan struct{})
	remote.statusGate = gate
	notes := &recordingNotifier{}
	journal := &memJournal{}
	committed := testutil.ToFloat64(metrics.StatusMoves.WithLabelValues("committed"))
	ctrl := NewController(store, remote, notes, journal, nil)

	p := ctrl.ChangeStatus(context.Background(), "L1", "analysis")
	require.True(t, p.Applied())

	// Before the server answers.
	snap := store.Snapshot()
	assert.Empty(t, snap.Board["new"])
	require.Len(t, snap.Board["analysis"], 1)
	assert.Equal(t, "analysis", snap.Board["analysis"][0].Status())
	assert.Equal(t, 0, snap.Counts["new"])
	assert.Equal(t, 1, snap.Counts["analysis"])
	assert.NoError(t, p.Err())

	close(gate)
	require.NoError(t, p.Wait(context.Background()))

	after := store.Snapshot()
	assert.Equal(t, snap.Board, after.Board)
	assert.Equal(t, snap.Counts, after.Counts)
	assert.Empty(t, notes.all())
	assert.Equal(t, []statusCall{{ID: "L1", Status: "analysis"}}, remote.statusCalls)
	assert.Equal(t, []string{EventMoveApplied, EventMoveCommitted}, journal.types())
	assert.Equal(t, committed+1, testutil.ToFloat64(metrics.StatusMoves.WithLabelValues("committed")))
}

func TestChangeStatusFailureRestoresSnapshot(t *testing.T) {
	store, remote := creditFixture(t)
	remote.statusErr = &leadlinesdk.APIError{StatusCode: 422, Message: "stage locked"}
	notes := &recordingNotifier{}
	journal := &memJournal{}
	before := store.Snapshot()
	ctrl := NewController(store, remote, notes, journal, nil)

	p := ctrl.ChangeStatus(context.Background(), "L1", "analysis")
	err := p.Wait(context.Background())

	var me *MutationError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, "L1", me.LeadID)
	assert.Equal(t, "new", me.From)
	assert.Equal(t, "analysis", me.To)

	after := store.Snapshot()
	assert.Equal(t, before.Board, after.Board)
	assert.Equal(t, before.Counts, after.Counts)
	assert.Equal(t, "new", after.Board["new"][0].Status())

	got := notes.all()
	require.Len(t, got, 1)
	assert.Equal(t, LevelError, got[0].Level)
	assert.Equal(t, "status update failed", got[0].Title)
	assert.Equal(t, "reverting: stage locked", got[0].Detail)
	assert.Equal(t, []string{EventMoveApplied, EventMoveReverted}, journal.types())
}

func TestChangeStatusRollbackEveryStagePair(t *testing.T) {
	cfg := config.Default(config.VariantCredit)
	stages := cfg.StageIDs()
	for _, from := range stages {
		for _, to := range stages {
			if from == to {
				continue
			}
			t.Run(from+"->"+to, func(t *testing.T) {
				remote := newFakeRemote()
				page := domain.KanbanPage{}
				counts := domain.KanbanCounts{}
				for _, s := range stages {
					page[s] = fillPage(s+"-", s, 2)
					counts[s] = 2
				}
				remote.pages[1] = page
				remote.counts = counts
				remote.statusErr = errors.New("network down")
				store := NewStore(remote, cfg, nil)
				require.NoError(t, store.Load(context.Background(), true))
				before := store.Snapshot()

				ctrl := NewController(store, remote, &recordingNotifier{}, nil, nil)
				err := ctrl.ChangeStatus(context.Background(), from+"-1", to).Wait(context.Background())
				require.Error(t, err)

				after := store.Snapshot()
				assert.Equal(t, before.Board, after.Board)
				assert.Equal(t, before.Counts, after.Counts)
			})
		}
	}
}

func TestChangeStatusCountConsistency(t *testing.T) {
	store, remote := creditFixture(t)
	ctrl := NewController(store, remote, &recordingNotifier{}, nil, nil)
	before := store.Snapshot()

	require.NoError(t, ctrl.ChangeStatus(context.Background(), "L1", "analysis").Wait(context.Background()))
	require.NoError(t, ctrl.ChangeStatus(context.Background(), "L1", "approved").Wait(context.Background()))

	after := store.Snapshot()
	sum := func(c Counts) int {
		n := 0
		for _, v := range c {
			n += v
		}
		return n
	}
	assert.Equal(t, sum(before.Counts), sum(after.Counts))
	assert.Equal(t, 1, after.Counts["approved"])
	assert.Equal(t, 0, after.Counts["analysis"])
	require.NoError(t, after.Board.Validate())
}

func TestChangeStatusNoopSkipsRemote(t *testing.T) {
	store, remote := creditFixture(t)
	ctrl := NewController(store, remote, &recordingNotifier{}, nil, nil)
	before := store.Snapshot()

	for _, tc := range []struct{ id, to string }{{"L1", "new"}, {"nope", "analysis"}, {"L1", "archived"}} {
		p := ctrl.ChangeStatus(context.Background(), tc.id, tc.to)
		assert.False(t, p.Applied())
		require.NoError(t, p.Wait(context.Background()))
	}

	assert.Equal(t, 0, remote.statusCallCount())
	assert.Equal(t, before.Version, store.Snapshot().Version)
}

func TestChangeStatusCancelledContextRollsBack(t *testing.T) {
	store, remote := creditFixture(t)
	remote.statusGate = make(chan struct{})
	before := store.Snapshot()
	ctrl := NewController(store, remote, &recordingNotifier{}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	p := ctrl.ChangeStatus(ctx, "L1", "closed")
	cancel()

	select {
	case <-p.Done():
	case <-time.After(time.Second):
		t.Fatal("move did not settle")
	}
	require.ErrorIs(t, p.Err(), context.Canceled)
	assert.Equal(t, before.Board, store.Snapshot().Board)
}

func TestChangeStatusFailureKeepsConcurrentMove(t *testing.T) {
	remote := newFakeRemote()
	remote.pages[1] = domain.KanbanPage{
		"new":      {lead("L1", "Lia", "new"), lead("L2", "Leo", "new")},
		"analysis": {lead("L3", "Lu", "analysis")},
	}
	remote.counts = domain.KanbanCounts{"new": 2, "analysis": 1}
	store := NewStore(remote, config.Default(config.VariantCredit), nil)
	require.NoError(t, store.Load(context.Background(), true))

	gate := make(chan struct{})
	failing := &gatedFailRemote{fakeRemote: remote, failID: "L1", gate: gate}
	ctrl := NewController(store, failing, &recordingNotifier{}, nil, nil)

	p1 := ctrl.ChangeStatus(context.Background(), "L1", "approved")
	p2 := ctrl.ChangeStatus(context.Background(), "L3", "rejected")
	require.NoError(t, p2.Wait(context.Background()))

	close(gate)
	require.Error(t, p1.Wait(context.Background()))

	snap := store.Snapshot()
	assert.Equal(t, []string{"L1", "L2"}, ids(snap.Board["new"]))
	assert.Empty(t, snap.Board["approved"])
	assert.Empty(t, snap.Board["analysis"])
	assert.Equal(t, []string{"L3"}, ids(snap.Board["rejected"]))
	assert.Equal(t, 2, snap.Counts["new"])
	assert.Equal(t, 0, snap.Counts["approved"])
	assert.Equal(t, 0, snap.Counts["analysis"])
	assert.Equal(t, 1, snap.Counts["rejected"])
	require.NoError(t, snap.Board.Validate())
}

func TestChangeStatusFailureAfterReloadLeavesServerState(t *testing.T) {
	store, remote := creditFixture(t)
	gate := make(chan struct{})
	failing := &gatedFailRemote{fakeRemote: remote, failID: "L1", gate: gate}
	ctrl := NewController(store, failing, &recordingNotifier{}, nil, nil)

	p := ctrl.ChangeStatus(context.Background(), "L1", "analysis")
	remote.pages[1] = domain.KanbanPage{"new": {lead("L1", "Lia", "new"), lead("L9", "Nina", "new")}}
	remote.counts = domain.KanbanCounts{"new": 2}
	require.NoError(t, store.Load(context.Background(), true))

	close(gate)
	require.Error(t, p.Wait(context.Background()))

	snap := store.Snapshot()
	assert.Equal(t, []string{"L1", "L9"}, ids(snap.Board["new"]))
	assert.Equal(t, 2, snap.Counts["new"])
	assert.Equal(t, 0, snap.Counts["analysis"])
}

func TestChangeStatusDriftTriggersReload(t *testing.T) {
	remote := newFakeRemote()
	remote.pages[1] = domain.KanbanPage{"new": {lead("L1", "Lia", "new")}}
	remote.countsErr = errors.New("counts unavailable")
	store := NewStore(remote, config.Default(config.VariantCredit), nil)
	require.NoError(t, store.Load(context.Background(), true))
	require.Equal(t, 0, store.Snapshot().Counts["new"])

	remote.mu.Lock()
	remote.countsErr = nil
	remote.counts = domain.KanbanCounts{"analysis": 1}
	remote.pages[1] = domain.KanbanPage{"analysis": {lead("L1", "Lia", "analysis")}}
	remote.mu.Unlock()

	ctrl := NewController(store, remote, &recordingNotifier{}, nil, nil)
	require.NoError(t, ctrl.ChangeStatus(context.Background(), "L1", "analysis").Wait(context.Background()))

	snap := store.Snapshot()
	assert.Equal(t, 1, snap.Counts["analysis"])
	assert.Equal(t, 0, snap.Counts["new"])
	assert.Len(t, remote.kanbanCalls, 2)
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "bad stage", ErrorMessage(&leadlinesdk.APIError{StatusCode: 400, Message: "bad stage"}))
	assert.Equal(t, "dial tcp: refused", ErrorMessage(errors.New("dial tcp: refused")))
	assert.Equal(t, "", ErrorMessage(nil))
}

// gatedFailRemote fails status updates for one lead once gate closes and
// passes every other call through.
type gatedFailRemote struct {
	*fakeRemote
	failID string
	gate   chan struct{}
}

func (g *gatedFailRemote) UpdateLeadStatus(ctx context.Context, id, status string) (domain.Lead, error) {
	if id != g.failID {
		return g.fakeRemote.UpdateLeadStatus(ctx, id, status)
	}
	<-g.gate
	return domain.Lead{}, errors.New("rejected")
}
