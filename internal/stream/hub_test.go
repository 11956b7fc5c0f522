package stream

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parking-status-backend/internal/model"
	"parking-status-backend/internal/reconcile"
)

func testView(zoneID string, status model.StatusValue) reconcile.EffectiveZoneView {
	return reconcile.Reconcile(
		model.Zone{ID: zoneID, Name: zoneID},
		&model.ZoneStatus{ZoneID: zoneID, Status: status, Confidence: model.ConfidenceHigh, LastUpdated: time.Unix(1700000000, 0).UTC()},
		nil,
	)
}

func staticSnapshot(views ...reconcile.EffectiveZoneView) SnapshotFunc {
	return func() ([]reconcile.EffectiveZoneView, error) { return views, nil }
}

// failingWriter simulates a transport whose peer is gone.
type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) {
	return 0, errors.New("broken pipe")
}

func TestHub_SnapshotBeforePatch(t *testing.T) {
	hub := NewHub(time.Minute)

	var buf bytes.Buffer
	snapshot := staticSnapshot(
		testView("a-lot", model.StatusAvailable),
		testView("b-lot", model.StatusFull),
		testView("c-lot", model.StatusLimited),
	)
	id, err := hub.Subscribe(&buf, snapshot)
	require.NoError(t, err)
	defer hub.Unsubscribe(id)

	hub.BroadcastPatch(testView("a-lot", model.StatusFull))

	out := buf.String()
	snapIdx := strings.Index(out, "event:snapshot")
	patchIdx := strings.Index(out, "event:zone_patch")
	require.NotEqual(t, -1, snapIdx)
	require.NotEqual(t, -1, patchIdx)
	assert.Less(t, snapIdx, patchIdx, "snapshot must precede any patch")
	assert.Contains(t, out, `"a-lot"`)
	assert.Contains(t, out, `"b-lot"`)
	assert.Contains(t, out, `"c-lot"`)
}

func TestHub_FanOut(t *testing.T) {
	hub := NewHub(time.Minute)

	var bufs [3]bytes.Buffer
	for i := range bufs {
		_, err := hub.Subscribe(&bufs[i], staticSnapshot())
		require.NoError(t, err)
	}
	assert.Equal(t, 3, hub.Len())

	hub.BroadcastPatch(testView("z-1", model.StatusLimited))

	for i := range bufs {
		out := bufs[i].String()
		assert.Equal(t, 1, strings.Count(out, "event:zone_patch"), "subscriber %d", i)
		assert.Contains(t, out, `"z-1"`)
		assert.NotContains(t, out, `"z-2"`)
	}
}

func TestHub_FailedConnectionIsIsolated(t *testing.T) {
	hub := NewHub(time.Minute)

	var healthy1, healthy2 bytes.Buffer
	_, err := hub.Subscribe(&healthy1, staticSnapshot())
	require.NoError(t, err)
	_, err = hub.Subscribe(&healthy2, staticSnapshot())
	require.NoError(t, err)

	// A subscriber whose writes fail after registration. Subscribing writes
	// the snapshot, so feed the failing writer directly into the set via a
	// writer that fails only on later writes.
	ff := &flakyWriter{failAfter: 1}
	_, err = hub.Subscribe(ff, staticSnapshot())
	require.NoError(t, err)
	assert.Equal(t, 3, hub.Len())

	hub.BroadcastPatch(testView("z-9", model.StatusFull))

	// The two healthy subscribers still got the patch, the broken one is gone.
	assert.Contains(t, healthy1.String(), `"z-9"`)
	assert.Contains(t, healthy2.String(), `"z-9"`)
	assert.Equal(t, 2, hub.Len())

	// And it stays out of future broadcasts: one snapshot write plus the
	// failed patch write, nothing after removal.
	hub.BroadcastPatch(testView("z-10", model.StatusFull))
	assert.Equal(t, 2, ff.writes)
}

// flakyWriter succeeds for the first failAfter writes, then always fails.
type flakyWriter struct {
	writes    int
	failAfter int
}

func (f *flakyWriter) Write(p []byte) (int, error) {
	f.writes++
	if f.writes > f.failAfter {
		return 0, errors.New("broken pipe")
	}
	return len(p), nil
}

// A patch broadcast while a subscriber is registering must land after its
// snapshot, not vanish into the gap between the snapshot read and
// registration.
func TestHub_BroadcastDuringSubscribeIsNotLost(t *testing.T) {
	hub := NewHub(time.Minute)

	var buf bytes.Buffer
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		<-release
		hub.BroadcastPatch(testView("z-1", model.StatusFull))
		close(done)
	}()

	_, err := hub.Subscribe(&buf, func() ([]reconcile.EffectiveZoneView, error) {
		close(release)
		time.Sleep(50 * time.Millisecond)
		return []reconcile.EffectiveZoneView{testView("z-1", model.StatusAvailable)}, nil
	})
	require.NoError(t, err)
	<-done

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "event:zone_patch"), "the racing patch must be delivered")
	assert.Less(t, strings.Index(out, "event:snapshot"), strings.Index(out, "event:zone_patch"))
}

func TestHub_SubscribeFailsOnSnapshotError(t *testing.T) {
	hub := NewHub(time.Minute)

	var buf bytes.Buffer
	_, err := hub.Subscribe(&buf, func() ([]reconcile.EffectiveZoneView, error) {
		return nil, errors.New("storage down")
	})
	assert.Error(t, err)
	assert.Equal(t, 0, hub.Len())
	assert.Zero(t, buf.Len(), "nothing may be written when the snapshot fails")
}

func TestHub_SubscribeFailsOnDeadWriter(t *testing.T) {
	hub := NewHub(time.Minute)

	_, err := hub.Subscribe(failingWriter{}, staticSnapshot())
	assert.Error(t, err)
	assert.Equal(t, 0, hub.Len())
}

func TestHub_PingDropsDeadSubscribers(t *testing.T) {
	hub := NewHub(time.Minute)

	var healthy bytes.Buffer
	_, err := hub.Subscribe(&healthy, staticSnapshot())
	require.NoError(t, err)

	ff := &flakyWriter{failAfter: 1}
	_, err = hub.Subscribe(ff, staticSnapshot())
	require.NoError(t, err)

	hub.ping()

	assert.Contains(t, healthy.String(), ": ping\n\n")
	assert.Equal(t, 1, hub.Len())
}
