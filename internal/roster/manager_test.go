package roster

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wardroster/internal/localstore"
	"wardroster/pkg/domain"
)

type fixture struct {
	store *localstore.Store
	mgr   *Manager
	clock *time.Time
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	now := time.Date(2024, 5, 6, 7, 0, 0, 0, time.UTC)
	clock := &now
	store, err := localstore.Open(context.Background(), localstore.NewMemoryBackend(),
		localstore.WithClock(func() time.Time { return *clock }))
	require.NoError(t, err)
	seq := 0
	mgr := NewManager(store, WithIDGenerator(func() string {
		seq++
		return fmt.Sprintf("p%d", seq)
	}))
	return fixture{store: store, mgr: mgr, clock: clock}
}

func (f fixture) tick() { *f.clock = f.clock.Add(time.Minute) }

func (f fixture) admit(t *testing.T, name, room string) domain.PatientRecord {
	t.Helper()
	rec, err := f.mgr.Create(context.Background(), NewPatient{
		Room:    room,
		Details: domain.Details{Name: name, Age: 64, Priority: domain.PriorityGestione},
	})
	require.NoError(t, err)
	f.tick()
	return rec
}

func TestCreateAssignsIdentityAndTimestamps(t *testing.T) {
	f := newFixture(t)
	start := *f.clock
	rec := f.admit(t, "  Rossi ", " 12 ")
	assert.Equal(t, "p1", rec.ID)
	assert.Equal(t, "Rossi", rec.Name)
	assert.Equal(t, "12", rec.Room)
	assert.True(t, rec.AdmissionDate.Equal(start))
	assert.True(t, rec.LastUpdated.Equal(start))
	assert.Equal(t, f.store.DeviceID(), rec.OriginComputerID)
	assert.True(t, f.store.Load().Pending())
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cases := map[string]NewPatient{
		"name":     {Room: "1", Details: domain.Details{Name: " ", Age: 1, Priority: domain.PriorityAlert}},
		"age":      {Room: "1", Details: domain.Details{Name: "A", Age: 151, Priority: domain.PriorityAlert}},
		"priority": {Room: "1", Details: domain.Details{Name: "A", Age: 1, Priority: "urgent"}},
		"room":     {Room: "  ", Details: domain.Details{Name: "A", Age: 1, Priority: domain.PriorityAlert}},
	}
	for field, in := range cases {
		_, err := f.mgr.Create(ctx, in)
		var verr domain.ValidationError
		require.ErrorAs(t, err, &verr, field)
		assert.Equal(t, field, verr.Field)
	}
	assert.Empty(t, f.store.Snapshot().Patients)
}

func TestCreateRoomCollisionIsCaseInsensitive(t *testing.T) {
	f := newFixture(t)
	first := f.admit(t, "Rossi", "3A")
	version := f.store.Load().Snapshot.Version

	_, err := f.mgr.Create(context.Background(), NewPatient{Room: "3a", Details: domain.Details{Name: "Bianchi", Priority: domain.PriorityAlert}})
	var verr domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "room", verr.Field)
	require.NotNil(t, verr.Conflict)
	assert.Equal(t, first.ID, verr.Conflict.ID)
	assert.Equal(t, version, f.store.Load().Snapshot.Version)
}

func TestUpdateKeepsRoomAndAdmission(t *testing.T) {
	f := newFixture(t)
	rec := f.admit(t, "Rossi", "7")
	details := domain.Details{Name: "Rossi Mario", Age: 65, Priority: domain.PriorityDimissione, Notes: "stable"}

	updated, err := f.mgr.Update(context.Background(), rec.ID, details)
	require.NoError(t, err)
	assert.Equal(t, "7", updated.Room)
	assert.Equal(t, details, updated.Details)
	assert.True(t, updated.AdmissionDate.Equal(rec.AdmissionDate))
	assert.True(t, updated.LastUpdated.After(rec.LastUpdated))

	_, err = f.mgr.Update(context.Background(), "missing", details)
	var nf domain.NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestRemove(t *testing.T) {
	f := newFixture(t)
	rec := f.admit(t, "Rossi", "7")
	require.NoError(t, f.mgr.Remove(context.Background(), rec.ID))
	_, err := f.mgr.Get(context.Background(), rec.ID)
	var nf domain.NotFoundError
	require.ErrorAs(t, err, &nf)
	require.ErrorAs(t, f.mgr.Remove(context.Background(), rec.ID), &nf)

	again := f.admit(t, "Verdi", "7")
	assert.Equal(t, "7", again.Room)
}

func TestMoveToFreeRoom(t *testing.T) {
	f := newFixture(t)
	rec := f.admit(t, "Rossi", "1")
	before := f.store.Load().Snapshot.Version

	res, err := f.mgr.Move(context.Background(), rec.ID, " 2 ")
	require.NoError(t, err)
	assert.True(t, res.Moved)
	assert.Nil(t, res.Conflict)
	assert.Equal(t, "1", res.FromRoom)
	assert.Equal(t, "2", res.ToRoom)
	assert.Equal(t, "2", res.Patient.Room)
	assert.True(t, res.Patient.AdmissionDate.Equal(rec.AdmissionDate))
	assert.NotEqual(t, before, f.store.Load().Snapshot.Version)
}

func TestMoveToOccupiedRoomReportsConflict(t *testing.T) {
	f := newFixture(t)
	a := f.admit(t, "Rossi", "1")
	b := f.admit(t, "Bianchi", "2")
	before := f.store.Load()

	res, err := f.mgr.Move(context.Background(), a.ID, "2")
	require.NoError(t, err)
	assert.False(t, res.Moved)
	require.NotNil(t, res.Conflict)
	assert.Equal(t, b.ID, res.Conflict.ID)
	assert.Equal(t, before.Snapshot.Version, f.store.Load().Snapshot.Version)
	assert.True(t, before.Snapshot.ContentEqual(f.store.Snapshot()))
}

func TestMoveToSameRoomIsNoop(t *testing.T) {
	f := newFixture(t)
	a := f.admit(t, "Rossi", "4b")
	before := f.store.Load().Snapshot.Version

	res, err := f.mgr.Move(context.Background(), a.ID, "4B")
	require.NoError(t, err)
	assert.False(t, res.Moved)
	assert.Nil(t, res.Conflict)
	assert.Equal(t, "4b", res.FromRoom)
	assert.Equal(t, "4b", res.ToRoom)
	assert.Equal(t, "4b", res.Patient.Room)
	assert.Equal(t, before, f.store.Load().Snapshot.Version)
}

func TestMoveErrors(t *testing.T) {
	f := newFixture(t)
	a := f.admit(t, "Rossi", "1")
	_, err := f.mgr.Move(context.Background(), "missing", "2")
	var nf domain.NotFoundError
	require.ErrorAs(t, err, &nf)
	_, err = f.mgr.Move(context.Background(), a.ID, " ")
	var verr domain.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestSwapExchangesRooms(t *testing.T) {
	f := newFixture(t)
	a := f.admit(t, "Rossi", "1")
	b := f.admit(t, "Bianchi", "2")
	now := *f.clock

	first, second, err := f.mgr.Swap(context.Background(), a.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "2", first.Room)
	assert.Equal(t, "1", second.Room)
	assert.True(t, first.LastUpdated.Equal(now))
	assert.True(t, second.LastUpdated.Equal(now))
	require.NoError(t, f.store.Snapshot().ValidateRooms())
}

func TestSwapIsCommutative(t *testing.T) {
	left := newFixture(t)
	right := newFixture(t)
	for _, f := range []fixture{left, right} {
		f.admit(t, "Rossi", "1")
		f.admit(t, "Bianchi", "2")
	}
	_, _, err := left.mgr.Swap(context.Background(), "p1", "p2")
	require.NoError(t, err)
	_, _, err = right.mgr.Swap(context.Background(), "p2", "p1")
	require.NoError(t, err)

	for _, id := range []string{"p1", "p2"} {
		l, _ := left.store.Snapshot().Find(id)
		r, _ := right.store.Snapshot().Find(id)
		assert.Equal(t, l.Room, r.Room, id)
	}
}

func TestSwapErrors(t *testing.T) {
	f := newFixture(t)
	a := f.admit(t, "Rossi", "1")
	before := f.store.Load().Snapshot.Version

	_, _, err := f.mgr.Swap(context.Background(), a.ID, a.ID)
	var inv domain.InvalidOperationError
	require.ErrorAs(t, err, &inv)

	_, _, err = f.mgr.Swap(context.Background(), a.ID, "missing")
	var nf domain.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "missing", nf.ID)
	assert.Equal(t, before, f.store.Load().Snapshot.Version)
	got, _ := f.store.Snapshot().Find(a.ID)
	assert.Equal(t, "1", got.Room)
}

func TestListAppliesQuery(t *testing.T) {
	f := newFixture(t)
	f.admit(t, "Rossi", "3")
	f.admit(t, "Bianchi", "1")
	got := f.mgr.List(context.Background(), domain.RosterQuery{SortBy: domain.SortRoom})
	require.Len(t, got, 2)
	assert.Equal(t, "Bianchi", got[0].Name)
}

func TestNotificationsFollowCommits(t *testing.T) {
	f := newFixture(t)
	var seen []int
	f.store.Subscribe(func(s domain.RosterSnapshot) { seen = append(seen, len(s.Patients)) })

	a := f.admit(t, "Rossi", "1")
	b := f.admit(t, "Bianchi", "2")
	_, err := f.mgr.Move(context.Background(), a.ID, "2")
	require.NoError(t, err)
	_, _, err = f.mgr.Swap(context.Background(), a.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 2}, seen)
}
