package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gate-service/internal/approval"
	"gate-service/internal/config"
	"gate-service/internal/db"
	"gate-service/internal/domain/anpr"
	"gate-service/internal/registry"
	"gate-service/internal/repository"
)

type sent struct {
	kind     string
	chatID   int64
	plate    string
	imageRef string
}

type recordingSink struct {
	mu   sync.Mutex
	sent []sent
	err  error
}

func (s *recordingSink) Notify(_ context.Context, owner anpr.Owner, plate, imageRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sent{kind: "alert", chatID: owner.ChatID, plate: plate, imageRef: imageRef})
	return s.err
}

func (s *recordingSink) NotifyTimeout(_ context.Context, owner anpr.Owner, plate string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sent{kind: "timeout", chatID: owner.ChatID, plate: plate})
	return s.err
}

func newTestService(t *testing.T) (*GateService, *repository.GateRepository, *recordingSink) {
	t.Helper()
	gdb, err := db.Connect(config.Database{Driver: "sqlite", DSN: ":memory:"}, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb, zerolog.Nop()))
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	repo := repository.NewGateRepository(gdb)
	sink := &recordingSink{}
	matcher := registry.NewMatcher(repo, time.Minute, zerolog.Nop())
	return NewGateService(repo, matcher, repo, sink, repo, zerolog.Nop()), repo, sink
}

func TestRegisterOwnerValidates(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	cases := []anpr.RegisterPayload{
		{Name: "Budi", ChatID: 1},
		{Plate: "B1234AB", ChatID: 1},
		{Name: "Budi", Plate: "B1234AB"},
		{Name: "Budi", Plate: " - ", ChatID: 1},
	}
	for _, payload := range cases {
		_, err := svc.RegisterOwner(ctx, payload)
		assert.ErrorIs(t, err, ErrInvalidInput, "%+v", payload)
	}
}

func TestRegisterOwnerRefreshesLookup(t *testing.T) {
	svc, _, sink := newTestService(t)
	ctx := context.Background()

	_, err := svc.RelayNotify(ctx, anpr.NotifyPayload{Plate: "B1234AB"})
	require.ErrorIs(t, err, ErrNotFound)

	owner, err := svc.RegisterOwner(ctx, anpr.RegisterPayload{Name: " Budi ", Username: "@budi", Plate: "b 1234-ab", ChatID: 42})
	require.NoError(t, err)
	assert.Equal(t, anpr.Owner{Name: "Budi", Username: "budi", Plate: "B1234AB", ChatID: 42}, *owner)

	res, err := svc.RelayNotify(ctx, anpr.NotifyPayload{Plate: "B1234AB", ImageURL: "http://cam/x.jpg"})
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Status)
	require.Len(t, sink.sent, 1)
	assert.Equal(t, sent{kind: "alert", chatID: 42, plate: "B1234AB", imageRef: "http://cam/x.jpg"}, sink.sent[0])

	owners, err := svc.ListOwners(ctx)
	require.NoError(t, err)
	assert.Len(t, owners, 1)
}

func TestListOwnersEmpty(t *testing.T) {
	svc, _, _ := newTestService(t)
	owners, err := svc.ListOwners(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, owners)
	assert.Empty(t, owners)
}

func TestDecide(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Decide(ctx, "B1234AB", "izinkan")
	assert.ErrorIs(t, err, ErrNotPending)

	require.NoError(t, repo.MarkPending(ctx, "B1234AB"))

	_, err = svc.Decide(ctx, "B1234AB", "maybe")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.Decide(ctx, "", "allowed")
	assert.ErrorIs(t, err, ErrInvalidInput)

	status, err := svc.Decide(ctx, "b 1234 ab", "izinkan")
	require.NoError(t, err)
	assert.Equal(t, approval.StatusAllowed, status)

	got, err := repo.Consume(ctx, "B1234AB")
	require.NoError(t, err)
	assert.Equal(t, approval.StatusAllowed, got)
}

func TestPendingPlates(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	plates, err := svc.PendingPlates(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{}, plates)

	require.NoError(t, repo.MarkPending(ctx, "D77XY"))
	require.NoError(t, repo.MarkPending(ctx, "B1234AB"))
	plates, err = svc.PendingPlates(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"B1234AB", "D77XY"}, plates)
}

func TestRelayTimeout(t *testing.T) {
	svc, _, sink := newTestService(t)
	ctx := context.Background()

	_, err := svc.RelayTimeout(ctx, anpr.TimeoutPayload{})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.RelayTimeout(ctx, anpr.TimeoutPayload{Plate: "B1234AB"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.RegisterOwner(ctx, anpr.RegisterPayload{Name: "Budi", Plate: "B1234AB", ChatID: 7})
	require.NoError(t, err)

	res, err := svc.RelayTimeout(ctx, anpr.TimeoutPayload{Plate: "B1234AB"})
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Status)
	require.Len(t, sink.sent, 1)
	assert.Equal(t, "timeout", sink.sent[0].kind)
}

func TestRelaySinkFailure(t *testing.T) {
	svc, _, sink := newTestService(t)
	ctx := context.Background()
	sink.err = errors.New("telegram down")

	_, err := svc.RegisterOwner(ctx, anpr.RegisterPayload{Name: "Budi", Plate: "B1234AB", ChatID: 7})
	require.NoError(t, err)

	_, err = svc.RelayNotify(ctx, anpr.NotifyPayload{Plate: "B1234AB"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestRecordAndFindEvents(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	owner := anpr.Owner{Name: "Budi", Plate: "B1234AB", ChatID: 7}
	notified := anpr.NewGateEvent(anpr.EventNotified, "B1234AB", owner, base)
	notified.TrackID = "3"
	require.NoError(t, svc.RecordEvent(ctx, notified))
	require.NoError(t, svc.RecordEvent(ctx, anpr.NewGateEvent(anpr.EventAllowed, "B1234AB", owner, base.Add(10*time.Second))))
	require.NoError(t, svc.RecordEvent(ctx, anpr.NewGateEvent(anpr.EventTimeout, "D77XY", anpr.Owner{Plate: "D77XY"}, base.Add(time.Minute))))

	all, err := svc.FindEvents(ctx, nil, nil, nil, nil, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "D77XY", all[0].Plate, "newest first")

	plate := "b 1234 ab"
	byPlate, err := svc.FindEvents(ctx, &plate, nil, nil, nil, 10, 0)
	require.NoError(t, err)
	assert.Len(t, byPlate, 2)

	allowed := string(anpr.EventAllowed)
	byType, err := svc.FindEvents(ctx, nil, &allowed, nil, nil, 10, 0)
	require.NoError(t, err)
	require.Len(t, byType, 1)
	assert.Equal(t, string(anpr.EventAllowed), byType[0].Type)

	from := base.Add(5 * time.Second).Format(time.RFC3339)
	windowed, err := svc.FindEvents(ctx, nil, nil, &from, nil, 10, 0)
	require.NoError(t, err)
	assert.Len(t, windowed, 2)
}

func TestFindEventsRejectsBadInput(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	bad := "yesterday"
	_, err := svc.FindEvents(ctx, nil, nil, &bad, nil, 10, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.FindEvents(ctx, nil, nil, nil, &bad, 10, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)

	unknown := "opened"
	_, err = svc.FindEvents(ctx, nil, &unknown, nil, nil, 10, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCleanupOldEvents(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CleanupOldEvents(ctx, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)

	old := anpr.NewGateEvent(anpr.EventTimeout, "B1234AB", anpr.Owner{}, time.Now().AddDate(0, 0, -40))
	require.NoError(t, svc.RecordEvent(ctx, old))
	require.NoError(t, svc.RecordEvent(ctx, anpr.NewGateEvent(anpr.EventAllowed, "B1234AB", anpr.Owner{}, time.Now())))

	deleted, err := svc.CleanupOldEvents(ctx, 30)
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)
}
