package kosync

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/wbip/wbip/pkg/errcodes"
	"github.com/wbip/wbip/pkg/migrations"
)

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())

	_, err = migrations.BringUpToDate(context.Background(), db)
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func ptr[T any](v T) *T {
	return &v
}

func newPayload(document string, percentage float64) *ProgressPayload {
	return &ProgressPayload{
		Document:   document,
		Progress:   "/body/DocFragment[3]/body/p[12]/text().0",
		Percentage: ptr(percentage),
		Device:     "Kobo",
		DeviceID:   "device-1",
	}
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc := NewService(newTestDB(t), true)
	require.NoError(t, svc.Register(context.Background(), "alice", "key"))
	return svc
}

func TestService_PushPullRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := newTestService(t)
	svc.now = func() time.Time { return time.Unix(1700000000, 0) }
	creds := Credentials{Username: "alice", Userkey: "key"}

	res, err := svc.PushProgress(ctx, creds, newPayload("doc-1", 0.25))
	require.NoError(t, err)
	assert.Equal(t, &PushResult{Document: "doc-1", Timestamp: 1700000000}, res)

	doc, err := svc.PullProgress(ctx, creds, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "doc-1", doc.Document)
	assert.Equal(t, "/body/DocFragment[3]/body/p[12]/text().0", doc.Progress)
	assert.InDelta(t, 0.25, doc.Percentage, 1e-9)
	assert.Equal(t, "Kobo", doc.Device)
	assert.Equal(t, "device-1", doc.DeviceID)
	assert.Equal(t, int64(1700000000), doc.Timestamp)
}

func TestService_PushTwiceSecondWins(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := newTestService(t)
	creds := Credentials{Username: "alice", Userkey: "key"}

	_, err := svc.PushProgress(ctx, creds, newPayload("doc-1", 0.25))
	require.NoError(t, err)
	second := newPayload("doc-1", 0.5)
	second.DeviceID = "device-2"
	_, err = svc.PushProgress(ctx, creds, second)
	require.NoError(t, err)

	doc, err := svc.PullProgress(ctx, creds, "doc-1")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, doc.Percentage, 1e-9)
	assert.Equal(t, "device-2", doc.DeviceID)
}

func TestService_PushRejectsPercentageOutOfRange(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := newTestService(t)
	creds := Credentials{Username: "alice", Userkey: "key"}

	for _, pct := range []float64{-0.01, 1.01, 2} {
		_, err := svc.PushProgress(ctx, creds, newPayload("doc-1", pct))
		var e *errcodes.Error
		require.ErrorAs(t, err, &e)
		assert.Equal(t, 400, e.HTTPCode)
	}

	_, err := svc.PullProgress(ctx, creds, "doc-1")
	assert.ErrorIs(t, err, errcodes.NotFound("Document"))

	for _, pct := range []float64{0, 1} {
		_, err := svc.PushProgress(ctx, creds, newPayload("doc-1", pct))
		assert.NoError(t, err)
	}
}

func TestService_PushValidatesBeforeAuthenticating(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := newTestService(t)

	payload := newPayload("doc-1", 0.5)
	payload.Device = ""
	_, err := svc.PushProgress(ctx, Credentials{Username: "alice", Userkey: "wrong"}, payload)
	var e *errcodes.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, 400, e.HTTPCode)

	_, err = svc.PushProgress(ctx, Credentials{Username: "alice", Userkey: "wrong"}, newPayload("doc-1", 0.5))
	assert.ErrorIs(t, err, errcodes.Unauthorized())

	_, err = svc.PushProgress(ctx, Credentials{}, newPayload("doc-1", 0.5))
	require.ErrorAs(t, err, &e)
	assert.Equal(t, 400, e.HTTPCode)
}

func TestService_Register(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := newTestService(t)

	err := svc.Register(ctx, "alice", "other")
	assert.ErrorIs(t, err, errcodes.Conflict("Username is already registered."))

	// The original key still works; the conflicting one never did.
	assert.NoError(t, svc.Authorize(ctx, Credentials{Username: "alice", Userkey: "key"}))
	assert.ErrorIs(t, svc.Authorize(ctx, Credentials{Username: "alice", Userkey: "other"}), errcodes.Unauthorized())

	var e *errcodes.Error
	require.ErrorAs(t, svc.Register(ctx, "", "key"), &e)
	assert.Equal(t, 400, e.HTTPCode)
}

func TestService_RegisterDisabled(t *testing.T) {
	t.Parallel()
	svc := NewService(newTestDB(t), false)

	err := svc.Register(context.Background(), "alice", "key")
	var e *errcodes.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, 400, e.HTTPCode)
}

func TestService_Authorize(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := newTestService(t)

	var e *errcodes.Error
	require.ErrorAs(t, svc.Authorize(ctx, Credentials{Username: "alice"}), &e)
	assert.Equal(t, 400, e.HTTPCode)

	assert.ErrorIs(t, svc.Authorize(ctx, Credentials{Username: "bob", Userkey: "key"}), errcodes.Unauthorized())
	assert.NoError(t, svc.Authorize(ctx, Credentials{Username: "alice", Userkey: "key"}))
}

func TestService_PullRequiresLogin(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := newTestService(t)

	_, err := svc.PushProgress(ctx, Credentials{Username: "alice", Userkey: "key"}, newPayload("doc-1", 0.5))
	require.NoError(t, err)

	_, err = svc.PullProgress(ctx, Credentials{Username: "alice", Userkey: "nope"}, "doc-1")
	assert.ErrorIs(t, err, errcodes.Unauthorized())
}
