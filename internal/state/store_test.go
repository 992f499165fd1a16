package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/autokuma/autokuma/internal/entity"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenInMemory(zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestPutGetDelete(t *testing.T) {
	store := newStore(t)

	_, ok, err := store.Get(entity.KindMonitor, "demo")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Put(entity.KindMonitor, "demo", "42"))

	value, ok, err := store.Get(entity.KindMonitor, "demo")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "42", value)

	// The same AutoKuma ID under another kind is a different key.
	_, ok, err = store.Get(entity.KindTag, "demo")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Delete(entity.KindMonitor, "demo"))
	_, ok, err = store.Get(entity.KindMonitor, "demo")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListAndClean(t *testing.T) {
	store := newStore(t)

	require.NoError(t, store.Put(entity.KindMonitor, "a", "1"))
	require.NoError(t, store.Put(entity.KindMonitor, "b", "2"))
	require.NoError(t, store.Put(entity.KindTag, "t", "9"))

	monitors, err := store.List(entity.KindMonitor)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, monitors)

	// "2" vanished server-side; its mapping goes away, "t" is untouched.
	require.NoError(t, store.Clean(entity.KindMonitor, map[string]struct{}{"1": {}}))

	monitors, err = store.List(entity.KindMonitor)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1"}, monitors)

	tags, err := store.List(entity.KindTag)
	require.NoError(t, err)
	assert.Len(t, tags, 1)
}

func TestMissingMarkers(t *testing.T) {
	store := newStore(t)
	now := time.Now().Truncate(time.Second)

	_, marked, err := store.MissingSince(entity.KindMonitor, "demo")
	require.NoError(t, err)
	assert.False(t, marked)

	require.NoError(t, store.MarkMissing(entity.KindMonitor, "demo", now))

	since, marked, err := store.MissingSince(entity.KindMonitor, "demo")
	require.NoError(t, err)
	require.True(t, marked)
	assert.Equal(t, now.Unix(), since.Unix())

	// Re-marking keeps the original timestamp.
	require.NoError(t, store.MarkMissing(entity.KindMonitor, "demo", now.Add(time.Hour)))
	since, _, err = store.MissingSince(entity.KindMonitor, "demo")
	require.NoError(t, err)
	assert.Equal(t, now.Unix(), since.Unix())

	require.NoError(t, store.ClearMissing(entity.KindMonitor, "demo"))
	_, marked, err = store.MissingSince(entity.KindMonitor, "demo")
	require.NoError(t, err)
	assert.False(t, marked)
}

func TestDeleteRemovesMissingMarker(t *testing.T) {
	store := newStore(t)

	require.NoError(t, store.Put(entity.KindMonitor, "demo", "1"))
	require.NoError(t, store.MarkMissing(entity.KindMonitor, "demo", time.Now()))
	require.NoError(t, store.Delete(entity.KindMonitor, "demo"))

	_, marked, err := store.MissingSince(entity.KindMonitor, "demo")
	require.NoError(t, err)
	assert.False(t, marked)
}

func TestVersion(t *testing.T) {
	store := newStore(t)

	version, err := store.Version()
	require.NoError(t, err)
	assert.Equal(t, 0, version)

	require.NoError(t, store.SetVersion(1))
	version, err = store.Version()
	require.NoError(t, err)
	assert.Equal(t, 1, version)
}

func TestLookupImplementsIDLookup(t *testing.T) {
	store := newStore(t)

	require.NoError(t, store.Put(entity.KindNotification, "mail", "3"))
	require.NoError(t, store.Put(entity.KindStatusPage, "page", "public"))

	id, ok := store.LookupID(entity.KindNotification, "mail")
	require.True(t, ok)
	assert.Equal(t, 3, id)

	_, ok = store.LookupID(entity.KindNotification, "missing")
	assert.False(t, ok)

	slug, ok := store.LookupSlug("page")
	require.True(t, ok)
	assert.Equal(t, "public", slug)
}

func TestAuthTokenFile(t *testing.T) {
	store, err := Open(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	defer store.Close()

	assert.Empty(t, store.LoadAuthToken())

	require.NoError(t, store.StoreAuthToken("jwt-token"))
	assert.Equal(t, "jwt-token", store.LoadAuthToken())

	store.PurgeAuthToken()
	assert.Empty(t, store.LoadAuthToken())
}
