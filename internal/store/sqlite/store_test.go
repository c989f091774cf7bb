package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockchart/internal/model"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := New(Config{Path: filepath.Join(t.TempDir(), "nested", "settings.db")})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_LoadMissing(t *testing.T) {
	s := openTemp(t)
	_, err := s.Load(context.Background(), "settings")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestStore_SaveLoad(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	require.NoError(t, s.Ping(ctx))

	require.NoError(t, s.Save(ctx, "settings", []byte(`{"theme":"dark"}`)))
	require.NoError(t, s.Save(ctx, "settings", []byte(`{"theme":"light"}`)))

	got, err := s.Load(ctx, "settings")
	require.NoError(t, err)
	assert.JSONEq(t, `{"theme":"light"}`, string(got))

	_, err = s.Load(ctx, "other")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestStore_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "settings.db")

	s, err := New(Config{Path: path})
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, "settings", []byte(`{"a":1}`)))
	require.NoError(t, s.Close())

	s, err = New(Config{Path: path})
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Load(ctx, "settings")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(got))
}

func TestStore_HistoryPrunedAndRestorable(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	for i := 0; i < historyKeep+5; i++ {
		require.NoError(t, s.Save(ctx, "settings", []byte(fmt.Sprintf(`{"v":%d}`, i))))
	}
	require.NoError(t, s.Save(ctx, "other", []byte(`{}`)))

	versions, err := s.History(ctx, "settings", 0)
	require.NoError(t, err)
	require.Len(t, versions, historyKeep)
	assert.Equal(t, `{"v":14}`, string(versions[0].Data))
	assert.Equal(t, `{"v":5}`, string(versions[historyKeep-1].Data))

	data, err := s.Restore(ctx, "settings", 2)
	require.NoError(t, err)
	assert.Equal(t, `{"v":12}`, string(data))

	got, err := s.Load(ctx, "settings")
	require.NoError(t, err)
	assert.Equal(t, `{"v":12}`, string(got))

	_, err = s.Restore(ctx, "settings", 99)
	assert.Error(t, err)
}
