package kv

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func put(t *testing.T, m *Memory, kvs ...string) {
	t.Helper()
	ctx := context.Background()
	tx, err := m.Begin(ctx, true)
	require.NoError(t, err)
	for i := 0; i < len(kvs); i += 2 {
		require.NoError(t, tx.Put(ctx, []byte(kvs[i]), []byte(kvs[i+1])))
	}
	require.NoError(t, tx.Commit())
}

func keys(pairs []Pair) []string {
	out := make([]string, len(pairs))
	for i, p := range pairs {
		out[i] = string(p.Key)
	}
	return out
}

func TestMemory_GetPut(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	put(t, m, "a", "1")

	tx, err := m.Begin(ctx, false)
	require.NoError(t, err)
	defer tx.Rollback()

	v, found, err := tx.Get(ctx, []byte("a"))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "1", string(v))

	_, found, err = tx.Get(ctx, []byte("missing"))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemory_ScanOrderedAndBounded(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	put(t, m, "b", "2", "a", "1", "d", "4", "c", "3")

	tx, err := m.Begin(ctx, false)
	require.NoError(t, err)
	defer tx.Rollback()

	pairs, err := tx.Scan(ctx, []byte("b"), []byte("d"))
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, keys(pairs))

	pairs, err = tx.Scan(ctx, []byte("b"), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c", "d"}, keys(pairs))
}

func TestMemory_ReadYourWrites(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	put(t, m, "p/1", "x", "p/2", "y", "p/3", "z")

	tx, err := m.Begin(ctx, true)
	require.NoError(t, err)
	defer tx.Rollback()

	require.NoError(t, tx.Delete(ctx, []byte("p/2")))
	require.NoError(t, tx.Put(ctx, []byte("p/4"), []byte("w")))
	require.NoError(t, tx.Put(ctx, []byte("p/1"), []byte("x2")))

	pairs, err := ScanPrefix(ctx, tx, []byte("p/"))
	require.NoError(t, err)
	assert.Equal(t, []string{"p/1", "p/3", "p/4"}, keys(pairs))
	assert.Equal(t, "x2", string(pairs[0].Value))

	_, found, err := tx.Get(ctx, []byte("p/2"))
	require.NoError(t, err)
	assert.False(t, found)

	// Not visible outside the transaction until commit.
	other, err := m.Begin(ctx, false)
	require.NoError(t, err)
	_, found, err = other.Get(ctx, []byte("p/4"))
	require.NoError(t, err)
	assert.False(t, found)
	require.NoError(t, other.Rollback())
}

func TestMemory_ReadTxIsSnapshot(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	put(t, m, "a", "1")

	tx, err := m.Begin(ctx, false)
	require.NoError(t, err)
	defer tx.Rollback()

	_, found, err := tx.Get(ctx, []byte("k"))
	require.NoError(t, err)
	assert.False(t, found)

	put(t, m, "k", "v", "a", "2")

	_, found, err = tx.Get(ctx, []byte("k"))
	require.NoError(t, err)
	assert.False(t, found, "commit after Begin must stay invisible")

	v, _, err := tx.Get(ctx, []byte("a"))
	require.NoError(t, err)
	assert.Equal(t, "1", string(v))

	pairs, err := tx.Scan(ctx, []byte(""), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, keys(pairs))

	fresh, err := m.Begin(ctx, false)
	require.NoError(t, err)
	defer fresh.Rollback()
	pairs, err = fresh.Scan(ctx, []byte(""), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "k"}, keys(pairs))
}

func TestMemory_WriteTxIsSnapshot(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	tx, err := m.Begin(ctx, true)
	require.NoError(t, err)
	defer tx.Rollback()
	require.NoError(t, tx.Put(ctx, []byte("mine"), []byte("1")))

	put(t, m, "other", "2")

	pairs, err := tx.Scan(ctx, []byte(""), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"mine"}, keys(pairs))

	// Commit still installs on top of the latest state.
	require.NoError(t, tx.Commit())
	assert.Equal(t, 2, m.Len())
}

func TestMemory_RollbackDiscards(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	tx, err := m.Begin(ctx, true)
	require.NoError(t, err)
	require.NoError(t, tx.Put(ctx, []byte("a"), []byte("1")))
	require.NoError(t, tx.Rollback())

	assert.Equal(t, 0, m.Len())
	assert.ErrorIs(t, tx.Commit(), ErrTxDone)
}

func TestMemory_RollbackAfterCommitIsNoop(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	tx, err := m.Begin(ctx, true)
	require.NoError(t, err)
	require.NoError(t, tx.Put(ctx, []byte("a"), []byte("1")))
	require.NoError(t, tx.Commit())
	require.NoError(t, tx.Rollback())

	assert.Equal(t, 1, m.Len())
}

func TestMemory_ReadOnlyRejectsWrites(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	tx, err := m.Begin(ctx, false)
	require.NoError(t, err)
	defer tx.Rollback()

	assert.ErrorIs(t, tx.Put(ctx, []byte("a"), []byte("1")), ErrReadOnly)
	assert.ErrorIs(t, tx.Delete(ctx, []byte("a")), ErrReadOnly)
}

func TestMemory_Closed(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Close())

	_, err := m.Begin(context.Background(), false)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMemory_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMemory().Begin(ctx, true)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemory_ConcurrentCommits(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tx, err := m.Begin(ctx, true)
			if !assert.NoError(t, err) {
				return
			}
			k := fmt.Sprintf("k%03d", i)
			assert.NoError(t, tx.Put(ctx, []byte(k), []byte(k)))
			assert.NoError(t, tx.Commit())
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, m.Len())
}

func TestPrefixEnd(t *testing.T) {
	assert.Equal(t, []byte("b"), PrefixEnd([]byte("a")))
	assert.Equal(t, []byte{0x01, 0x03}, PrefixEnd([]byte{0x01, 0x02}))
	assert.Equal(t, []byte{0x02}, PrefixEnd([]byte{0x01, 0xff}))
	assert.Nil(t, PrefixEnd([]byte{0xff, 0xff}))
}
