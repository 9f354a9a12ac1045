package entrykey

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/erigontech/gink/muid"
)

func TestUserKeyRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var key any
		if rapid.Bool().Draw(t, "isString") {
			key = rapid.String().Draw(t, "str")
		} else {
			key = rapid.Int64().Draw(t, "int")
		}
		b, err := EncodeUserKey(key)
		require.NoError(t, err)
		got, err := DecodeUserKey(b)
		require.NoError(t, err)
		require.Equal(t, key, got)
	})
}

func TestSequenceMiddleKeyRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		eff := rapid.Int64Range(1, 1<<40).Draw(t, "eff")
		m := muid.Muid{
			Timestamp: rapid.Int64Range(1, 1<<40).Draw(t, "ts"),
			Medallion: rapid.Int64Range(1, 1<<40).Draw(t, "medallion"),
			Offset:    int32(rapid.Int32Range(1, 1<<18).Draw(t, "offset")),
		}
		b := SequenceMiddleKey(eff, m)
		gotEff, gotMuid, err := ParseSequenceMiddleKey(b)
		require.NoError(t, err)
		require.Equal(t, eff, gotEff)
		require.Equal(t, m, gotMuid)
	})
}

func TestKeyRoundTrip(t *testing.T) {
	container := muid.Muid{Timestamp: 100, Medallion: 7, Offset: 1}
	entryMuid := muid.Muid{Timestamp: 200, Medallion: 7, Offset: 2}
	mk, err := EncodeUserKey("a")
	require.NoError(t, err)

	k := Key{Container: container, MiddleKey: mk, EntryMuid: entryMuid, Expiry: 0}
	raw := Build(k)
	got, err := Parse(raw)
	require.NoError(t, err)
	require.Equal(t, k.Container, got.Container)
	require.Equal(t, k.MiddleKey, got.MiddleKey)
	require.Equal(t, k.EntryMuid, got.EntryMuid)
	require.Equal(t, k.Expiry, got.Expiry)
}

// TestNewestSortsFirst checks spec.md §3's invariant: within a (container,
// middle-key) prefix, the newest entry (largest entry-muid timestamp) sorts
// first, because the entry-muid is stored inverted.
func TestNewestSortsFirst(t *testing.T) {
	container := muid.Muid{Timestamp: 100, Medallion: 7, Offset: 1}
	mk, _ := EncodeUserKey("a")

	older := Build(Key{Container: container, MiddleKey: mk, EntryMuid: muid.Muid{Timestamp: 100, Medallion: 7, Offset: 2}})
	newer := Build(Key{Container: container, MiddleKey: mk, EntryMuid: muid.Muid{Timestamp: 200, Medallion: 7, Offset: 2}})

	require.Less(t, string(newer), string(older), "newer entry must sort before older entry")
}

func TestSeekAsOfLandsWithinGroup(t *testing.T) {
	container := muid.Muid{Timestamp: 100, Medallion: 7, Offset: 1}
	mk, _ := EncodeUserKey("a")
	seek := SeekAsOf(container, mk, 150)
	entryAt100 := Build(Key{Container: container, MiddleKey: mk, EntryMuid: muid.Muid{Timestamp: 100, Medallion: 7, Offset: 2}})
	entryAt200 := Build(Key{Container: container, MiddleKey: mk, EntryMuid: muid.Muid{Timestamp: 200, Medallion: 7, Offset: 2}})
	// SeekGE(seek) for as_of=150 must land on the t=100 entry, not t=200.
	require.Less(t, string(seek), string(entryAt100), "seek key must sort before the newest entry not newer than as_of")
	require.Greater(t, string(seek), string(entryAt200), "seek key must sort after any entry newer than as_of")
}

func TestMiddleKeyOf(t *testing.T) {
	container := muid.Muid{Timestamp: 100, Medallion: 7, Offset: 1}
	mk, _ := EncodeUserKey("a")
	raw := Build(Key{Container: container, MiddleKey: mk, EntryMuid: muid.Muid{Timestamp: 100, Medallion: 7, Offset: 2}})
	got, err := MiddleKeyOf(raw, container)
	require.NoError(t, err)
	require.Equal(t, mk, got)
}
