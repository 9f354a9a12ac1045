package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
	"pgregory.net/rapid"

	"github.com/erigontech/gink/chain"
	"github.com/erigontech/gink/entrykey"
	"github.com/erigontech/gink/muid"
)

func refGen(t *rapid.T, label string) muid.Ref {
	return muid.Ref{
		Timestamp: rapid.Int64Range(0, 1<<40).Draw(t, label+".ts"),
		Medallion: rapid.Int64Range(0, 1<<40).Draw(t, label+".medallion"),
		Offset:    int32(rapid.Int32Range(0, 1<<18).Draw(t, label+".offset")),
	}
}

func TestEntryRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		e := Entry{
			Container: refGen(t, "container"),
			HasKey:    rapid.Bool().Draw(t, "hasKey"),
			Effective: rapid.Int64Range(0, 1<<40).Draw(t, "effective"),
			Expiry:    rapid.Int64Range(0, 1<<40).Draw(t, "expiry"),
			Deletion:  rapid.Bool().Draw(t, "deletion"),
		}
		if e.HasKey {
			key, err := entrykey.EncodeUserKey(rapid.String().Draw(t, "key"))
			require.NoError(t, err)
			e.Key = key
		}
		e.HasMove = rapid.Bool().Draw(t, "hasMove")
		if e.HasMove {
			e.Move = refGen(t, "move")
		}
		e.HasPointee = rapid.Bool().Draw(t, "hasPointee")
		if e.HasPointee {
			e.Pointee = refGen(t, "pointee")
		}
		if rapid.Bool().Draw(t, "hasValue") {
			e.Value = []byte(rapid.String().Draw(t, "value"))
		}

		got, err := UnmarshalEntry(e.Marshal())
		require.NoError(t, err)
		require.Equal(t, e.Container, got.Container)
		require.Equal(t, e.HasKey, got.HasKey)
		if e.HasKey {
			require.Equal(t, e.Key, got.Key)
		}
		require.Equal(t, e.Effective, got.Effective)
		require.Equal(t, e.HasMove, got.HasMove)
		if e.HasMove {
			require.Equal(t, e.Move, got.Move)
		}
		require.Equal(t, e.Expiry, got.Expiry)
		require.Equal(t, e.HasPointee, got.HasPointee)
		if e.HasPointee {
			require.Equal(t, e.Pointee, got.Pointee)
		}
		require.Equal(t, e.Deletion, got.Deletion)
		require.Equal(t, e.Value, got.Value)
	})
}

func TestContainerDefRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		d := ContainerDef{
			Behavior: entrykey.Behavior(rapid.IntRange(0, 2).Draw(t, "behavior")),
			Body:     []byte(rapid.String().Draw(t, "body")),
		}
		got, err := UnmarshalContainerDef(d.Marshal())
		require.NoError(t, err)
		require.Equal(t, d.Behavior, got.Behavior)
		require.Equal(t, d.Body, got.Body)
	})
}

func TestBundleRoundTrip(t *testing.T) {
	container := entrykey.Directory
	cd := ContainerDef{Behavior: container, Body: []byte("a directory")}
	key, err := entrykey.EncodeUserKey("name")
	require.NoError(t, err)

	bd := Bundle{
		Timestamp:  1000,
		Medallion:  42,
		ChainStart: 1000,
		PriorTime:  0,
		Hash:       chain.Hash{1, 2, 3},
		Changes: map[int32]Change{
			0: {Offset: 0, HasContainer: true, ContainerDef: cd.Marshal()},
			1: {Offset: 1, HasEntry: true, Entry: Entry{
				Container: muid.Ref{Timestamp: 1000, Medallion: 42, Offset: 0},
				HasKey:    true,
				Key:       key,
				Value:     []byte("hello"),
			}},
		},
	}

	got, err := Unmarshal(bd.Marshal())
	require.NoError(t, err)
	require.Equal(t, bd.Timestamp, got.Timestamp)
	require.Equal(t, bd.Medallion, got.Medallion)
	require.Equal(t, bd.ChainStart, got.ChainStart)
	require.Equal(t, bd.PriorTime, got.PriorTime)
	require.Equal(t, bd.Hash, got.Hash)
	require.Len(t, got.Changes, 2)

	c0 := got.Changes[0]
	require.True(t, c0.HasContainer)
	gotCd, err := UnmarshalContainerDef(c0.ContainerDef)
	require.NoError(t, err)
	require.Equal(t, cd.Behavior, gotCd.Behavior)
	require.Equal(t, cd.Body, gotCd.Body)

	c1 := got.Changes[1]
	require.True(t, c1.HasEntry)
	require.Equal(t, "hello", string(c1.Entry.Value))

	info := got.Info()
	require.Equal(t, bd.Timestamp, info.Timestamp)
	require.True(t, info.IsChainStart())
}

func TestEntryEquivalent(t *testing.T) {
	a := Entry{Value: []byte("x")}
	b := Entry{Value: []byte("x")}
	require.True(t, a.Equivalent(b))

	b.Deletion = true
	require.False(t, a.Equivalent(b))

	c := Entry{HasPointee: true, Pointee: muid.Ref{Timestamp: 1}}
	d := Entry{HasPointee: true, Pointee: muid.Ref{Timestamp: 2}}
	require.False(t, c.Equivalent(d))
}

func TestUnknownFieldsAreSkipped(t *testing.T) {
	e := Entry{Value: []byte("v")}
	raw := e.Marshal()
	raw = protowire.AppendTag(raw, 99, protowire.VarintType)
	raw = protowire.AppendVarint(raw, 1)
	got, err := UnmarshalEntry(raw)
	require.NoError(t, err)
	require.Equal(t, e.Value, got.Value)
}
