package chaintracker

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/erigontech/gink/chain"
)

func TestMarkAsHavingAndHasSeen(t *testing.T) {
	tr := New()
	start := chain.BundleInfo{Timestamp: 100, Medallion: 1, ChainStart: 100}
	require.False(t, tr.HasSeen(start))

	tr.MarkAsHaving(start)
	require.True(t, tr.HasSeen(start))

	older := chain.BundleInfo{Timestamp: 90, Medallion: 1, ChainStart: 100, PriorTime: 0}
	require.True(t, tr.HasSeen(older), "an older bundle on an already-seen chain counts as seen")

	next := chain.BundleInfo{Timestamp: 200, Medallion: 1, ChainStart: 100, PriorTime: 100}
	require.False(t, tr.HasSeen(next))
	tr.MarkAsHaving(next)
	require.True(t, tr.HasSeen(next))

	head, ok := tr.HeadOf(start.Chain())
	require.True(t, ok)
	require.Equal(t, next, head)
}

func TestMarkAsHavingIgnoresOlderUpdate(t *testing.T) {
	tr := New()
	head := chain.BundleInfo{Timestamp: 200, Medallion: 1, ChainStart: 100, PriorTime: 100}
	tr.MarkAsHaving(head)

	stale := chain.BundleInfo{Timestamp: 100, Medallion: 1, ChainStart: 100}
	tr.MarkAsHaving(stale)

	got, ok := tr.HeadOf(head.Chain())
	require.True(t, ok)
	require.Equal(t, head, got, "marking an older bundle must not regress the recorded head")
}

func TestEachIteratesInMedallionOrder(t *testing.T) {
	tr := New()
	tr.MarkAsHaving(chain.BundleInfo{Timestamp: 100, Medallion: 3, ChainStart: 100})
	tr.MarkAsHaving(chain.BundleInfo{Timestamp: 100, Medallion: 1, ChainStart: 100})
	tr.MarkAsHaving(chain.BundleInfo{Timestamp: 100, Medallion: 2, ChainStart: 100})

	var medallions []int64
	tr.Each(func(bi chain.BundleInfo) bool {
		medallions = append(medallions, bi.Medallion)
		return true
	})
	require.Equal(t, []int64{1, 2, 3}, medallions)
	require.Equal(t, 3, tr.Len())
}
