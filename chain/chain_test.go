package chain

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestChainRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		c := Chain{
			Medallion:  rapid.Int64Range(1, 1<<40).Draw(t, "medallion"),
			ChainStart: rapid.Int64Range(1, 1<<40).Draw(t, "chainStart"),
		}
		b := c.Bytes()
		got, err := ChainFromBytes(b[:])
		require.NoError(t, err)
		require.Equal(t, c, got)
	})
}

func TestBundleInfoRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var h Hash
		for i := range h {
			h[i] = byte(rapid.IntRange(0, 255).Draw(t, "hashByte"))
		}
		bi := BundleInfo{
			Timestamp:  rapid.Int64Range(1, 1<<40).Draw(t, "ts"),
			Medallion:  rapid.Int64Range(1, 1<<40).Draw(t, "medallion"),
			ChainStart: rapid.Int64Range(1, 1<<40).Draw(t, "chainStart"),
			PriorTime:  rapid.Int64Range(0, 1<<40).Draw(t, "priorTime"),
			Hash:       h,
		}
		b := bi.Bytes()
		got, err := InfoFromBytes(b[:])
		require.NoError(t, err)
		require.Equal(t, bi, got)
	})
}

func TestBundleInfoOrdersByTimestampMajor(t *testing.T) {
	a := BundleInfo{Timestamp: 100, Medallion: 7, ChainStart: 100}
	b := BundleInfo{Timestamp: 150, Medallion: 8, ChainStart: 150}
	require.True(t, a.Less(b))
	require.False(t, b.Less(a))
}

func TestIsChainStart(t *testing.T) {
	require.True(t, BundleInfo{Timestamp: 100, ChainStart: 100, PriorTime: 0}.IsChainStart())
	require.False(t, BundleInfo{Timestamp: 200, ChainStart: 100, PriorTime: 100}.IsChainStart())
}
