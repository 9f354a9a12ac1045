package muid

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// legalMuid generates muids within the ranges a real producer would emit:
// positive, well within each field's hex-digit budget so mod-reduction in
// Bytes/FromBytes never kicks in.
func legalMuid(t *rapid.T) Muid {
	return Muid{
		Timestamp: rapid.Int64Range(1, 1<<48).Draw(t, "timestamp"),
		Medallion: rapid.Int64Range(1, 1<<48).Draw(t, "medallion"),
		Offset:    int32(rapid.Int32Range(1, 1<<18).Draw(t, "offset")),
	}
}

func TestMuidRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := legalMuid(t)
		b := m.Bytes()
		got, err := FromBytes(b[:])
		require.NoError(t, err)
		require.Equal(t, m, got)
	})
}

func TestMuidInversionRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := legalMuid(t)
		b := m.Invert().Bytes()
		got, err := FromBytes(b[:])
		require.NoError(t, err)
		require.Equal(t, m.Invert(), got)
	})
}

func TestMuidInversionIsSelfInverse(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := legalMuid(t)
		require.Equal(t, m, m.Invert().Invert())
	})
}

// TestMuidInversionOrder checks spec.md's central claim: for m1 < m2,
// bytes(inv(m1)) > bytes(inv(m2)) in unsigned lexicographic order. This is
// what allows "seek to first key >= X" to realise "newest entry not newer
// than T" in a single operation.
func TestMuidInversionOrder(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m1 := legalMuid(t)
		m2 := legalMuid(t)
		rapid.Assume(m1 != m2)
		if m2.Less(m1) {
			m1, m2 = m2, m1
		}
		b1 := m1.Invert().Bytes()
		b2 := m2.Invert().Bytes()
		require.Equal(t, 1, compareBytes(b1[:], b2[:]), "inv(%v) should sort after inv(%v)", m1, m2)
	})
}

func compareBytes(a, b []byte) int {
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

func TestMuidStringRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := legalMuid(t)
		s := m.String()
		require.Len(t, s, StringLen)
		got, err := FromString(s)
		require.NoError(t, err)
		require.Equal(t, m, got)
	})
}

func TestCreateInheritsFromContext(t *testing.T) {
	ctx := fakeContext{timestamp: 100, medallion: 7}
	m, err := Create(Ref{}, ctx, 3)
	require.NoError(t, err)
	require.Equal(t, Muid{100, 7, 3}, m)
}

func TestCreateRejectsUnresolvedField(t *testing.T) {
	ctx := fakeContext{timestamp: 100, medallion: 0}
	_, err := Create(Ref{}, ctx, 3)
	require.Error(t, err)
}

type fakeContext struct {
	timestamp int64
	medallion int64
}

func (f fakeContext) ContextTimestamp() int64 { return f.timestamp }
func (f fakeContext) ContextMedallion() int64 { return f.medallion }
