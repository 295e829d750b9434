package progress

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRejectsNonPositiveTotal(t *testing.T) {
	_, err := New(1, 0)
	require.ErrorIs(t, err, ErrInvalidProgress)

	_, err = New(1, -3)
	require.ErrorIs(t, err, ErrInvalidProgress)
}

func TestNewClampsOutOfRangeDone(t *testing.T) {
	p, err := New(-2, 5)
	require.NoError(t, err)
	done, total := p.Frac()
	require.Equal(t, 0.0, done)
	require.Equal(t, 5.0, total)

	p, err = New(7, 5)
	require.NoError(t, err)
	done, total = p.Frac()
	require.Equal(t, 5.0, done)
	require.Equal(t, 5.0, total)
}

func TestPercent(t *testing.T) {
	cases := []struct {
		done, total, want float64
	}{
		{0, 2, 0},
		{1, 2, 50},
		{2, 2, 100},
		{1, 3, 100.0 / 3},
	}
	for _, tc := range cases {
		p, err := New(tc.done, tc.total)
		require.NoError(t, err)
		require.InDelta(t, tc.want, p.Percent(), 1e-9)
	}
}

func TestTernaryClassification(t *testing.T) {
	none, err := New(0, 4)
	require.NoError(t, err)
	require.Equal(t, TernaryNone, none.Ternary())
	require.False(t, none.Started())

	partial, err := New(1, 4)
	require.NoError(t, err)
	require.Equal(t, TernaryInProgress, partial.Ternary())
	require.True(t, partial.Started())
	require.True(t, partial.InProgress())
	require.False(t, partial.Done())

	full, err := New(4, 4)
	require.NoError(t, err)
	require.Equal(t, TernaryDone, full.Ternary())
	require.True(t, full.Done())
	require.False(t, full.InProgress())
}

func TestStringRounding(t *testing.T) {
	p, err := New(1.2345, 2.5)
	require.NoError(t, err)
	require.Equal(t, "1.23/2.5", p.String())

	p, err = New(2, 4)
	require.NoError(t, err)
	require.Equal(t, "2/4", p.String())
}

func TestEqualIsUnreduced(t *testing.T) {
	half, err := New(1, 2)
	require.NoError(t, err)
	twoQuarters, err := New(2, 4)
	require.NoError(t, err)

	require.False(t, half.Equal(twoQuarters))
	require.True(t, half.Equal(half))
}

func TestAddSumsPairs(t *testing.T) {
	p, err := New(1, 2)
	require.NoError(t, err)
	q, err := New(3, 5)
	require.NoError(t, err)

	sum := Add(&p, &q)
	require.NotNil(t, sum)
	done, total := sum.Frac()
	require.Equal(t, 4.0, done)
	require.Equal(t, 7.0, total)
}

func TestAddTreatsNilAsIdentity(t *testing.T) {
	p, err := New(1, 2)
	require.NoError(t, err)

	require.Equal(t, &p, Add(&p, nil))
	require.Equal(t, &p, Add(nil, &p))
	require.Nil(t, Add(nil, nil))
}

func TestParse(t *testing.T) {
	p, err := Parse("3/4")
	require.NoError(t, err)
	done, total := p.Frac()
	require.Equal(t, 3.0, done)
	require.Equal(t, 4.0, total)

	_, err = Parse("three/4")
	require.ErrorIs(t, err, ErrInvalidProgressType)

	_, err = Parse("3")
	require.ErrorIs(t, err, ErrInvalidProgressType)

	_, err = Parse("3/0")
	require.ErrorIs(t, err, ErrInvalidProgress)
}
