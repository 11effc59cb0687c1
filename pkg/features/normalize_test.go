package features

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordVector(t *testing.T) {
	r := Record{
		PacketLength:  60,
		InterArrival:  0.5,
		Protocol:      6,
		SrcPort:       1234,
		DstPort:       443,
		TCPFlags:      3,
		TTL:           64,
		PayloadLength: 6,
	}

	v := r.Vector()
	assert.Len(t, v, Dim)
	assert.Len(t, Names(), Dim)
	assert.Equal(t, []float64{60, 0.5, 6, 1234, 443, 3, 64, 6}, v)
}

func TestIdentity(t *testing.T) {
	out, err := Identity{}.Normalize([]Record{{PacketLength: 1}, {PacketLength: 2}})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, 2.0, out[1][0])

	_, err = Identity{}.Normalize(nil)
	assert.ErrorIs(t, err, ErrEmptyBatch)
}

func TestZScoreNormalize(t *testing.T) {
	z := NewZScore()

	records := []Record{
		{PacketLength: 10, TTL: 64},
		{PacketLength: 20, TTL: 64},
		{PacketLength: 30, TTL: 64},
	}
	out, err := z.Normalize(records)
	require.NoError(t, err)
	require.Len(t, out, 3)

	// Population stddev of 10,20,30 is sqrt(200/3).
	std := math.Sqrt(200.0 / 3)
	assert.InDelta(t, -10/std, out[0][0], 1e-9)
	assert.InDelta(t, 0, out[1][0], 1e-9)
	assert.InDelta(t, 10/std, out[2][0], 1e-9)

	// Constant fields collapse to zero rather than dividing by zero.
	for _, v := range out {
		assert.Equal(t, 0.0, v[6])
		assert.Len(t, v, Dim)
	}

	assert.Equal(t, 3, z.Count())
	assert.InDelta(t, 20, z.Mean()[0], 1e-9)
}

func TestZScoreSingleRecord(t *testing.T) {
	z := NewZScore()
	out, err := z.Normalize([]Record{{PacketLength: 100}})
	require.NoError(t, err)
	assert.Equal(t, make([]float64, Dim), out[0])
}

func TestZScorePrior(t *testing.T) {
	var mean, std [Dim]float64
	mean[0], std[0] = 100, 10

	z := NewZScore(WithPrior(1_000_000, mean, std))
	out, err := z.Normalize([]Record{{PacketLength: 120}})
	require.NoError(t, err)
	assert.InDelta(t, 2.0, out[0][0], 1e-3)
}

func TestZScoreEarlyScaleDrift(t *testing.T) {
	z := NewZScore()

	first, err := z.Normalize([]Record{{PacketLength: 500}})
	require.NoError(t, err)
	assert.Equal(t, make([]float64, Dim), first[0])

	_, err = z.Normalize([]Record{{PacketLength: 100}})
	require.NoError(t, err)

	again, err := z.Normalize([]Record{{PacketLength: 500}})
	require.NoError(t, err)
	assert.Greater(t, again[0][0], 0.0)
}

func TestZScoreFreezeAfter(t *testing.T) {
	z := NewZScore(WithFreezeAfter(4))

	for _, l := range []float64{10, 20, 30, 40} {
		_, err := z.Normalize([]Record{{PacketLength: l}})
		require.NoError(t, err)
	}
	require.Equal(t, 4, z.Count())
	mean := z.Mean()

	before, err := z.Normalize([]Record{{PacketLength: 1000}})
	require.NoError(t, err)
	after, err := z.Normalize([]Record{{PacketLength: 1000}})
	require.NoError(t, err)

	assert.Equal(t, 4, z.Count())
	assert.Equal(t, mean, z.Mean())
	assert.Equal(t, before[0], after[0])
	// std of {10,20,30,40} is sqrt(125)
	assert.InDelta(t, (1000-25)/math.Sqrt(125), after[0][0], 1e-9)
}

func TestZScoreConcurrent(t *testing.T) {
	z := NewZScore()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_, err := z.Normalize([]Record{{PacketLength: float64(w*100 + i)}})
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, 800, z.Count())
	assert.InDelta(t, 399.5, z.Mean()[0], 1e-6)
}
