package embedding

import (
	"context"
	"errors"
	"math"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meos/internal/domain"
)

func TestFanOut_PreservesOrder(t *testing.T) {
	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}

	vecs, err := FanOut(context.Background(), texts, 3, func(_ context.Context, text string) ([]float32, error) {
		// longer texts return sooner so completion order differs from input order
		time.Sleep(time.Duration(10-len(text)) * time.Millisecond)
		return []float32{float32(len(text))}, nil
	})
	require.NoError(t, err)
	require.Len(t, vecs, len(texts))

	for i, v := range vecs {
		assert.Equal(t, []float32{float32(i + 1)}, v)
	}
}

func TestFanOut_RespectsLimit(t *testing.T) {
	var inFlight, peak atomic.Int32

	texts := make([]string, 20)
	for i := range texts {
		texts[i] = strconv.Itoa(i)
	}

	_, err := FanOut(context.Background(), texts, 2, func(context.Context, string) ([]float32, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		inFlight.Add(-1)
		return []float32{0}, nil
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestFanOut_Error(t *testing.T) {
	boom := errors.New("boom")

	vecs, err := FanOut(context.Background(), []string{"ok", "bad", "ok"}, 1, func(_ context.Context, text string) ([]float32, error) {
		if text == "bad" {
			return nil, boom
		}
		return []float32{1}, nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "embedding text 1")
	assert.Nil(t, vecs)
}

func TestFanOut_Empty(t *testing.T) {
	vecs, err := FanOut(context.Background(), nil, 4, func(context.Context, string) ([]float32, error) {
		t.Fatal("embed must not be called")
		return nil, nil
	})
	require.NoError(t, err)
	assert.Empty(t, vecs)
}

func TestCheckDimensions(t *testing.T) {
	require.NoError(t, CheckDimensions("test", [][]float32{{1, 2}, {3, 4}}, 2))

	err := CheckDimensions("test", [][]float32{{1, 2}, {3}}, 2)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
	assert.Contains(t, err.Error(), "want 2, got 1")
}

func TestCheckDimensions_NonFinite(t *testing.T) {
	err := CheckDimensions("test", [][]float32{{1, 2}, {float32(math.NaN()), 0}}, 2)
	assert.ErrorIs(t, err, domain.ErrProvider)
	assert.ErrorIs(t, err, domain.ErrInvalidVector)
	assert.NotErrorIs(t, err, domain.ErrDimensionMismatch)

	err = CheckVector("test", []float32{float32(math.Inf(-1)), 0}, 2)
	assert.ErrorIs(t, err, domain.ErrInvalidVector)
}
