package resultstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-hazard/pkg/aggregate"
	"github.com/dd0wney/cluso-hazard/pkg/hazard"
)

func testResult(calcID string) *aggregate.AggregateResult {
	res := &aggregate.AggregateResult{
		CalculationID:     calcID,
		Kind:              hazard.KindClassical,
		SiteIDs:           []int{0, 1},
		IMTLs:             []hazard.IMTLevels{{IMT: "PGA", Levels: []float64{0.1, 0.2}}},
		InvestigationTime: 50,
		Realizations: []aggregate.RealizationResult{
			{Ordinal: 0, Name: "#0-b1-near", Weight: 0.6, Curves: [][]float64{{0.5, 0.1}, {0.4, 0.05}}},
			{Ordinal: 1, Name: "#1-b1-far", Weight: 0.4, Curves: [][]float64{{0.3, 0.02}, {0.2, 0.01}}},
		},
		EffRuptures: map[int]int{0: 12},
		NumTasks:    3,
		Statistics:  &aggregate.Statistics{Mean: [][]float64{{0.42, 0.068}, {0.32, 0.034}}},
	}
	digest, _ := res.ComputeDigest()
	res.Digest = digest
	return res
}

func openInMemory(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveLoad(t *testing.T) {
	s := openInMemory(t)
	res := testResult("calc-1")
	require.NoError(t, s.Save(res))

	got, err := s.Load("calc-1")
	require.NoError(t, err)
	assert.Equal(t, res, got)

	digest, err := got.ComputeDigest()
	require.NoError(t, err)
	assert.Equal(t, res.Digest, digest)
}

func TestSaveIsWriteOnce(t *testing.T) {
	s := openInMemory(t)
	require.NoError(t, s.Save(testResult("calc-1")))
	assert.ErrorIs(t, s.Save(testResult("calc-1")), ErrExists)
	assert.ErrorIs(t, s.Save(testResult("")), ErrNoCalculation)
}

func TestRealizationsAndCurve(t *testing.T) {
	s := openInMemory(t)
	require.NoError(t, s.Save(testResult("calc-1")))

	infos, err := s.Realizations("calc-1")
	require.NoError(t, err)
	assert.Equal(t, []RealizationInfo{
		{Ordinal: 0, Name: "#0-b1-near", Weight: 0.6},
		{Ordinal: 1, Name: "#1-b1-far", Weight: 0.4},
	}, infos)

	curve, err := s.Curve("calc-1", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.2, 0.01}, curve)

	_, err = s.Curve("calc-1", 2, 0)
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, err = s.Curve("calc-1", 0, 7)
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, err = s.Curve("missing", 0, 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestList(t *testing.T) {
	s := openInMemory(t)
	ids, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, ids)

	require.NoError(t, s.Save(testResult("b")))
	require.NoError(t, s.Save(testResult("a")))
	ids, err = s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)
}

func TestPersistentReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(Config{Path: dir})
	require.NoError(t, err)
	require.NoError(t, s.Save(testResult("calc-1")))
	require.NoError(t, s.Ping(context.Background()))
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Ping(context.Background()), ErrClosed)

	s, err = Open(Config{Path: dir})
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Load("calc-1")
	require.NoError(t, err)
	assert.Equal(t, testResult("calc-1").Digest, got.Digest)

	_, err = Open(Config{})
	assert.Error(t, err)
}
