package stats

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	storage  StorageTotals
	metadata MetadataTotals
	err      error
	owners   []uuid.UUID
}

func (f *fakeSource) StorageTotals(_ context.Context, ownerID uuid.UUID) (StorageTotals, error) {
	f.owners = append(f.owners, ownerID)
	return f.storage, f.err
}

func (f *fakeSource) MetadataTotals(_ context.Context, ownerID uuid.UUID) (MetadataTotals, error) {
	f.owners = append(f.owners, ownerID)
	return f.metadata, f.err
}

func TestSummarizeStorageEmpty(t *testing.T) {
	got := SummarizeStorage(StorageTotals{})
	assert.Equal(t, Storage{}, got)
}

func TestSummarizeStorageAverage(t *testing.T) {
	got := SummarizeStorage(StorageTotals{Count: 4, Bytes: 1000})
	assert.Equal(t, int64(4), got.Count)
	assert.Equal(t, int64(1000), got.TotalBytes)
	assert.InDelta(t, 250.0, got.AverageBytes, 1e-9)
}

func TestSummarizeMetadataExcludesMissingValues(t *testing.T) {
	// three analysed photos, two with an aesthetic score, one with a face count
	got := SummarizeMetadata(MetadataTotals{
		Analyzed:         3,
		AestheticSum:     1.5,
		AestheticCount:   2,
		FacesSum:         4,
		FacesCount:       1,
		ScenesClassified: 2,
	})
	assert.Equal(t, int64(3), got.Analyzed)
	assert.InDelta(t, 0.75, got.AvgAesthetic, 1e-9)
	assert.InDelta(t, 4.0, got.AvgFaces, 1e-9)
	assert.Equal(t, int64(2), got.ScenesClassified)
}

func TestSummarizeMetadataWithNoScores(t *testing.T) {
	got := SummarizeMetadata(MetadataTotals{Analyzed: 2})
	assert.Zero(t, got.AvgAesthetic)
	assert.Zero(t, got.AvgFaces)
}

func TestAggregatorScopesByOwner(t *testing.T) {
	src := &fakeSource{storage: StorageTotals{Count: 1, Bytes: 10}}
	agg := NewAggregator(src)
	owner := uuid.New()

	got, err := agg.Storage(context.Background(), owner)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, got.AverageBytes, 1e-9)

	_, err = agg.Metadata(context.Background(), owner)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{owner, owner}, src.owners)
}

func TestAggregatorPropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	agg := NewAggregator(&fakeSource{err: boom})

	_, err := agg.Storage(context.Background(), uuid.New())
	require.ErrorIs(t, err, boom)
	_, err = agg.Metadata(context.Background(), uuid.New())
	require.ErrorIs(t, err, boom)
}
