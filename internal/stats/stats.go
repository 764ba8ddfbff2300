// Package stats turns per-user storage and metadata totals into the summaries served to
// clients. Stores report sums and non-null counts; averages are derived here so that an
// empty or partially analysed collection never divides by zero.
package stats

import (
	"context"

	"github.com/google/uuid"
)

// DefaultBackupCandidates is the default size of a backup candidate batch.
const DefaultBackupCandidates = 50

// StorageTotals are the raw storage sums for one owner.
type StorageTotals struct {
	Count int64
	Bytes int64
}

// MetadataTotals are the raw metadata sums for one owner. Sums and counts only include
// records where the value is present.
type MetadataTotals struct {
	Analyzed         int64
	AestheticSum     float64
	AestheticCount   int64
	FacesSum         int64
	FacesCount       int64
	ScenesClassified int64
}

type Storage struct {
	Count        int64   `json:"total_photos"`
	TotalBytes   int64   `json:"total_size"`
	AverageBytes float64 `json:"avg_size"`
}

type Metadata struct {
	Analyzed         int64   `json:"total_photos_analyzed"`
	AvgAesthetic     float64 `json:"average_aesthetic_score"`
	AvgFaces         float64 `json:"average_faces_per_photo"`
	ScenesClassified int64   `json:"total_scenes_analyzed"`
}

func SummarizeStorage(t StorageTotals) Storage {
	return Storage{
		Count:        t.Count,
		TotalBytes:   t.Bytes,
		AverageBytes: mean(float64(t.Bytes), t.Count),
	}
}

func SummarizeMetadata(t MetadataTotals) Metadata {
	return Metadata{
		Analyzed:         t.Analyzed,
		AvgAesthetic:     mean(t.AestheticSum, t.AestheticCount),
		AvgFaces:         mean(float64(t.FacesSum), t.FacesCount),
		ScenesClassified: t.ScenesClassified,
	}
}

func mean(sum float64, n int64) float64 {
	if n <= 0 {
		return 0
	}
	return sum / float64(n)
}

// Source reports totals for one owner.
type Source interface {
	StorageTotals(ctx context.Context, ownerID uuid.UUID) (StorageTotals, error)
	MetadataTotals(ctx context.Context, ownerID uuid.UUID) (MetadataTotals, error)
}

type Aggregator struct {
	src Source
}

func NewAggregator(src Source) *Aggregator {
	return &Aggregator{src: src}
}

func (a *Aggregator) Storage(ctx context.Context, ownerID uuid.UUID) (Storage, error) {
	t, err := a.src.StorageTotals(ctx, ownerID)
	if err != nil {
		return Storage{}, err
	}
	return SummarizeStorage(t), nil
}

func (a *Aggregator) Metadata(ctx context.Context, ownerID uuid.UUID) (Metadata, error) {
	t, err := a.src.MetadataTotals(ctx, ownerID)
	if err != nil {
		return Metadata{}, err
	}
	return SummarizeMetadata(t), nil
}
