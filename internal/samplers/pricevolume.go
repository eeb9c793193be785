package samplers

import (
	"fmt"
	"sort"

	"github.com/ammlabs/poolsim/internal/types"
)

// PriceVolume holds the market data series every run replays, in timestamp
// order. The series is validated once and shared read-only between workers.
type PriceVolume struct {
	samples []types.PriceVolumeSample
}

// NewPriceVolume sorts the series by timestamp and validates it: at least
// one sample, no duplicate timestamps, every sample priced for the same set
// of pairs with positive prices.
func NewPriceVolume(samples []types.PriceVolumeSample) (*PriceVolume, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("empty price series")
	}
	sorted := make([]types.PriceVolumeSample, len(samples))
	copy(sorted, samples)
	sort.SliceStable(sorted, func(a, b int) bool {
		return sorted[a].Timestamp < sorted[b].Timestamp
	})

	pairs := len(sorted[0].Prices)
	for k, s := range sorted {
		if k > 0 && s.Timestamp == sorted[k-1].Timestamp {
			return nil, fmt.Errorf("duplicate timestamp %d", s.Timestamp)
		}
		if len(s.Prices) != pairs {
			return nil, fmt.Errorf("sample %d prices %d pairs, first sample has %d",
				s.Timestamp, len(s.Prices), pairs)
		}
		for pair, price := range s.Prices {
			if price <= 0 {
				return nil, fmt.Errorf("sample %d pair %d/%d has non-positive price %v",
					s.Timestamp, pair.I, pair.J, price)
			}
			if v, ok := s.Volumes[pair]; ok && v < 0 {
				return nil, fmt.Errorf("sample %d pair %d/%d has negative volume %v",
					s.Timestamp, pair.I, pair.J, v)
			}
		}
	}
	return &PriceVolume{samples: sorted}, nil
}

// Samples returns the ordered series. Callers must not mutate it.
func (pv *PriceVolume) Samples() []types.PriceVolumeSample {
	return pv.samples
}

// Len returns the number of timesteps.
func (pv *PriceVolume) Len() int { return len(pv.samples) }

// Range returns the first and last timestamps of the series.
func (pv *PriceVolume) Range() (start, end int64) {
	return pv.samples[0].Timestamp, pv.samples[len(pv.samples)-1].Timestamp
}
