/*

Price/volume samples fed to the strategy, one per simulation timestep.

*/

package types

import (
	"fmt"
	"strconv"
	"strings"
)

// Pair identifies an ordered coin pair (i sold, j bought).
type Pair struct {
	I int `json:"i"`
	J int `json:"j"`
}

// MarshalText renders the pair as "i-j" so it can key JSON objects.
func (p Pair) MarshalText() ([]byte, error) {
	return []byte(strconv.Itoa(p.I) + "-" + strconv.Itoa(p.J)), nil
}

// UnmarshalText parses the "i-j" form produced by MarshalText.
func (p *Pair) UnmarshalText(text []byte) error {
	lhs, rhs, ok := strings.Cut(string(text), "-")
	if !ok {
		return fmt.Errorf("malformed coin pair %q", text)
	}
	i, err := strconv.Atoi(lhs)
	if err != nil {
		return fmt.Errorf("malformed coin pair %q: %w", text, err)
	}
	j, err := strconv.Atoi(rhs)
	if err != nil {
		return fmt.Errorf("malformed coin pair %q: %w", text, err)
	}
	p.I, p.J = i, j
	return nil
}

// Reversed returns the pair with the trade direction flipped.
func (p Pair) Reversed() Pair {
	return Pair{I: p.J, J: p.I}
}

// PriceVolumeSample is one timestep of market data: the external market price
// of coin i quoted in coin j, and the market volume traded over the interval,
// per unordered pair keyed by its (i<j) orientation.
type PriceVolumeSample struct {
	Timestamp int64            `json:"timestamp"`
	Prices    map[Pair]float64 `json:"prices"`
	Volumes   map[Pair]float64 `json:"volumes"`
}
