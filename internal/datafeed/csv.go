/*

CSV price/volume series loader.

The simulator replays historical market data from a flat CSV file. The header
names the columns: a unix "timestamp" column, one "price_i_j" column per coin
pair (market price of coin i quoted in coin j), and optionally one
"volume_i_j" column per pair (interval volume in units of D). Pair indices
must be ascending (i < j), the orientation the trader looks prices up under.
Rows may arrive unordered; the samplers sort and validate the series.

*/

package datafeed

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/ammlabs/poolsim/internal/logger"
	"github.com/ammlabs/poolsim/internal/types"
)

var log = logger.GetForComponent("datafeed")

var (
	ErrMissingTimestamp = errors.New("header has no timestamp column")
	ErrNoPriceColumns   = errors.New("header has no price columns")
	ErrBadColumn        = errors.New("unrecognized column")
)

// LoadCSV reads a price/volume series from the file at path.
func LoadCSV(path string) ([]types.PriceVolumeSample, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open data file: %w", err)
	}
	defer file.Close()

	samples, err := Read(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	log.Info().Str("path", path).Int("samples", len(samples)).Msg("loaded price series")
	return samples, nil
}

// column identifies what one CSV column carries.
type column struct {
	pair     types.Pair
	isVolume bool
}

// Read parses a price/volume series from CSV content.
func Read(r io.Reader) ([]types.PriceVolumeSample, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	tsCol, columns, err := parseHeader(header)
	if err != nil {
		return nil, err
	}

	var samples []types.PriceVolumeSample
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		sample, err := parseRecord(record, tsCol, columns)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		samples = append(samples, sample)
	}
	return samples, nil
}

// parseHeader maps each column to the pair it prices. Column names are
// "timestamp", "price_i_j" or "volume_i_j" with integer coin indices.
func parseHeader(header []string) (tsCol int, columns map[int]column, err error) {
	tsCol = -1
	columns = make(map[int]column)
	for idx, name := range header {
		name = strings.TrimSpace(strings.ToLower(name))
		switch {
		case name == "timestamp":
			tsCol = idx
		case strings.HasPrefix(name, "price_"), strings.HasPrefix(name, "volume_"):
			kind, rest, _ := strings.Cut(name, "_")
			pair, perr := parsePair(rest)
			if perr != nil {
				return 0, nil, fmt.Errorf("%w: %q: %v", ErrBadColumn, name, perr)
			}
			columns[idx] = column{pair: pair, isVolume: kind == "volume"}
		default:
			return 0, nil, fmt.Errorf("%w: %q", ErrBadColumn, name)
		}
	}
	if tsCol < 0 {
		return 0, nil, ErrMissingTimestamp
	}
	hasPrice := false
	for _, c := range columns {
		if !c.isVolume {
			hasPrice = true
		}
	}
	if !hasPrice {
		return 0, nil, ErrNoPriceColumns
	}
	return tsCol, columns, nil
}

func parsePair(s string) (types.Pair, error) {
	lhs, rhs, ok := strings.Cut(s, "_")
	if !ok {
		return types.Pair{}, fmt.Errorf("want i_j indices, got %q", s)
	}
	i, err := strconv.Atoi(lhs)
	if err != nil {
		return types.Pair{}, err
	}
	j, err := strconv.Atoi(rhs)
	if err != nil {
		return types.Pair{}, err
	}
	if i < 0 || j < 0 || i == j {
		return types.Pair{}, fmt.Errorf("bad coin indices %d, %d", i, j)
	}
	if i > j {
		return types.Pair{}, fmt.Errorf("coin indices must be ascending, got %d_%d", i, j)
	}
	return types.Pair{I: i, J: j}, nil
}

func parseRecord(record []string, tsCol int, columns map[int]column) (types.PriceVolumeSample, error) {
	var sample types.PriceVolumeSample
	ts, err := strconv.ParseInt(strings.TrimSpace(record[tsCol]), 10, 64)
	if err != nil {
		return sample, fmt.Errorf("timestamp: %w", err)
	}
	sample.Timestamp = ts
	sample.Prices = make(map[types.Pair]float64)
	sample.Volumes = make(map[types.Pair]float64)

	for idx, col := range columns {
		if idx >= len(record) {
			return sample, fmt.Errorf("row has %d fields, header has more", len(record))
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(record[idx]), 64)
		if err != nil {
			return sample, fmt.Errorf("pair %d/%d: %w", col.pair.I, col.pair.J, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return sample, fmt.Errorf("pair %d/%d: non-finite value", col.pair.I, col.pair.J)
		}
		if col.isVolume {
			sample.Volumes[col.pair] = v
		} else {
			sample.Prices[col.pair] = v
		}
	}
	return sample, nil
}
