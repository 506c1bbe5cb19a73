package report

import "errors"

// Default bucket boundaries, in percent.
const (
	DefaultHighPercent = 90.0
	DefaultLowPercent  = 75.0
)

// ErrInvalidBuckets is returned when the bucket boundaries are inverted or out of range.
var ErrInvalidBuckets = errors.New("invalid coverage buckets")

// Bucket is the presentational tier of a file's coverage.
type Bucket string

// Coverage tiers.
const (
	BucketHigh   Bucket = "high"
	BucketMedium Bucket = "medium"
	BucketLow    Bucket = "low"
)

// BarColor is the bar fill used in the aggregate document.
func (b Bucket) BarColor() string {
	switch b {
	case BucketHigh:
		return "green"
	case BucketLow:
		return "red"
	case BucketMedium:
		return "yellow"
	}

	return "yellow"
}

// CellColor is the background of the percentage cell.
func (b Bucket) CellColor() string {
	switch b {
	case BucketHigh:
		return "LightGreen"
	case BucketLow:
		return "LightPink"
	case BucketMedium:
		return "yellow"
	}

	return "yellow"
}

// Buckets holds the tier boundaries: percent >= High is high, percent < Low is low.
type Buckets struct {
	High float64 `mapstructure:"high" json:"high" yaml:"high"`
	Low  float64 `mapstructure:"low"  json:"low"  yaml:"low"`
}

// DefaultBuckets returns the 90/75 boundaries.
func DefaultBuckets() Buckets {
	return Buckets{High: DefaultHighPercent, Low: DefaultLowPercent}
}

// Validate checks that 0 <= Low <= High <= 100.
func (b Buckets) Validate() error {
	if b.Low < 0 || b.High > 100 || b.Low > b.High {
		return ErrInvalidBuckets
	}

	return nil
}

// Classify returns the bucket of a percentage.
func (b Buckets) Classify(percent float64) Bucket {
	switch {
	case percent >= b.High:
		return BucketHigh
	case percent < b.Low:
		return BucketLow
	default:
		return BucketMedium
	}
}
