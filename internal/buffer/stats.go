package buffer

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary holds descriptive statistics of a numeric buffer.
type Summary struct {
	Count  int
	Min    float64
	Max    float64
	Sum    float64
	Mean   float64
	StdDev float64
}

// Stats computes a Summary over all elements. Empty buffers yield a zero Summary.
func (b *Buffer) Stats() (Summary, error) {
	values, err := b.Float64s()
	if err != nil {
		return Summary{}, err
	}
	if len(values) == 0 {
		return Summary{}, nil
	}
	s := Summary{
		Count: len(values),
		Min:   floats.Min(values),
		Max:   floats.Max(values),
		Sum:   floats.Sum(values),
	}
	if len(values) > 1 {
		s.Mean, s.StdDev = stat.MeanStdDev(values, nil)
	} else {
		s.Mean = values[0]
	}
	return s, nil
}
