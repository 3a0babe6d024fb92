package table

import (
	"fmt"
	"math"

	"github.com/arloliu/op2/errs"
	"github.com/arloliu/op2/format"
	"github.com/arloliu/op2/result"
)

// RMSFromPSD derives the root-mean-square table of a power spectral density
// table by integrating each float column over frequency with the trapezoid rule.
//
// Parameters:
//   - psd: a real PSD table whose steps are frequencies
//
// Returns:
//   - *result.Table: an RMS table with the same entities and a single step 0
//   - error: ErrInvalidTable if psd is not a real frequency PSD table
func RMSFromPSD(psd *result.Table) (*result.Table, error) {
	return aggregate(psd, format.StatRMS, func(freqs, values []float64) float64 {
		return math.Sqrt(trapezoid(freqs, values, nil))
	})
}

// ZeroCrossings derives the apparent zero-crossing frequency of each float
// column of a PSD table, sqrt(∫f²·PSD df / ∫PSD df). Columns whose PSD integral
// is zero yield 0.
func ZeroCrossings(psd *result.Table) (*result.Table, error) {
	return aggregate(psd, format.StatNO, func(freqs, values []float64) float64 {
		den := trapezoid(freqs, values, nil)
		if den == 0 {
			return 0
		}
		num := trapezoid(freqs, values, func(f float64) float64 { return f * f })

		return math.Sqrt(num / den)
	})
}

func aggregate(psd *result.Table, stat format.Statistic, reduce func(freqs, values []float64) float64) (*result.Table, error) {
	if psd.Key.Category.Statistic != format.StatPSD {
		return nil, fmt.Errorf("%w: %s is not a PSD table", errs.ErrInvalidTable, psd.Key)
	}
	if psd.Meta.Format.IsComplex() {
		return nil, fmt.Errorf("%w: %s is complex", errs.ErrInvalidTable, psd.Key)
	}
	if psd.Meta.StepKind != format.StepFrequency {
		return nil, fmt.Errorf("%w: %s steps are %s, want frequency", errs.ErrInvalidTable, psd.Key, psd.Meta.StepKind)
	}

	key := psd.Key
	key.Category.Statistic = stat

	meta := psd.Meta
	meta.StepKind = format.StepNone

	out, err := result.NewTable(key, meta, psd.Layout, psd.Entities, []float64{0})
	if err != nil {
		return nil, err
	}

	steps := psd.NumSteps()
	values := make([]float64, steps)
	for e := range psd.Entities {
		row := out.Row(e, 0)
		for c, col := range psd.Columns {
			if col.Kind == format.FieldInt {
				if steps > 0 {
					row[c] = psd.Row(e, 0)[c]
				}
				continue
			}
			for s := range steps {
				values[s] = psd.Row(e, s)[c]
			}
			row[c] = reduce(psd.Steps, values)
		}
	}

	return out, nil
}

// trapezoid integrates values over xs, optionally weighted by w(x).
func trapezoid(xs, values []float64, w func(float64) float64) float64 {
	var sum float64
	for i := 1; i < len(xs); i++ {
		a, b := values[i-1], values[i]
		if w != nil {
			a *= w(xs[i-1])
			b *= w(xs[i])
		}
		sum += (xs[i] - xs[i-1]) * (a + b) / 2
	}

	return sum
}
