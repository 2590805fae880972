package domain

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
)

var validate = validator.New()

// ParameterSet holds the tunable strategy thresholds. It is a plain value:
// two sets are equal when all fields are equal.
type ParameterSet struct {
	RSIOversold      float64 `json:"rsi_oversold" mapstructure:"rsi_oversold" validate:"gt=0,lt=100"`
	RSIOverbought    float64 `json:"rsi_overbought" mapstructure:"rsi_overbought" validate:"gtfield=RSIOversold,lt=100"`
	StopLossPct      float64 `json:"stop_loss_pct" mapstructure:"stop_loss_pct" validate:"gt=0,lt=100"`
	TakeProfitPct    float64 `json:"take_profit_pct" mapstructure:"take_profit_pct" validate:"gt=0"`
	MinVolumeRatio   float64 `json:"min_volume_ratio" mapstructure:"min_volume_ratio" validate:"gte=0"`
	MinBBWidth       float64 `json:"min_bb_width" mapstructure:"min_bb_width" validate:"gte=0"`
	BBSqueezeCeiling float64 `json:"bb_squeeze_ceiling" mapstructure:"bb_squeeze_ceiling" validate:"gtfield=MinBBWidth"`
}

// Validate rejects out-of-range or inconsistent thresholds.
func (p ParameterSet) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParameters, err)
	}
	return nil
}

// With returns a copy with the field named by its json key set to v.
func (p ParameterSet) With(field string, v float64) (ParameterSet, error) {
	switch field {
	case "rsi_oversold":
		p.RSIOversold = v
	case "rsi_overbought":
		p.RSIOverbought = v
	case "stop_loss_pct":
		p.StopLossPct = v
	case "take_profit_pct":
		p.TakeProfitPct = v
	case "min_volume_ratio":
		p.MinVolumeRatio = v
	case "min_bb_width":
		p.MinBBWidth = v
	case "bb_squeeze_ceiling":
		p.BBSqueezeCeiling = v
	default:
		return p, fmt.Errorf("%w: %q", ErrUnknownGridField, field)
	}
	return p, nil
}

// Hash identifies the entry/exit thresholds a position was opened with.
// Only the four fields that define the strategy variant participate.
func (p ParameterSet) Hash() string {
	key := struct {
		RSIOverbought float64 `json:"rsi_overbought"`
		RSIOversold   float64 `json:"rsi_oversold"`
		StopLoss      float64 `json:"stop_loss"`
		TakeProfit    float64 `json:"take_profit"`
	}{p.RSIOverbought, p.RSIOversold, p.StopLossPct, p.TakeProfitPct}

	b, _ := json.Marshal(key)
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:])[:8]
}

// GridAxis is one searchable field and its candidate values.
type GridAxis struct {
	Field  string    `json:"field"`
	Values []float64 `json:"values"`
}

// ParameterGrid is an ordered list of axes. Enumeration order is
// deterministic: the last axis varies fastest.
type ParameterGrid []GridAxis

// GridFromMap builds a grid with axes sorted by field name.
func GridFromMap(m map[string][]float64) ParameterGrid {
	fields := make([]string, 0, len(m))
	for f := range m {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	grid := make(ParameterGrid, 0, len(fields))
	for _, f := range fields {
		values := make([]float64, len(m[f]))
		copy(values, m[f])
		grid = append(grid, GridAxis{Field: f, Values: values})
	}
	return grid
}

// Size is the number of combinations the grid yields.
func (g ParameterGrid) Size() int {
	n := 1
	for _, axis := range g {
		n *= len(axis.Values)
	}
	return n
}

// Candidates expands the cartesian product over base. An empty grid yields base alone.
func (g ParameterGrid) Candidates(base ParameterSet) ([]ParameterSet, error) {
	for _, axis := range g {
		if _, err := base.With(axis.Field, 0); err != nil {
			return nil, err
		}
	}

	size := g.Size()
	out := make([]ParameterSet, 0, size)
	idx := make([]int, len(g))
	for n := 0; n < size; n++ {
		p := base
		for a, axis := range g {
			p, _ = p.With(axis.Field, axis.Values[idx[a]])
		}
		out = append(out, p)

		for a := len(g) - 1; a >= 0; a-- {
			idx[a]++
			if idx[a] < len(g[a].Values) {
				break
			}
			idx[a] = 0
		}
	}
	return out, nil
}
