package types

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

const (
	meanPrefix         = "mean_"
	riskWeightedPrefix = "risk_weighted_"
)

// fixedColumns are the leaderboard keys that are not per-dimension.
var fixedColumns = map[string]bool{
	"candidate_model_id": true,
	"num_scored":         true,
	"mean_grs":           true,
	"risk_weighted_grs":  true,
}

// ReservedDimensionID reports whether a dimension with this id would
// flatten onto one of the fixed leaderboard columns.
func ReservedDimensionID(id string) bool {
	return fixedColumns[meanPrefix+id] || fixedColumns[riskWeightedPrefix+id]
}

// DimensionStat holds the unweighted and risk-weighted mean of one dimension.
// Nil pointers mean the model was never scored on the dimension.
type DimensionStat struct {
	Mean         *float64
	RiskWeighted *float64
}

// AggregationRow is one line of the leaderboard. It is derived data and is
// recomputed from judge records on every aggregation run.
type AggregationRow struct {
	CandidateModelID string
	NumScored        int
	MeanGRS          float64
	RiskWeightedGRS  float64
	Dimensions       map[string]DimensionStat
}

// MarshalJSON flattens dimension statistics into mean_<id> and
// risk_weighted_<id> keys alongside the fixed columns.
func (r AggregationRow) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"candidate_model_id": r.CandidateModelID,
		"num_scored":         r.NumScored,
		"mean_grs":           r.MeanGRS,
		"risk_weighted_grs":  r.RiskWeightedGRS,
	}
	for id, stat := range r.Dimensions {
		if ReservedDimensionID(id) {
			return nil, fmt.Errorf("aggregation row: dimension id %q collides with a fixed column", id)
		}
		out[meanPrefix+id] = stat.Mean
		out[riskWeightedPrefix+id] = stat.RiskWeighted
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads the layout written by MarshalJSON. Every
// mean_<id> or risk_weighted_<id> key becomes an entry in Dimensions;
// other unknown keys are ignored.
func (r *AggregationRow) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	fixed := []struct {
		key string
		dst any
	}{
		{"candidate_model_id", &r.CandidateModelID},
		{"num_scored", &r.NumScored},
		{"mean_grs", &r.MeanGRS},
		{"risk_weighted_grs", &r.RiskWeightedGRS},
	}
	for _, f := range fixed {
		v, ok := raw[f.key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(v, f.dst); err != nil {
			return fmt.Errorf("aggregation row: %s: %w", f.key, err)
		}
	}

	r.Dimensions = make(map[string]DimensionStat)
	for key, v := range raw {
		if fixedColumns[key] {
			continue
		}
		var id string
		var weighted bool
		switch {
		case strings.HasPrefix(key, meanPrefix):
			id = strings.TrimPrefix(key, meanPrefix)
		case strings.HasPrefix(key, riskWeightedPrefix):
			id, weighted = strings.TrimPrefix(key, riskWeightedPrefix), true
		default:
			continue
		}
		var val *float64
		if err := json.Unmarshal(v, &val); err != nil {
			return fmt.Errorf("aggregation row: %s: %w", key, err)
		}
		stat := r.Dimensions[id]
		if weighted {
			stat.RiskWeighted = val
		} else {
			stat.Mean = val
		}
		r.Dimensions[id] = stat
	}
	return nil
}

// DimensionIDs returns the row's dimension ids in sorted order.
func (r AggregationRow) DimensionIDs() []string {
	ids := make([]string, 0, len(r.Dimensions))
	for id := range r.Dimensions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
