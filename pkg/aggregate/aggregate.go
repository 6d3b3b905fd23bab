// Package aggregate turns judge scores into the risk-weighted leaderboard.
// Every call recomputes from the full set of scores; nothing is carried
// between runs.
package aggregate

import (
	"sort"

	"github.com/jdziat/govbench/pkg/types"
)

// Report summarizes one aggregation.
type Report struct {
	Scores           int            `json:"scores"`
	Candidates       int            `json:"candidates"`
	UnknownScenarios int            `json:"unknown_scenarios"`
	ByRisk           map[string]int `json:"by_risk"`
	ByJudge          map[string]int `json:"by_judge"`
}

type sums struct {
	n                    int
	sum, wsum, weightSum float64
}

func (s *sums) add(v, w float64) {
	s.n++
	s.sum += v
	s.wsum += v * w
	s.weightSum += w
}

func (s *sums) means() (mean, weighted float64) {
	if s.n == 0 {
		return 0, 0
	}
	mean = s.sum / float64(s.n)
	if s.weightSum > 0 {
		weighted = s.wsum / s.weightSum
	}
	return mean, weighted
}

type candidate struct {
	grs  sums
	dims map[string]*sums
}

// Aggregate computes one row per candidate model, sorted by candidate id.
// risk maps scenario ids to their risk level; scores for scenarios absent
// from it, or with an unrecognized level, weigh as low. Dimension columns
// cover every dimension seen in any score; a candidate never scored on a
// dimension gets nil statistics for it.
func Aggregate(scores []types.JudgeScore, risk map[string]types.RiskLevel) ([]types.AggregationRow, Report) {
	report := Report{ByRisk: map[string]int{}, ByJudge: map[string]int{}}
	byCandidate := map[string]*candidate{}
	allDims := map[string]struct{}{}

	for _, s := range scores {
		level, ok := risk[s.ScenarioID]
		if !ok {
			report.UnknownScenarios++
		}
		if !level.Valid() {
			level = types.RiskLow
		}
		w := level.Weight()
		report.Scores++
		report.ByRisk[string(level)]++
		report.ByJudge[s.JudgeModelID]++

		c := byCandidate[s.CandidateModelID]
		if c == nil {
			c = &candidate{dims: map[string]*sums{}}
			byCandidate[s.CandidateModelID] = c
		}
		c.grs.add(s.GRSScore, w)
		for _, d := range s.DimensionScores {
			allDims[d.DimensionID] = struct{}{}
			ds := c.dims[d.DimensionID]
			if ds == nil {
				ds = &sums{}
				c.dims[d.DimensionID] = ds
			}
			ds.add(float64(d.Score), w)
		}
	}

	ids := make([]string, 0, len(byCandidate))
	for id := range byCandidate {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	rows := make([]types.AggregationRow, 0, len(ids))
	for _, id := range ids {
		c := byCandidate[id]
		mean, weighted := c.grs.means()
		row := types.AggregationRow{
			CandidateModelID: id,
			NumScored:        c.grs.n,
			MeanGRS:          mean,
			RiskWeightedGRS:  weighted,
			Dimensions:       make(map[string]types.DimensionStat, len(allDims)),
		}
		for dim := range allDims {
			ds, ok := c.dims[dim]
			if !ok {
				row.Dimensions[dim] = types.DimensionStat{}
				continue
			}
			m, wm := ds.means()
			row.Dimensions[dim] = types.DimensionStat{Mean: &m, RiskWeighted: &wm}
		}
		rows = append(rows, row)
	}
	report.Candidates = len(rows)
	return rows, report
}

// RiskMap indexes scenarios by id.
func RiskMap(scenarios []types.Scenario) map[string]types.RiskLevel {
	m := make(map[string]types.RiskLevel, len(scenarios))
	for _, sc := range scenarios {
		m[sc.ScenarioID] = sc.RiskLevel
	}
	return m
}
