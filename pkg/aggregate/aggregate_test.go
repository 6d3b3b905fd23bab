package aggregate

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/govbench/pkg/types"
)

func score(scenarioID, candidate string, grs float64, dims ...types.DimensionScore) types.JudgeScore {
	return types.JudgeScore{
		ScenarioID:       scenarioID,
		CandidateModelID: candidate,
		JudgeModelID:     "judge",
		GRSScore:         grs,
		DimensionScores:  dims,
	}
}

func dim(id string, s int) types.DimensionScore {
	return types.DimensionScore{DimensionID: id, Score: s}
}

func TestAggregate_RiskWeighting(t *testing.T) {
	rows, report := Aggregate([]types.JudgeScore{
		score("low", "X", 2.0, dim("compliance", 2)),
		score("high", "X", 4.0, dim("compliance", 4)),
	}, map[string]types.RiskLevel{"low": types.RiskLow, "high": types.RiskHigh})

	require.Len(t, rows, 1)
	row := rows[0]
	assert.Equal(t, "X", row.CandidateModelID)
	assert.Equal(t, 2, row.NumScored)
	assert.InDelta(t, 3.0, row.MeanGRS, 1e-9)
	assert.InDelta(t, 3.5, row.RiskWeightedGRS, 1e-9)
	require.NotNil(t, row.Dimensions["compliance"].Mean)
	assert.InDelta(t, 3.0, *row.Dimensions["compliance"].Mean, 1e-9)
	assert.InDelta(t, 3.5, *row.Dimensions["compliance"].RiskWeighted, 1e-9)

	assert.Equal(t, 2, report.Scores)
	assert.Equal(t, 1, report.ByRisk["high"])
	assert.Equal(t, 2, report.ByJudge["judge"])
}

func TestAggregate_UnknownRiskIsLow(t *testing.T) {
	rows, report := Aggregate([]types.JudgeScore{
		score("weird", "X", 1.0),
		score("absent", "X", 3.0),
		score("medium", "X", 4.0),
	}, map[string]types.RiskLevel{"weird": "critical", "medium": types.RiskMedium})

	require.Len(t, rows, 1)
	// (1*1 + 3*1 + 4*2) / (1 + 1 + 2)
	assert.InDelta(t, 3.0, rows[0].RiskWeightedGRS, 1e-9)
	assert.InDelta(t, 8.0/3.0, rows[0].MeanGRS, 1e-9)
	assert.Equal(t, 1, report.UnknownScenarios)
	assert.Equal(t, 2, report.ByRisk["low"])
}

func TestAggregate_SortedAndNullDimensions(t *testing.T) {
	rows, _ := Aggregate([]types.JudgeScore{
		score("s1", "zeta", 1, dim("a", 1)),
		score("s1", "alpha", 2, dim("b", 2)),
	}, nil)

	require.Len(t, rows, 2)
	assert.Equal(t, "alpha", rows[0].CandidateModelID)
	assert.Equal(t, "zeta", rows[1].CandidateModelID)
	assert.Nil(t, rows[0].Dimensions["a"].Mean)
	require.NotNil(t, rows[0].Dimensions["b"].Mean)
	assert.Equal(t, []string{"a", "b"}, rows[0].DimensionIDs())

	data, err := json.Marshal(rows[0])
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Contains(t, decoded, "mean_a")
	assert.Nil(t, decoded["mean_a"])
	assert.Equal(t, 2.0, decoded["mean_b"])
}

func TestAggregate_SingleScoreReproducesItself(t *testing.T) {
	rows, _ := Aggregate([]types.JudgeScore{score("s", "X", 2.7, dim("c", 3))},
		map[string]types.RiskLevel{"s": types.RiskHigh})
	require.Len(t, rows, 1)
	assert.InDelta(t, 2.7, rows[0].MeanGRS, 1e-9)
	assert.InDelta(t, 2.7, rows[0].RiskWeightedGRS, 1e-9)
}

func TestAggregate_RecomputesFromScratch(t *testing.T) {
	scores := []types.JudgeScore{score("s", "X", 1), score("t", "X", 3)}
	first, _ := Aggregate(scores, nil)
	second, _ := Aggregate(scores, nil)
	assert.Equal(t, first, second)

	empty, report := Aggregate(nil, nil)
	assert.Empty(t, empty)
	assert.Equal(t, 0, report.Candidates)
}

func TestRiskMap(t *testing.T) {
	m := RiskMap([]types.Scenario{{ScenarioID: "a", RiskLevel: types.RiskHigh}})
	assert.Equal(t, types.RiskHigh, m["a"])
}
