package govbench

import (
	"time"

	"github.com/jdziat/govbench/pkg/aggregate"
	"github.com/jdziat/govbench/pkg/dedup"
	"github.com/jdziat/govbench/pkg/enrich"
	"github.com/jdziat/govbench/pkg/infer"
	"github.com/jdziat/govbench/pkg/judge"
)

// RenderReport summarizes the render stage.
type RenderReport struct {
	Obligations   int            `json:"obligations"`
	BaseScenarios int            `json:"base_scenarios"`
	ByDomain      map[string]int `json:"by_domain"`
	ByTemplate    map[string]int `json:"by_template"`
}

// PerturbReport summarizes the perturb stage, deduplication included.
type PerturbReport struct {
	BaseScenarios int `json:"base_scenarios"`
	dedup.Report
	ByFamily map[string]int `json:"by_family"`
}

// InferReport summarizes the infer stage. Models is keyed by model id.
type InferReport struct {
	Scenarios int                     `json:"scenarios"`
	Models    map[string]*infer.Stats `json:"models"`
}

// Failed returns the number of failure records written in this run.
func (r *InferReport) Failed() int {
	n := 0
	for _, s := range r.Models {
		n += s.Failed
	}
	return n
}

// JudgeReport summarizes the judge stage. Pairs is keyed by
// judge.Key(judge, candidate).
type JudgeReport struct {
	RubricVersion string                  `json:"rubric_version"`
	Responses     int                     `json:"responses"`
	Pairs         map[string]*judge.Stats `json:"pairs"`
}

// Failed returns the number of failure records written in this run.
func (r *JudgeReport) Failed() int {
	n := 0
	for _, s := range r.Pairs {
		n += s.Failed
	}
	return n
}

// AggregateReport summarizes the aggregate stage.
type AggregateReport struct {
	Rows int `json:"rows"`
	aggregate.Report
}

// RunReport collects the reports of a full run.
type RunReport struct {
	Render    *RenderReport    `json:"render,omitempty"`
	Perturb   *PerturbReport   `json:"perturb,omitempty"`
	Validate  *enrich.Report   `json:"validate,omitempty"`
	Infer     *InferReport     `json:"infer,omitempty"`
	Judge     *JudgeReport     `json:"judge,omitempty"`
	Aggregate *AggregateReport `json:"aggregate,omitempty"`
	Duration  time.Duration    `json:"duration_ns"`
}
