package main

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jdziat/govbench"
	"github.com/jdziat/govbench/internal/config"
)

var (
	configPath string
	outDir     string
	resume     bool

	rootCmd = &cobra.Command{
		Use:   "govbench",
		Short: "Governance-risk evaluation pipeline for language models",
		Long: `govbench renders governance scenarios from obligation catalogs,
perturbs them with pressure mutations, runs them against candidate models,
scores the answers with judge models and builds a risk-weighted leaderboard.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run every stage in order",
		RunE: withPipeline(func(ctx context.Context, p *govbench.Pipeline) (any, error) {
			return p.Run(ctx)
		}),
	}
	renderCmd = &cobra.Command{
		Use:   "render",
		Short: "Render base scenarios from the obligation catalog",
		RunE: withPipeline(func(ctx context.Context, p *govbench.Pipeline) (any, error) {
			return p.Render(ctx)
		}),
	}
	perturbCmd = &cobra.Command{
		Use:   "perturb",
		Short: "Apply pressure mutations and drop duplicate prompts",
		RunE: withPipeline(func(ctx context.Context, p *govbench.Pipeline) (any, error) {
			return p.Perturb(ctx)
		}),
	}
	validateCmd = &cobra.Command{
		Use:   "validate",
		Short: "Enrich candidates into scenarios and record rejections",
		RunE: withPipeline(func(ctx context.Context, p *govbench.Pipeline) (any, error) {
			return p.Validate(ctx)
		}),
	}
	inferCmd = &cobra.Command{
		Use:   "infer",
		Short: "Run every scenario against every candidate model",
		RunE: withPipeline(func(ctx context.Context, p *govbench.Pipeline) (any, error) {
			return p.Infer(ctx)
		}),
	}
	judgeCmd = &cobra.Command{
		Use:   "judge",
		Short: "Score candidate responses with the judge models",
		RunE: withPipeline(func(ctx context.Context, p *govbench.Pipeline) (any, error) {
			return p.Judge(ctx)
		}),
	}
	aggregateCmd = &cobra.Command{
		Use:   "aggregate",
		Short: "Rebuild the leaderboard from every judge score",
		RunE: withPipeline(func(ctx context.Context, p *govbench.Pipeline) (any, error) {
			return p.Aggregate(ctx)
		}),
	}

	leaderboardCmd = &cobra.Command{
		Use:   "leaderboard",
		Short: "Print the leaderboard written by aggregate",
		RunE:  runLeaderboard,
	}
	modelsCmd = &cobra.Command{
		Use:   "models",
		Short: "List the configured models with masked credentials",
		RunE:  runModels,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default: nearest govbench.yaml)")
	rootCmd.PersistentFlags().StringVarP(&outDir, "out", "o", "", "artifact directory, overrides out_dir")
	for _, cmd := range []*cobra.Command{runCmd, inferCmd, judgeCmd} {
		cmd.Flags().BoolVar(&resume, "resume", false, "skip scenarios that already have a response or score")
	}

	rootCmd.AddCommand(runCmd, renderCmd, perturbCmd, validateCmd, inferCmd, judgeCmd, aggregateCmd)
	rootCmd.AddCommand(leaderboardCmd, modelsCmd)
}

// withPipeline builds the pipeline for a stage command, runs stage and
// prints its report as JSON.
func withPipeline(stage func(ctx context.Context, p *govbench.Pipeline) (any, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context(), configPath, outDir)
		if err != nil {
			return err
		}
		report, runErr := stage(cmd.Context(), a.pipeline)
		if err := a.close(); err != nil {
			a.logger.Warn("shutdown incomplete", "error", err)
		}
		if runErr != nil {
			return runErr
		}
		return printJSON(cmd, report)
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runLeaderboard(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context(), configPath, outDir)
	if err != nil {
		return err
	}
	defer a.close()

	rows, err := a.pipeline.Leaderboard()
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tCANDIDATE\tSCORED\tMEAN GRS\tRISK-WEIGHTED GRS")
	for i, row := range rows {
		fmt.Fprintf(w, "%d\t%s\t%d\t%.3f\t%.3f\n", i+1, row.CandidateModelID, row.NumScored, row.MeanGRS, row.RiskWeightedGRS)
	}
	return w.Flush()
}

func runModels(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	roles := make(map[string]string, len(cfg.Models))
	for _, c := range cfg.CandidateIDs() {
		roles[c] = "candidate"
	}
	for _, j := range cfg.Judges {
		roles[j] = "judge"
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tROLE\tPROVIDER\tMODEL\tAPI KEY")
	for _, m := range cfg.Models {
		role := roles[m.ID]
		if role == "" {
			role = "unused"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", m.ID, role, m.Provider, m.Model, govbench.MaskCredential(m.APIKey))
	}
	return w.Flush()
}
