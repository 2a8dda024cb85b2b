package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/ppiankov/tactimerge/internal/model"
	"github.com/ppiankov/tactimerge/internal/pipeline"
)

var (
	eraRange    string
	competition string
	intent      string
	topK        int
	fillMethod  string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <team>",
	Short: "Summarise how a team played, era by era",
	Long: `Analyze retrieves the most relevant reports for a team and summarises each
era from that era's reports only. Every attribute cites report ids.

Example:
  tactimerge analyze "Manchester United" --eras 2008-2012
  tactimerge analyze barcelona --intent "pressing in build-up" --format markdown`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOneShot(func(ctx context.Context, p *pipeline.Pipeline) error {
			q, err := p.Query(args[0], eraRange, competition, intent)
			if err != nil {
				return err
			}
			a, err := p.Analyze(ctx, q, topK)
			if err != nil {
				return err
			}
			return render(cmd, a)
		})
	},
}

var predictCmd = &cobra.Command{
	Use:   "predict <teamA> <teamB>",
	Short: "Estimate win/draw/loss probabilities for a fixture",
	Long: `Predict estimates the fixture from teamA's point of view using a Poisson
model over expected goals derived from both teams' reports.

Example:
  tactimerge predict arsenal chelsea
  tactimerge predict "Real Madrid" Barcelona --eras 2015-2018 --format markdown`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOneShot(func(ctx context.Context, p *pipeline.Pipeline) error {
			a, b, err := fixture(p, args)
			if err != nil {
				return err
			}
			res, err := p.Predict(ctx, a, b, topK)
			if err != nil {
				return err
			}
			return render(cmd, res)
		})
	},
}

var compareCmd = &cobra.Command{
	Use:   "compare <teamA> <teamB>",
	Short: "Compare venue-split attack and defence strengths",
	Long: `Compare computes home/away attack and defence means for both teams, their
ratios to the average, and the expected goals of each side at home.

Example:
  tactimerge compare liverpool everton --fill team_median`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOneShot(func(ctx context.Context, p *pipeline.Pipeline) error {
			a, b, err := fixture(p, args)
			if err != nil {
				return err
			}
			res, err := p.Compare(ctx, a, b, topK, fillMethod)
			if err != nil {
				return err
			}
			return render(cmd, res)
		})
	},
}

func fixture(p *pipeline.Pipeline, args []string) (model.Query, model.Query, error) {
	a, err := p.Query(args[0], eraRange, competition, "")
	if err != nil {
		return model.Query{}, model.Query{}, err
	}
	b, err := p.Query(args[1], eraRange, competition, "")
	if err != nil {
		return model.Query{}, model.Query{}, err
	}
	return a, b, nil
}

func init() {
	for _, cmd := range []*cobra.Command{analyzeCmd, predictCmd, compareCmd} {
		rootCmd.AddCommand(cmd)
		cmd.Flags().StringVar(&eraRange, "eras", "", `era label, "YYYY" or "YYYY-YYYY" (default: all eras)`)
		cmd.Flags().StringVar(&competition, "competition", "", "restrict to one competition")
		cmd.Flags().IntVarP(&topK, "k", "k", 0, "evidence items per team (default: retrieval.default_k)")
		addOutputFlags(cmd)
	}
	analyzeCmd.Flags().StringVar(&intent, "intent", "", `retrieval intent (default: "<team> tactical style")`)
	compareCmd.Flags().StringVar(&fillMethod, "fill", "", "fill for missing venue splits (league_mean, team_median, zero)")
}
