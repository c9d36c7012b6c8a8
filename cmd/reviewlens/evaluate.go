package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"yashubustudio/reviewlens/sentiment"
)

var (
	evalPredPath  string
	evalTruthPath string
	evalJSON      bool
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Score a predictions CSV against ground truth",
	Long:  `Computes macro-F1 between the label columns of --pred and --truth. No model is loaded.`,
	RunE:  runEvaluate,
}

func init() {
	evaluateCmd.Flags().StringVar(&evalPredPath, "pred", "", "CSV with predicted labels")
	evaluateCmd.Flags().StringVar(&evalTruthPath, "truth", "", "CSV with ground-truth labels")
	evaluateCmd.Flags().BoolVar(&evalJSON, "json", false, "Print the result as JSON")
	_ = evaluateCmd.MarkFlagRequired("pred")
	_ = evaluateCmd.MarkFlagRequired("truth")
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	cfg, err := sentiment.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	sentiment.SetColumnCandidates(cfg.Columns)

	res, err := evaluateFiles(evalPredPath, evalTruthPath)
	if err != nil {
		return err
	}
	if evalJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	fmt.Printf("Macro-F1: %.4f (%d rows)\n\n", res.MacroF1, res.Support)
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "label\tprecision\trecall\tf1\tsupport")
	for _, c := range res.PerClass {
		fmt.Fprintf(tw, "%s\t%.4f\t%.4f\t%.4f\t%d\n", c.Label, c.Precision, c.Recall, c.F1, c.Support)
	}
	return tw.Flush()
}

func evaluateFiles(predPath, truthPath string) (sentiment.EvalResult, error) {
	pred, err := readLabels(predPath, "predictions")
	if err != nil {
		return sentiment.EvalResult{}, err
	}
	truth, err := readLabels(truthPath, "ground truth")
	if err != nil {
		return sentiment.EvalResult{}, err
	}
	return sentiment.MacroF1(truth, pred)
}

func readLabels(path, what string) ([]sentiment.Label, error) {
	t, err := sentiment.ReadTableFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	idx := t.LabelColumn()
	if idx < 0 {
		return nil, fmt.Errorf("%s: missing 'label' column", what)
	}
	labels, err := t.Labels(idx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	return labels, nil
}
