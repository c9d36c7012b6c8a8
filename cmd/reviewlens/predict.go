package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/schollz/progressbar/v2"
	"github.com/spf13/cobra"

	"yashubustudio/reviewlens/sentiment"
)

type predictOptions struct {
	inputPath  string
	outputPath string
	outputDir  string
	modelPath  string
	stdout     bool
}

var predictOpts predictOptions

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Label a CSV offline",
	Long: `Loads the model in-process, labels every row of --input and writes the CSV
with label and confidence columns appended.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPredict(cmd, predictOpts)
	},
}

func init() {
	f := predictCmd.Flags()
	f.StringVarP(&predictOpts.inputPath, "input", "i", "", "CSV file with a 'text' column")
	f.StringVarP(&predictOpts.outputPath, "output", "o", "", "CSV file to write (default uses --output-dir/predictions_*.csv)")
	f.StringVar(&predictOpts.outputDir, "output-dir", "csv", "Directory for result CSVs when --output is omitted")
	f.StringVar(&predictOpts.modelPath, "model", "", "Model directory (overrides config and MODEL_PATH)")
	f.BoolVar(&predictOpts.stdout, "stdout", false, "Print a preview of the results")
	_ = predictCmd.MarkFlagRequired("input")
}

func runPredict(cmd *cobra.Command, opts predictOptions) error {
	inputPath := strings.TrimSpace(opts.inputPath)
	if !sentiment.HasCSVExtension(inputPath) {
		return errors.New("--input must be a .csv file")
	}
	cfg, err := sentiment.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if opts.modelPath != "" {
		cfg.Model.ModelPath = opts.modelPath
	}
	sentiment.SetColumnCandidates(cfg.Columns)

	table, err := sentiment.ReadTableFile(inputPath)
	if err != nil {
		return err
	}

	svc, err := sentiment.NewService(cfg, sentiment.LoadOrtClassifier, logger)
	if err != nil {
		return err
	}
	defer svc.Close()
	ctx := cmd.Context()
	if err := svc.Load(ctx); err != nil {
		return err
	}

	bar := progressbar.NewOptions(table.Len(),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("predicting"),
		progressbar.OptionSetRenderBlankState(true),
	)
	last := 0
	start := time.Now()
	err = svc.PredictTable(ctx, table, func(done, total int) {
		_ = bar.Add(done - last)
		last = done
	})
	_ = bar.Finish()
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("predict: %w", err)
	}

	outputPath, err := resolveOutputPath(opts.outputPath, opts.outputDir)
	if err != nil {
		return err
	}
	if err := table.WriteFile(outputPath); err != nil {
		return err
	}
	fmt.Printf("Labeled %d rows in %.1fs, saved to %s\n", table.Len(), time.Since(start).Seconds(), outputPath)
	printDistribution(table)
	if opts.stdout {
		printPreview(table, 20)
	}
	return nil
}

func resolveOutputPath(path, dir string) (string, error) {
	if path = strings.TrimSpace(path); path != "" {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("resolve output path: %w", err)
		}
		return absPath, nil
	}
	if dir == "" {
		dir = "csv"
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve output dir: %w", err)
	}
	filename := fmt.Sprintf("predictions_%s.csv", time.Now().Format("20060102150405"))
	return filepath.Join(absDir, filename), nil
}

func printDistribution(t *sentiment.Table) {
	labels, err := t.Labels(t.LabelColumn())
	if err != nil {
		return
	}
	var counts [sentiment.NumLabels]int
	for _, l := range labels {
		counts[l]++
	}
	for _, l := range sentiment.Labels {
		fmt.Printf("  %-8s %d\n", l.String(), counts[l])
	}
}

func printPreview(t *sentiment.Table, limit int) {
	textIdx, labelIdx, confIdx := t.TextColumn(), t.LabelColumn(), t.ColumnIndex(sentiment.ColumnConfidence)
	fmt.Println()
	fmt.Println("==== preview ====")
	for i, rec := range t.Records {
		if i >= limit {
			fmt.Printf("... %d more rows\n", t.Len()-limit)
			break
		}
		name := rec[labelIdx]
		if l, err := sentiment.ParseLabel(name); err == nil {
			name = l.String()
		}
		fmt.Printf("%d. [%s %s] %s\n", i+1, name, rec[confIdx], truncateText(rec[textIdx], 60))
	}
}

func truncateText(text string, max int) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= max {
		return string(runes)
	}
	return string(runes[:max]) + "…"
}
