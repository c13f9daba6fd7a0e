package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"herhealth/classify"
	"herhealth/config"
	"herhealth/logging"
	"herhealth/ml"
)

var (
	configPath   string
	riskDataset  string
	fetalDataset string
	exportDir    string
	verbose      bool
)

var rootCmd = &cobra.Command{
	Use:   "evaluate [risk|fetal|all]",
	Short: "Train the HerHealth classifiers and report held-out accuracy",
	Long: `Train one or both HerHealth classifiers from their CSV datasets exactly as
the server does at startup, then print the held-out accuracy, a per-class
report and the confusion matrix.

Examples:
  evaluate                                  # both classifiers, paths from config.yaml
  evaluate risk --risk-dataset data/maternal_health_risk.csv
  evaluate fetal --export models/           # also write the forest as JSON`,
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{classify.RiskClassifier, classify.FetalClassifier, "all"},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := "warn"
		if verbose {
			level = "debug"
		}
		return logging.Init(logging.Config{Level: level})
	},
	RunE: runEvaluate,
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "Config file (optional)")
	rootCmd.Flags().StringVar(&riskDataset, "risk-dataset", "", "Override the maternal risk CSV")
	rootCmd.Flags().StringVar(&fetalDataset, "fetal-dataset", "", "Override the fetal health CSV")
	rootCmd.Flags().StringVarP(&exportDir, "export", "e", "", "Directory to export trained forests and scalers to")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log training progress")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	which := "all"
	if len(args) == 1 {
		which = args[0]
	}

	path := configPath
	if _, err := os.Stat(path); os.IsNotExist(err) {
		path = ""
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if riskDataset != "" {
		cfg.Models.Risk.Dataset = riskDataset
	}
	if fetalDataset != "" {
		cfg.Models.Fetal.Dataset = fetalDataset
	}

	var defs []classify.Definition
	switch which {
	case classify.RiskClassifier:
		defs = append(defs, cfg.Models.RiskDefinition())
	case classify.FetalClassifier:
		defs = append(defs, cfg.Models.FetalDefinition())
	case "all":
		defs = append(defs, cfg.Models.RiskDefinition(), cfg.Models.FetalDefinition())
	default:
		return errors.Newf("unknown classifier %q (want risk, fetal or all)", which)
	}

	out := cmd.OutOrStdout()
	for _, def := range defs {
		artifact, err := classify.Train(cmd.Context(), def)
		if err != nil {
			return err
		}
		printReport(out, def.Name, artifact)
		if exportDir != "" {
			if err := export(exportDir, def.Name, artifact); err != nil {
				return err
			}
			fmt.Fprintf(out, "exported %s model to %s\n", def.Name, exportDir)
		}
		fmt.Fprintln(out)
	}
	return nil
}

func printReport(w io.Writer, name string, artifact *classify.Artifact) {
	m := artifact.Metrics
	fmt.Fprintf(w, "== %s classifier ==\n", name)
	fmt.Fprintf(w, "data points: %d (held out: %d)\n", artifact.DataPoints, m.Samples)
	fmt.Fprintf(w, "params: n_estimators=%d max_depth=%s min_samples_split=%d\n",
		artifact.Params.NEstimators, depthString(artifact.Params.MaxDepth), artifact.Params.MinSamplesSplit)
	fmt.Fprintf(w, "accuracy: %.2f%%\n\n", m.Accuracy*100)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "class\tprecision\trecall\tf1-score\tsupport\t")
	for _, score := range m.PerClass() {
		fmt.Fprintf(tw, "%s\t%.2f\t%.2f\t%.2f\t%d\t\n",
			labelFor(artifact, score.Class), score.Precision, score.Recall, score.F1, score.Support)
	}
	fmt.Fprintf(tw, "macro avg\t%.2f\t%.2f\t\t%d\t\n", m.Precision, m.Recall, m.Samples)
	tw.Flush()

	fmt.Fprintln(w, "\nconfusion matrix (rows: true, columns: predicted):")
	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	header := make([]string, 0, len(m.Classes)+1)
	header = append(header, "")
	for _, class := range m.Classes {
		header = append(header, labelFor(artifact, class))
	}
	fmt.Fprintln(tw, strings.Join(header, "\t")+"\t")
	for i, row := range m.Confusion {
		cells := make([]string, 0, len(row)+1)
		cells = append(cells, labelFor(artifact, m.Classes[i]))
		for _, n := range row {
			cells = append(cells, fmt.Sprint(n))
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t")+"\t")
	}
	tw.Flush()
}

func labelFor(artifact *classify.Artifact, class int) string {
	if artifact.Labels != nil {
		if label, ok := artifact.Labels.Label(class); ok {
			return label
		}
	}
	return fmt.Sprint(class)
}

func depthString(depth int) string {
	if depth <= 0 {
		return "none"
	}
	return fmt.Sprint(depth)
}

// export writes the forest and its scaler, then reloads the forest to make
// sure the file is usable.
func export(dir, name string, artifact *classify.Artifact) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "create export dir")
	}
	modelPath := filepath.Join(dir, name+"_forest.json")
	if err := artifact.Model.Save(modelPath); err != nil {
		return errors.Wrapf(err, "save %s", modelPath)
	}
	if _, err := ml.LoadModel(ml.ModelRandomForest, modelPath); err != nil {
		return errors.Wrap(err, "verify exported model")
	}

	scaler, err := json.MarshalIndent(artifact.Scaler, "", "  ")
	if err != nil {
		return err
	}
	scalerPath := filepath.Join(dir, name+"_scaler.json")
	return errors.Wrapf(os.WriteFile(scalerPath, scaler, 0o600), "save %s", scalerPath)
}
