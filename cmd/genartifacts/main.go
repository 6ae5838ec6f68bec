package main

import (
	"fmt"
	"os"
	"path/filepath"

	"drain-guard/internal/ml"
	"github.com/spf13/cobra"
)

var (
	outDir     string
	scalerPath string
	modelPath  string

	rootCmd = &cobra.Command{
		Use:   "genartifacts",
		Short: "Write and inspect Drain Guard model artifacts",
		Long: `genartifacts writes a sample scaler and classifier, fitted on typical
drain telemetry, so the service can run without a trained model.`,
		Args: cobra.NoArgs,
		RunE: runGenerate,
	}

	checkCmd = &cobra.Command{
		Use:   "check",
		Short: "Load a scaler and model pair and print their schema",
		Args:  cobra.NoArgs,
		RunE:  runCheck,
	}
)

func init() {
	rootCmd.Flags().StringVarP(&outDir, "out", "o", "./artifacts", "Directory to write the artifacts to")

	checkCmd.Flags().StringVar(&scalerPath, "scaler", filepath.Join("artifacts", ml.ScalerFileName), "Scaler artifact path")
	checkCmd.Flags().StringVar(&modelPath, "model", filepath.Join("artifacts", ml.ModelFileName), "Model artifact path")
	rootCmd.AddCommand(checkCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	scaler, model, err := ml.CreateSampleArtifacts(outDir)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "scaler: %s\nmodel:  %s\n", scaler, model)
	return nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	p, err := ml.LoadPredictor(scalerPath, modelPath)
	if err != nil {
		return fmt.Errorf("%s: %w", ml.ErrorKind(err), err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "scaler:   %s\n", p.ScalerKind())
	fmt.Fprintf(out, "model:    %s\n", p.ModelKind())
	fmt.Fprintf(out, "version:  %s\n", p.Version())
	ranges := p.Ranges()
	for i, name := range p.Schema().Features() {
		if ranges != nil {
			fmt.Fprintf(out, "  %d %-12s [%g, %g]\n", i, name, ranges[i].Min, ranges[i].Max)
			continue
		}
		fmt.Fprintf(out, "  %d %s\n", i, name)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
