// Package cli implements qcscore, an offline scorer for image files.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"organoid-qc/internal/analyzer"
	"organoid-qc/internal/report"
	"organoid-qc/pkg/models"
	"organoid-qc/pkg/validation"
)

// Version is set at build time.
var Version = "dev"

// FileResult is one scored file.
type FileResult struct {
	Path    string                   `json:"path"`
	Metrics *models.QualityMetrics   `json:"metrics,omitempty"`
	Verdict *models.ReadinessVerdict `json:"verdict,omitempty"`
	Error   string                   `json:"error,omitempty"`
}

// NewRootCmd creates the root Cobra command
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "qcscore",
		Short: "Score organoid microscopy images for ML readiness",
		Long: `qcscore computes focus, contrast, exposure and organoid shape for local
image files and classifies each one as ML-ready or rejected.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newScoreCmd())
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

func newScoreCmd() *cobra.Command {
	var (
		format      string
		profile     string
		focus       string
		contrast    string
		exposureMin string
		exposureMax string
		workers     int
		skipShape   bool
	)

	cmd := &cobra.Command{
		Use:   "score <file_or_directory>...",
		Short: "Score image files",
		Long: `Score one or more image files. Directories are walked recursively and
every file with an accepted extension is scored.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts analyzer.ScoringOptions
			switch profile {
			case "ingest":
				opts = analyzer.DefaultOptions()
			case "report":
				opts = analyzer.ReportOptions()
			default:
				return fmt.Errorf("unknown profile %q (want ingest or report)", profile)
			}
			thresholds, err := validation.ParseThresholds(opts.Thresholds, focus, contrast, exposureMin, exposureMax)
			if err != nil {
				return err
			}
			opts = opts.WithThresholds(thresholds)
			if skipShape {
				opts = opts.WithoutShapeEstimation()
			}
			if format != "table" && format != "json" {
				return fmt.Errorf("unknown format %q (want table or json)", format)
			}

			files, err := collectFiles(args)
			if err != nil {
				return err
			}

			scorer := analyzer.NewScorer(workers)
			defer scorer.Close()

			results := scoreFiles(cmd.Context(), scorer, files, opts)

			out := cmd.OutOrStdout()
			if format == "json" {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			}
			return writeTable(out, results, thresholds)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "table", "Output format (table, json)")
	cmd.Flags().StringVar(&profile, "profile", "ingest", "Threshold profile (ingest, report)")
	cmd.Flags().StringVar(&focus, "focus-threshold", "", "Override the focus threshold")
	cmd.Flags().StringVar(&contrast, "contrast-threshold", "", "Override the contrast threshold")
	cmd.Flags().StringVar(&exposureMin, "exposure-min", "", "Override the lower exposure bound")
	cmd.Flags().StringVar(&exposureMax, "exposure-max", "", "Override the upper exposure bound")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "Scoring workers (0 = number of CPUs)")
	cmd.Flags().BoolVar(&skipShape, "skip-shape", false, "Skip organoid shape estimation")

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "qcscore", Version)
		},
	}
}

// collectFiles expands directories and keeps explicit files as given.
// Results are sorted so output is stable.
func collectFiles(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}
		err = filepath.WalkDir(arg, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && validation.ValidateUploadFilename(d.Name()) == nil {
				files = append(files, p)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	sort.Strings(files)
	return files, nil
}

// scoreFiles keeps at most one file per scoring worker in memory.
func scoreFiles(ctx context.Context, scorer analyzer.QualityScorer, files []string, opts analyzer.ScoringOptions) []FileResult {
	if ctx == nil {
		ctx = context.Background()
	}
	limit := scorer.Stats().Workers
	if limit <= 0 {
		limit = 1
	}

	results := make([]FileResult, len(files))
	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup
	for i, f := range files {
		sem <- struct{}{}
		wg.Add(1)
		go func(i int, f string) {
			defer func() {
				<-sem
				wg.Done()
			}()
			results[i] = scoreFile(ctx, scorer, f, opts)
		}(i, f)
	}
	wg.Wait()
	return results
}

func scoreFile(ctx context.Context, scorer analyzer.QualityScorer, path string, opts analyzer.ScoringOptions) FileResult {
	res := FileResult{Path: path}
	if err := validation.ValidateUploadFilename(filepath.Base(path)); err != nil {
		res.Error = err.Error()
		return res
	}
	data, err := os.ReadFile(path)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	scored, err := scorer.ScoreContext(ctx, data, opts)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Metrics = &scored.Metrics
	res.Verdict = &scored.Verdict
	return res
}

func writeTable(out io.Writer, results []FileResult, thresholds validation.QualityThresholds) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FILE\tFOCUS\tCONTRAST\tEXPOSURE\tDIAMETER\tCIRCULARITY\tSTATUS\tREASON")
	ready := 0
	for _, r := range results {
		if r.Error != "" {
			fmt.Fprintf(w, "%s\t\t\t\t\t\tERROR\t%s\n", r.Path, r.Error)
			continue
		}
		m := r.Metrics
		status := "Rejected"
		if r.Verdict.IsReady {
			status = "Ready"
			ready++
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Path,
			report.FormatMetric(m.FocusScore),
			report.FormatMetric(m.ContrastLevel),
			report.FormatMetric(m.ExposureLevel),
			report.FormatOptional(m.OrganoidDiameter),
			report.FormatOptional(m.OrganoidCircularity),
			status,
			r.Verdict.ReasonString(),
		)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(out, "\n%d/%d ML-ready (focus >= %s, contrast >= %s, exposure %s)\n",
		ready, len(results),
		report.FormatMetric(thresholds.FocusThreshold),
		report.FormatMetric(thresholds.ContrastThreshold),
		thresholds.ExposureRange(),
	)
	return err
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, strings.TrimSpace(err.Error()))
		return 1
	}
	return 0
}
