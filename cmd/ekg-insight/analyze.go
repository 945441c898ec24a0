package main

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"ekg-insight/internal/config"
	"ekg-insight/internal/ekg"
)

type detectionFlags struct {
	age           int
	minDistance   int
	minHeight     float64
	minProminence float64
	minHeartRate  float64
	maxBytes      int64
}

func (f *detectionFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.IntVar(&f.age, "age", 0, "age of the person in years (required)")
	flags.IntVar(&f.minDistance, "min-distance", ekg.DefaultMinDistance, "minimum samples between two peaks")
	flags.Float64Var(&f.minHeight, "min-height", ekg.DefaultMinHeight, "minimum peak voltage in mV")
	flags.Float64Var(&f.minProminence, "min-prominence", ekg.DefaultMinProminence, "minimum peak prominence in mV")
	flags.Float64Var(&f.minHeartRate, "min-hr", ekg.DefaultMinHeartRate, "lower bound of the accepted heart rate in bpm")
	flags.Int64Var(&f.maxBytes, "max-bytes", 0, "size cap per recording file (default from EKG_MAX_RECORDING_BYTES)")
	_ = cmd.MarkFlagRequired("age")
}

// resolve layers explicitly set flags over the environment configuration.
func (f *detectionFlags) resolve(cmd *cobra.Command) (config.Detection, ekg.LoadOptions, error) {
	det, err := config.ResolveDetection()
	if err != nil {
		return config.Detection{}, ekg.LoadOptions{}, err
	}

	flags := cmd.Flags()
	if flags.Changed("min-distance") {
		det.Peaks.MinDistance = f.minDistance
	}
	if flags.Changed("min-height") {
		det.Peaks.MinHeight = f.minHeight
	}
	if flags.Changed("min-prominence") {
		det.Peaks.MinProminence = f.minProminence
	}
	if flags.Changed("min-hr") {
		det.MinHeartRate = f.minHeartRate
	}
	if err := det.Validate(); err != nil {
		return config.Detection{}, ekg.LoadOptions{}, err
	}

	opts := ekg.LoadOptions{MaxBytes: config.MaxRecordingBytes()}
	if f.maxBytes > 0 {
		opts.MaxBytes = f.maxBytes
	}
	return det, opts, nil
}

type analyzeReport struct {
	Summary           ekg.Summary      `json:"summary"`
	Peaks             []int            `json:"peaks"`
	Series            []ekg.RateSample `json:"series"`
	Band              ekg.Band         `json:"band"`
	Anomalies         []ekg.Anomaly    `json:"anomalies"`
	InsufficientPeaks bool             `json:"insufficient_peaks"`
}

func analyzeCommand() *cobra.Command {
	var flags detectionFlags
	cmd := &cobra.Command{
		Use:   "analyze <file>",
		Short: "Analyse one recording file and print the results as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			det, opts, err := flags.resolve(cmd)
			if err != nil {
				return err
			}
			return analyze(cmd.OutOrStdout(), args[0], flags.age, det, opts)
		},
	}
	flags.register(cmd)
	return cmd
}

func analyze(w io.Writer, path string, age int, det config.Detection, opts ekg.LoadOptions) error {
	band, err := ekg.NewBand(age, det.MinHeartRate)
	if err != nil {
		return err
	}

	rec, err := ekg.Open(fileDescriptor(path), opts)
	if err != nil {
		return err
	}

	peaks, err := ekg.DetectPeaks(rec.Samples, det.Peaks)
	if err != nil {
		return err
	}

	series := ekg.RateSeries(peaks, rec.Samples)
	if series == nil {
		series = []ekg.RateSample{}
	}
	intervals := ekg.Intervals(peaks, rec.Samples)

	report := analyzeReport{
		Summary:           ekg.SummarizePeaks(rec, peaks, band),
		Peaks:             append([]int{}, peaks...),
		Series:            series,
		Band:              band,
		Anomalies:         band.Anomalies(intervals),
		InsufficientPeaks: len(intervals) == 0,
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func summarizeCommand() *cobra.Command {
	var flags detectionFlags
	var workers int
	cmd := &cobra.Command{
		Use:   "summarize <file>...",
		Short: "Compare recording files side by side",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			det, opts, err := flags.resolve(cmd)
			if err != nil {
				return err
			}
			if workers <= 0 {
				workers = config.CompareWorkers()
			}
			return summarize(cmd, args, flags.age, det, opts, workers)
		},
	}
	flags.register(cmd)
	cmd.Flags().IntVar(&workers, "workers", 0, "recordings summarized concurrently (default from EKG_COMPARE_WORKERS)")
	return cmd
}

func summarize(cmd *cobra.Command, paths []string, age int, det config.Detection, opts ekg.LoadOptions, workers int) error {
	if _, err := ekg.NewBand(age, det.MinHeartRate); err != nil {
		return err
	}

	descs := make([]ekg.Descriptor, len(paths))
	for i, p := range paths {
		descs[i] = fileDescriptor(p)
	}

	rows := ekg.Compare(cmd.Context(), descs, func(d ekg.Descriptor) (*ekg.Recording, error) {
		return ekg.Open(d, opts)
	}, ekg.CompareOptions{
		Age:          age,
		Params:       det.Peaks,
		MinHeartRate: det.MinHeartRate,
		Workers:      workers,
	})

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RECORDING\tMINUTES\tPEAKS\tAVG BPM\tMIN\tMAX\tRMSSD MS\tANOMALIES")
	failed := 0
	for _, row := range rows {
		if row.Err != nil {
			failed++
			fmt.Fprintf(tw, "%s\terror: %v\n", row.Descriptor.ID, row.Err)
			continue
		}
		s := row.Summary
		fmt.Fprintf(tw, "%s\t%.2f\t%d\t%.1f\t%s\t%s\t%s\t%d\n",
			s.RecordingID, s.DurationMinutes, s.PeakCount, s.AverageBPM,
			optional(s.MinBPM, "%.1f"), optional(s.MaxBPM, "%.1f"), optional(s.RMSSDMS, "%.1f"), s.AnomalyCount)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if failed == len(rows) {
		return fmt.Errorf("all %d recordings failed", failed)
	}
	return nil
}

func fileDescriptor(path string) ekg.Descriptor {
	name := filepath.Base(path)
	return ekg.Descriptor{
		ID:     strings.TrimSuffix(name, filepath.Ext(name)),
		Source: path,
	}
}

func optional(v *float64, format string) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf(format, *v)
}
