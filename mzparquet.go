// Copyright 2018 Rob Marissen.
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/524D/mzparquet/internal/chromatogram"
	"github.com/524D/mzparquet/internal/columnar"
	"github.com/524D/mzparquet/internal/convert"
	"github.com/524D/mzparquet/internal/logger"
	"github.com/524D/mzparquet/internal/spectrum"
	"github.com/524D/mzparquet/internal/store"
	"github.com/524D/mzparquet/internal/view"

	"github.com/fatih/color"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
)

// Program name and version, written to the metadata of each output file
const progName = "mzParquet"

var progVersion = `Unknown`

const (
	infoDefault = iota
	infoSilent
	infoVerbose
)

// Command line parameters
type params struct {
	outFilename *string // Output filename, only with a single input file
	inspect     *bool   // Show the contents of a converted file
	demo        *bool   // Write a synthetic mzML file
	compression *string
	rowGroup    *int    // Spectra per Parquet row group
	msLevels    *string // MS levels that contribute to the chromatogram
	levels      []int
	jobs        *int
	logFile     *string
	rtWindow    *string // retention time window (inspect)
	lowRT       float64
	upRT        float64
	scan        *int    // scan to show (inspect)
	mzWindow    *string // m/z window of the scan (inspect)
	lowMz       float64
	upMz        float64
	zoom        *string
	zoomLevel   view.ZoomLevel
	demoCycles  *int
	verbosity   int      // Verbosity of progress messages (infoDefault...)
	args        []string // Additional values passed on the command line
	debug       bool     // Log every data-quality warning (MZPARQUET_DEBUG=1)
}

// ErrRangeSpec is returned when a range on the command line is invalid.
var ErrRangeSpec = errors.New("invalid range specified")

// Parse string like "-12:6" into 2 values, -12 and 6
// Parameters min and max are the "default" min/max values,
// when a value is not specified (e.g. "-12:"), the default is assigned
func parseIntRange(r string, min int, max int) (int, int, error) {
	re := regexp.MustCompile(`\s*(\-?\d*):(\-?\d*)`)
	m := re.FindStringSubmatch(r)
	minOut := min
	maxOut := max
	if len(m) >= 2 && m[1] != "" {
		minOut, _ = strconv.Atoi(m[1])
		if minOut < min {
			minOut = min
		}
	}
	if len(m) >= 3 && m[2] != "" {
		maxOut, _ = strconv.Atoi(m[2])
		if maxOut > max {
			maxOut = max
		}
	}
	var err error
	if minOut > maxOut {
		err = ErrRangeSpec
		minOut = maxOut
	}
	return minOut, maxOut, err
}

// Parse string like "-12.01e1:+6" into 2 values, -120.1 and 6.0
// Parameters min and max are the "default" min/max values,
// when a value is not specified (e.g. "-12.01e1:"), the default is assigned
func parseFloat64Range(r string, min float64, max float64) (
	float64, float64, error) {
	re := regexp.MustCompile(`\s*([-+]?[0-9]*\.?[0-9]*([eE][-+]?[0-9]+)?):([-+]?[0-9]*\.?[0-9]*([eE][-+]?[0-9]+)?)`)
	m := re.FindStringSubmatch(r)
	minOut := min
	maxOut := max
	if len(m) >= 2 && m[1] != "" {
		minOut, _ = strconv.ParseFloat(m[1], 64)
		if minOut < min {
			minOut = min
		}
	}
	if len(m) >= 4 && m[3] != "" {
		maxOut, _ = strconv.ParseFloat(m[3], 64)
		if maxOut > max {
			maxOut = max
		}
	}
	var err error
	if minOut > maxOut {
		err = ErrRangeSpec
		minOut = maxOut
	}
	return minOut, maxOut, err
}

// Expand an MS level range like "1:2" into the list of levels.
// An empty range means all levels, returned as nil.
func parseLevels(r string) ([]int, error) {
	if strings.TrimSpace(r) == "" {
		return nil, nil
	}
	if !strings.Contains(r, ":") {
		r = r + ":" + r
	}
	lo, hi, err := parseIntRange(r, 1, 10)
	if err != nil {
		return nil, err
	}
	levels := make([]int, 0, hi-lo+1)
	for l := lo; l <= hi; l++ {
		levels = append(levels, l)
	}
	return levels, nil
}

func parseZoom(s string) (view.ZoomLevel, error) {
	switch strings.ToLower(s) {
	case "", "full":
		return view.ZoomFull, nil
	case "isotope":
		return view.ZoomIsotope, nil
	case "resolution":
		return view.ZoomResolution, nil
	}
	return view.ZoomFull, fmt.Errorf("unknown zoom level %q", s)
}

func exitUsage(msg string) {
	exeName := filepath.Base(os.Args[0])
	fmt.Fprintf(os.Stderr, `%s.
Type %s --help for usage
`, msg, exeName)
	os.Exit(2)
}

// sanitizeParams checks the parameters and converts the ranges
func sanitizeParams(par *params) {
	if len(par.args) == 0 {
		exitUsage("Last argument(s) must be name of mzML file(s)")
	}
	if (*par.inspect || *par.demo) && len(par.args) != 1 {
		exitUsage("Exactly one file name is required")
	}
	if *par.outFilename != "" && len(par.args) != 1 {
		exitUsage("Option -o can only be used with a single input file")
	}
	if _, err := columnar.Codec(*par.compression); err != nil {
		exitUsage("Invalid compression")
	}

	var err error
	par.levels, err = parseLevels(*par.msLevels)
	if err != nil {
		exitUsage("Invalid MS level range")
	}
	par.lowRT, par.upRT, err = parseFloat64Range(*par.rtWindow,
		-math.MaxFloat64, math.MaxFloat64)
	if err != nil {
		exitUsage("Invalid rt range")
	}
	par.lowMz, par.upMz, err = parseFloat64Range(*par.mzWindow,
		0, math.MaxFloat64)
	if err != nil {
		exitUsage("Invalid m/z range")
	}
	par.zoomLevel, err = parseZoom(*par.zoom)
	if err != nil {
		exitUsage("Invalid zoom level")
	}
}

func usage() {
	exeName := filepath.Base(os.Args[0])
	fmt.Fprintf(os.Stderr,
		`USAGE:
  %s [options] <mzMLfile>...
  %s -inspect [options] <parquetfile>
  %s -demo <mzMLfile>

  This program converts mzML files into a single Parquet file per run,
  holding the spectra, the total ion chromatogram and the identity of the
  source file. The Parquet file can be opened for fast random access by
  scan number, retention time and m/z window.

OPTIONS:
`, exeName, exeName, exeName)
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr,
		`
ENVIRONMENT VARIABLES:
    Defaults for some options are taken from the environment, or from a
    .env file in the current directory:
    %s, %s, %s, %s.
    When %s=1, every data-quality warning is logged.

USAGE EXAMPLES:
  %s yeast.mzML
    Convert yeast.mzML to yeast.parquet.

  %s -j 4 -compression zstd *.mzML
    Convert all mzML files in the current directory, 4 at a time.

  %s -inspect -scan 1200 -zoom isotope yeast.parquet
    Show scan 1200 of yeast.parquet around its most intense peak.
`, envCompression, envRowGroup, envLogFile, envJobs, envDebug, exeName, exeName, exeName)
}

func main() {
	defs, err := loadDefaults()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading .env: %v\n", err)
		os.Exit(2)
	}
	var par params

	par.outFilename = flag.String("o",
		"",
		"`filename` of the Parquet output. Default is the input name with extension .parquet")
	par.inspect = flag.Bool("inspect", false,
		`Show metadata and summary of a converted file`)
	par.demo = flag.Bool("demo", false,
		`Write a synthetic DDA run to the given mzML file`)
	par.demoCycles = flag.Int("cycles", 60,
		`number of MS1 cycles in the -demo run`)
	par.compression = flag.String("compression", defs.compression,
		"Parquet `codec`: snappy, zstd, gzip or none")
	par.rowGroup = flag.Int("rowgroup", defs.rowGroup,
		fmt.Sprintf("number of spectra per Parquet row group (0: %d)", columnar.DefaultRowGroupSpectra))
	par.msLevels = flag.String("mslevels",
		"",
		"MS level `range`"+` of the spectra that contribute to the chromatogram
(e.g. 1:1). Default is all levels`)
	par.jobs = flag.Int("j", defs.jobs,
		`number of files converted in parallel (0: one per CPU)`)
	par.logFile = flag.String("logfile", defs.logFile,
		"`filename` for a JSON log (rotated)")
	par.rtWindow = flag.String("rt",
		"",
		"retention time `range`"+` in seconds of the chromatogram to show (inspect)`)
	par.scan = flag.Int("scan", -1,
		`scan number to show (inspect)`)
	par.mzWindow = flag.String("mz",
		"",
		"m/z `range`"+` of the peaks to show (inspect, with -scan)`)
	par.zoom = flag.String("zoom",
		"",
		"zoom `level`"+` around the base peak: full, isotope or resolution
(inspect, with -scan)`)
	version := flag.Bool("version", false,
		`Show software version`)
	verbose := flag.Bool("verbose", false,
		`Print more verbose progress information`)
	quiet := flag.Bool("quiet", false,
		`Don't print any output except for errors`)
	flag.Usage = usage
	flag.Parse()
	if *version {
		if progVersion == `Unknown` {
			progVersion = `Unknown
Please build this program with script 'build.sh' so that the git version is shown here.`
		}
		fmt.Fprintf(os.Stderr, "%s version %s\n", progName, progVersion)
		return
	}
	if *verbose {
		par.verbosity = infoVerbose
	}
	if *quiet {
		par.verbosity = infoSilent
	}
	par.args = flag.Args()
	par.debug = defs.debug

	sanitizeParams(&par)

	log := logger.New(logger.Config{
		File:  *par.logFile,
		Debug: par.debug,
		Quiet: par.verbosity == infoSilent,
	})
	defer log.Sync()

	switch {
	case *par.demo:
		err = writeDemo(par.args[0], *par.demoCycles)
		if err == nil && par.verbosity != infoSilent {
			fmt.Printf("Wrote %s\n", par.args[0])
		}
	case *par.inspect:
		err = inspect(os.Stdout, par)
	default:
		err = convertFiles(par, log)
	}
	if err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func convertFiles(par params, log *zap.Logger) error {
	jobs := make([]convert.Job, len(par.args))
	for i, src := range par.args {
		jobs[i] = convert.Job{Src: src, Dst: convert.OutputPath(src)}
	}
	if *par.outFilename != "" {
		jobs[0].Dst = *par.outFilename
	}
	opts := convert.BatchOptions{
		Options: convert.Options{
			Columnar: columnar.Options{
				Compression:     *par.compression,
				RowGroupSpectra: *par.rowGroup,
				Producer:        progName + " " + progVersion,
			},
			Chromatogram: chromatogram.Config{MSLevels: par.levels},
			Logger:       log,
		},
		Jobs: *par.jobs,
	}

	// An interrupt stops starting new files; running conversions finish.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	results, err := convert.Batch(ctx, jobs, opts)

	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
		}
		if par.verbosity != infoSilent || res.Err != nil {
			printResult(os.Stdout, res, par.verbosity)
		}
	}
	if err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d conversions failed", failed, len(results))
	}
	return nil
}

func printResult(w io.Writer, res convert.Result, verbosity int) {
	if res.Err != nil {
		color.New(color.FgRed).Fprintf(w, "FAILED %s: %v\n", res.Job.Src, res.Err)
		return
	}
	rep := res.Report
	levels := make([]int, 0, len(rep.Levels))
	for l := range rep.Levels {
		levels = append(levels, l)
	}
	sort.Ints(levels)
	var counts []string
	for _, l := range levels {
		counts = append(counts, fmt.Sprintf("MS%d %d", l, rep.Levels[l]))
	}
	color.New(color.FgGreen).Fprintf(w, "%s -> %s", rep.Source, rep.Output)
	fmt.Fprintf(w, ": %d spectra (%s), %d chromatogram points, %s\n",
		rep.Spectra, strings.Join(counts, ", "), rep.Chromatogram,
		rep.Duration.Round(1e6))
	if len(rep.Warnings) == 0 {
		return
	}
	warn := color.New(color.FgYellow)
	if verbosity == infoVerbose {
		for _, wa := range rep.Warnings {
			warn.Fprintf(w, "  warning: %s\n", wa)
		}
		return
	}
	byKind := make(map[spectrum.WarningKind]int)
	for _, wa := range rep.Warnings {
		byKind[wa.Kind]++
	}
	kinds := make([]spectrum.WarningKind, 0, len(byKind))
	for k := range byKind {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	for _, k := range kinds {
		warn.Fprintf(w, "  warning: %d spectra with %s\n", byKind[k], k)
	}
}

// summary holds the statistics shown by -inspect.
type summary struct {
	spectra       int
	levels        map[int]int
	firstRT       float64
	lastRT        float64
	mzLow, mzHigh float64
	meanTIC       float64
	stdTIC        float64
	medianTIC     float64
	meanPeaks     float64
}

func summarize(s *store.Store) summary {
	sum := summary{spectra: s.Len(), levels: make(map[int]int)}
	for _, l := range s.Levels() {
		sum.levels[l] = len(s.ScanIDs(l))
	}
	sum.firstRT, sum.lastRT, _ = s.TimeRange()
	sum.mzLow, sum.mzHigh, _ = s.MzRange()

	chrom := s.Chromatogram()
	if len(chrom) > 0 {
		tic := make([]float64, len(chrom))
		for i, p := range chrom {
			tic[i] = p.SummedIntensity
		}
		sum.meanTIC, sum.stdTIC = stat.MeanStdDev(tic, nil)
		if len(tic) == 1 {
			sum.stdTIC = 0
		}
		sort.Float64s(tic)
		sum.medianTIC = stat.Quantile(0.5, stat.Empirical, tic, nil)
	}
	if s.Len() > 0 {
		peaks := make([]float64, 0, s.Len())
		for _, id := range s.ScanIDs(0) {
			rec, err := s.GetByScanID(id)
			if err == nil {
				peaks = append(peaks, float64(rec.Len()))
			}
		}
		sum.meanPeaks = stat.Mean(peaks, nil)
	}
	return sum
}

func inspect(w io.Writer, par params) error {
	s, err := store.Open(par.args[0])
	if err != nil {
		return err
	}
	e := view.New(s, view.DefaultConfig())
	head := color.New(color.Bold)

	meta := s.Metadata()
	head.Fprintf(w, "%s\n", par.args[0])
	fmt.Fprintf(w, "  schema version  %s\n", meta.SchemaVersion)
	fmt.Fprintf(w, "  source          %s (%s)\n", meta.SourceFilename, meta.SourceModTime.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "  source hash     %s\n", meta.SourceHash)
	if meta.Producer != "" {
		fmt.Fprintf(w, "  producer        %s\n", meta.Producer)
	}

	sum := summarize(s)
	fmt.Fprintf(w, "  spectra         %d", sum.spectra)
	levels := make([]int, 0, len(sum.levels))
	for l := range sum.levels {
		levels = append(levels, l)
	}
	sort.Ints(levels)
	for _, l := range levels {
		fmt.Fprintf(w, ", MS%d %d", l, sum.levels[l])
	}
	fmt.Fprintln(w)
	if sum.spectra > 0 {
		fmt.Fprintf(w, "  retention time  %.2f - %.2f s\n", sum.firstRT, sum.lastRT)
		fmt.Fprintf(w, "  m/z             %.4f - %.4f\n", sum.mzLow, sum.mzHigh)
		fmt.Fprintf(w, "  TIC             mean %.4g, sd %.4g, median %.4g\n", sum.meanTIC, sum.stdTIC, sum.medianTIC)
		fmt.Fprintf(w, "  peaks/spectrum  %.1f\n", sum.meanPeaks)
	}
	if warnings := s.Warnings(); len(warnings) > 0 {
		warn := color.New(color.FgYellow)
		for i, wa := range warnings {
			if i == 10 && par.verbosity != infoVerbose {
				warn.Fprintf(w, "  ... %d more warnings\n", len(warnings)-i)
				break
			}
			warn.Fprintf(w, "  warning: %s\n", wa)
		}
	}

	if *par.rtWindow != "" {
		points, err := e.ChromatogramWindow(par.lowRT, par.upRT)
		if err != nil {
			return err
		}
		head.Fprintf(w, "chromatogram %g - %g s: %d points\n", par.lowRT, par.upRT, len(points))
		for _, p := range points {
			fmt.Fprintf(w, "  %10.3f  %6d  MS%d  %.6g\n", p.RetentionTime, p.ScanID, p.MSLevel, p.SummedIntensity)
		}
	}

	if *par.scan >= 0 {
		return inspectScan(w, e, par)
	}
	return nil
}

func inspectScan(w io.Writer, e *view.Engine, par params) error {
	rec, err := e.GetByScanID(*par.scan)
	if err != nil {
		return err
	}
	head := color.New(color.Bold)
	head.Fprintf(w, "scan %d (%s)\n", rec.ScanID, rec.NativeID)
	fmt.Fprintf(w, "  MS%d at %.3f s, %d peaks, TIC %.6g\n", rec.MSLevel, rec.RetentionTime, rec.Len(), rec.TotalIntensity)
	if rec.Len() > 0 {
		fmt.Fprintf(w, "  base peak       %.5f (%.6g)\n", rec.BasePeakMz, rec.BasePeakIntensity)
	}
	if p := rec.Precursor; p != nil {
		fmt.Fprintf(w, "  precursor       %.5f", p.Mz)
		if p.Charge != 0 {
			fmt.Fprintf(w, " %d+", p.Charge)
		}
		if p.HasIsolation() {
			fmt.Fprintf(w, ", isolation %.4f - %.4f", p.IsolationLow, p.IsolationHigh)
		}
		fmt.Fprintln(w)
	}
	if rec.MSLevel > 1 {
		if survey, err := e.PrecursorSpectrum(rec.ScanID); err == nil {
			fmt.Fprintf(w, "  survey scan     %d at %.3f s\n", survey.ScanID, survey.RetentionTime)
		}
	}
	if !rec.MzSorted {
		color.New(color.FgYellow).Fprintf(w, "  warning: m/z values are not sorted\n")
	}

	var (
		win   view.Window
		peaks view.Peaks
	)
	switch {
	case *par.mzWindow != "":
		win = view.Window{Lo: par.lowMz, Hi: par.upMz}
		peaks, err = e.PeaksInMzWindow(rec.ScanID, par.lowMz, par.upMz)
	case *par.zoom != "":
		win, peaks, err = e.Zoom(rec.ScanID, par.zoomLevel)
	default:
		return nil
	}
	if err != nil {
		return err
	}
	head.Fprintf(w, "peaks %.4f - %.4f: %d\n", win.Lo, win.Hi, peaks.Len())
	for i := range peaks.Mz {
		fmt.Fprintf(w, "  %12.5f  %.6g\n", peaks.Mz[i], peaks.Intensity[i])
	}
	return nil
}
