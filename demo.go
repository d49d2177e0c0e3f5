package main

import (
	"math"
	"math/rand/v2"
	"os"
	"sort"

	"github.com/524D/mzparquet/internal/mzml"
)

const (
	massProton    = float64(1.007276466879)
	isotopeSpace  = float64(1.0033548378) // 13C - 12C
	demoCycleTime = 3.0                   // seconds between MS1 scans
	demoTopN      = 3                     // MS2 scans per cycle
)

// Relative abundance of the isotope peaks of a typical peptide
var isotopeAbundance = []float64{1, 0.62, 0.24, 0.07}

// A peptide that elutes as a gaussian peak
type demoPeptide struct {
	mass   float64 // Uncharged mass
	charge int
	apex   float64 // retention time of maximum intensity (s)
	width  float64 // sd of the elution profile (s)
	height float64
}

func (p demoPeptide) mz() float64 {
	return (p.mass + float64(p.charge)*massProton) / float64(p.charge)
}

func (p demoPeptide) intensity(rt float64) float64 {
	d := (rt - p.apex) / p.width
	return p.height * math.Exp(-0.5*d*d)
}

// demoRun builds a data dependent acquisition: every cycle one MS1 scan
// followed by MS2 scans of the most intense peptides.
func demoRun(cycles int) []mzml.OutSpectrum {
	rng := rand.New(rand.NewPCG(524, 1))
	runTime := float64(cycles) * demoCycleTime

	peptides := make([]demoPeptide, 40)
	for i := range peptides {
		peptides[i] = demoPeptide{
			mass:   800 + rng.Float64()*2200,
			charge: 2 + rng.IntN(2),
			apex:   rng.Float64() * runTime,
			width:  5 + rng.Float64()*10,
			height: math.Pow(10, 5+2*rng.Float64()),
		}
	}

	var run []mzml.OutSpectrum
	for c := 0; c < cycles; c++ {
		rt := float64(c) * demoCycleTime

		type peak struct{ mz, intensity float64 }
		var peaks []peak
		var eluting []demoPeptide
		for _, p := range peptides {
			h := p.intensity(rt)
			if h < 1000 {
				continue
			}
			eluting = append(eluting, p)
			for iso, a := range isotopeAbundance {
				peaks = append(peaks, peak{
					mz:        p.mz() + float64(iso)*isotopeSpace/float64(p.charge),
					intensity: h * a * (0.95 + 0.1*rng.Float64()),
				})
			}
		}
		// Chemical noise
		for i := 0; i < 50; i++ {
			peaks = append(peaks, peak{300 + rng.Float64()*1500, 200 + rng.Float64()*800})
		}
		sort.Slice(peaks, func(i, j int) bool { return peaks[i].mz < peaks[j].mz })
		ms1 := mzml.OutSpectrum{MSLevel: 1, RetentionTime: rt}
		for _, p := range peaks {
			ms1.Mz = append(ms1.Mz, p.mz)
			ms1.Intensity = append(ms1.Intensity, p.intensity)
		}
		run = append(run, ms1)

		sort.Slice(eluting, func(i, j int) bool {
			return eluting[i].intensity(rt) > eluting[j].intensity(rt)
		})
		for i := 0; i < len(eluting) && i < demoTopN; i++ {
			p := eluting[i]
			precMz := p.mz()
			ms2 := mzml.OutSpectrum{
				MSLevel:       2,
				RetentionTime: rt + float64(i+1)*demoCycleTime/float64(demoTopN+1),
				Precursor: &mzml.Precursor{
					Mz:            precMz,
					Charge:        p.charge,
					IsolationLow:  precMz - 0.8,
					IsolationHigh: precMz + 0.8,
				},
			}
			n := 20 + rng.IntN(40)
			fragments := make([]float64, n)
			for k := range fragments {
				fragments[k] = 100 + rng.Float64()*(p.mass-100)
			}
			sort.Float64s(fragments)
			ms2.Mz = fragments
			ms2.Intensity = make([]float64, n)
			for k := range ms2.Intensity {
				ms2.Intensity[k] = p.intensity(rt) * 0.01 * rng.Float64()
			}
			run = append(run, ms2)
		}
	}
	return run
}

// writeDemo writes a synthetic run to an mzML file
func writeDemo(filename string, cycles int) error {
	run := demoRun(cycles)
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	w, err := mzml.NewWriter(f, "demo", len(run),
		mzml.Encoding{Precision: mzml.Float64, Compression: mzml.Zlib})
	if err != nil {
		f.Close()
		return err
	}
	for _, s := range run {
		if err := w.WriteSpectrum(s); err != nil {
			f.Close()
			return err
		}
	}
	if err := w.Close(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
