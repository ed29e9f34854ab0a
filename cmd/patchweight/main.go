// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/cpuid"
	"github.com/mlnoga/patchweight/internal/denoise"
	"github.com/mlnoga/patchweight/internal/logging"
	"github.com/mlnoga/patchweight/internal/ops"
	"github.com/mlnoga/patchweight/internal/ops/filter"
	"github.com/mlnoga/patchweight/internal/rest"
	"github.com/rs/zerolog"
)

const version = "0.1.0"

var cpuprofile = flag.String("cpuprofile", "", "write cpu profile to `file`")
var memprofile = flag.String("memprofile", "", "write memory profile to `file`")

var out = flag.String("out", "out.fits", "save output to `file`. Use a pattern like `out%d.fits` for multiple inputs")
var jpg = flag.String("jpg", "%auto", "save 8bit preview of output as JPEG to `file`. `%auto` replaces suffix of output file with .jpg")
var tif = flag.String("tiff", "", "save 16bit TIFF of output to `file`")
var log = flag.String("log", "%auto", "save log output to `file`. `%auto` replaces suffix of output file with .log")
var config = flag.String("config", "", "read the processing pipeline from JSON `file` instead of the flags below")

var a = flag.Int("a", denoise.DefaultA, "search radius in pixels, the search window is 2a+1 pixels wide")
var s = flag.Int("s", denoise.DefaultS, "patch radius in pixels, patches are 2s+1 pixels wide")
var h = flag.Float64("h", denoise.DefaultH, "patch-level bandwidth, larger values smooth more")
var h2 = flag.Float64("h2", 0, "position-level bandwidth, 0=same as h")
var planes = flag.String("planes", "", "comma-separated list of planes to denoise, e.g. `0,2`. Empty=all")
var ref = flag.String("ref", "", "compare patches against reference image from `file` instead of the input")

var gamma = flag.Float64("gamma", 1, "gamma for JPEG and TIFF output")
var srgb = flag.Bool("srgb", false, "encode JPEG output with the sRGB transfer curve instead of gamma")
var replaceNaNs = flag.Bool("replaceNaNs", true, "write NaN values as zeros to FITS output")
var bins = flag.Int("bins", 0, "stats: fit a normal distribution to a histogram with this many bins, 0=off")

var threads = flag.Int("threads", 0, "number of worker threads, 0=all available")
var addr = flag.String("addr", ":8080", "serve: listen on this address")
var chroot = flag.String("chroot", "", "serve: change filesystem root to `dir` before serving (requires root)")
var setuid = flag.Int("setuid", -1, "serve: change user id before serving, -1=don't")

func main() {
	logWriter := logging.New(os.Stdout)
	start := time.Now()
	flag.Usage = func() {
		fmt.Fprintf(logWriter, `Patchweight Copyright (c) 2020 Markus L. Noga
This program comes with ABSOLUTELY NO WARRANTY.
This is free software, and you are welcome to redistribute it under certain conditions.
Refer to https://www.gnu.org/licenses/gpl-3.0.en.html for details.

Usage: %s [-flag value] (denoise|stats|serve|legal|version|help) (img0.fits ... imgn.fits)

Commands:
  denoise Denoise input images with patch-weighted averaging
  stats   Show input image statistics
  serve   Serve the REST API
  legal   Show license and attribution information
  version Show version information

Flags:
`, os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		return
	}

	// Initialize logging to file in addition to stdout, if selected
	if *log == "%auto" {
		*log = ""
		if args[0] == "denoise" && *out != "" {
			*log = strings.ReplaceAll(autoName(*out, ".log"), "%d", "")
		}
	}
	if *log != "" {
		if err := logWriter.AlsoToFile(*log); err != nil {
			logWriter.Fatalf("Unable to open logfile '%s': %s\n", *log, err.Error())
		}
	}
	defer logWriter.Close()

	// Also auto-select JPEG output target
	if *jpg == "%auto" {
		*jpg = ""
		if *out != "" {
			*jpg = autoName(*out, ".jpg")
		}
	}

	// Enable CPU profiling if flagged
	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			logWriter.Fatalf("Could not create CPU profile: %s\n", err.Error())
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			logWriter.Fatalf("Could not start CPU profile: %s\n", err.Error())
		}
		defer pprof.StopCPUProfile()
	}

	c := ops.NewContext(logWriter, *threads)
	defer c.Close()

	var err error
	switch args[0] {
	case "denoise":
		printBanner(c)
		err = cmdDenoise(args[1:], c)

	case "stats":
		err = runPipeline(args[1:], ops.NewOpSequence(ops.NewOpStats(*bins)), c)

	case "serve":
		err = cmdServe(c)

	case "legal":
		fmt.Fprint(logWriter, legal)

	case "version":
		fmt.Fprintf(logWriter, "Version %s\n", version)

	case "help", "?":
		flag.Usage()

	default:
		fmt.Fprintf(logWriter, "Unknown command '%s'\n\n", args[0])
		flag.Usage()
		return
	}

	fmt.Fprintf(logWriter, "\nDone after %v\n", time.Since(start))

	// Store memory profile if flagged
	if *memprofile != "" {
		f, ferr := os.Create(*memprofile)
		if ferr != nil {
			logWriter.Fatalf("Could not create memory profile: %s\n", ferr.Error())
		}
		defer f.Close()
		runtime.GC() // get up-to-date statistics
		if ferr := pprof.Lookup("allocs").WriteTo(f, 0); ferr != nil {
			logWriter.Fatalf("Could not write allocation profile: %s\n", ferr.Error())
		}
	}

	if err != nil {
		fmt.Fprintf(logWriter, "Error: %s\n", err.Error())
		logWriter.Close()
		os.Exit(-1)
	}
}

// Replaces the suffix of the given file name
func autoName(fileName, suffix string) string {
	return strings.TrimSuffix(fileName, filepath.Ext(fileName)) + suffix
}

func printBanner(c *ops.Context) {
	fmt.Fprintf(c.Log, "Running on %s with %d physical and %d logical cores, AVX2 %v, %d MiB memory, %d threads\n",
		cpuid.CPU.BrandName, cpuid.CPU.PhysicalCores, cpuid.CPU.LogicalCores, cpuid.CPU.AVX2(), c.MemoryMB, c.MaxThreads)
}

// Parses a comma-separated list of plane indices
func parsePlanes(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	res := make([]int, len(parts))
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid plane list '%s': %s", s, err.Error())
		}
		res[i] = v
	}
	return res, nil
}

// Builds the denoise pipeline from a JSON file or from the flags, prints it and runs it on the given files
func cmdDenoise(fileNames []string, c *ops.Context) error {
	var seq *ops.OpSequence
	if *config != "" {
		b, err := os.ReadFile(*config)
		if err != nil {
			return err
		}
		seq = ops.NewOpSequence()
		if err := json.Unmarshal(b, seq); err != nil {
			return fmt.Errorf("parsing %s: %s", *config, err.Error())
		}
	} else {
		if len(fileNames) > 1 && *out != "" && !strings.Contains(*out, "%d") {
			return errors.New("multiple inputs need an output pattern with %d")
		}
		ps, err := parsePlanes(*planes)
		if err != nil {
			return err
		}
		opSaveJPG := ops.NewOpSave(*jpg)
		opSaveJPG.Gamma, opSaveJPG.SRGB = float32(*gamma), *srgb
		opSaveTIFF := ops.NewOpSave(*tif)
		opSaveTIFF.Gamma = float32(*gamma)
		opSave := ops.NewOpSave(*out)
		opSave.ReplaceNaNs = *replaceNaNs

		seq = ops.NewOpSequence(
			filter.NewOpDenoise(*a, *s, *h, *h2, ps, *ref),
			opSave,
			opSaveJPG,
			opSaveTIFF,
		)
	}

	m, err := json.MarshalIndent(seq, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(c.Log, "\nDenoising with these settings:\n%s\n", string(m))
	return runPipeline(fileNames, seq, c)
}

// Runs the pipeline on promises for the given files, or on no inputs if there are none
func runPipeline(fileNames []string, seq *ops.OpSequence, c *ops.Context) error {
	var ins []ops.Promise
	if len(fileNames) > 0 {
		var err error
		if ins, err = ops.NewOpLoadMany(fileNames).MakePromises(nil, c); err != nil {
			return err
		}
	}
	outs, err := seq.MakePromises(ins, c)
	if err != nil {
		return err
	}
	_, err = ops.MaterializeAll(outs, c.MaxThreads, true)
	return err
}

func cmdServe(c *ops.Context) error {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	if err := rest.MakeSandbox(*chroot, *setuid, logger); err != nil {
		return err
	}
	return rest.Serve(*addr, c, logger)
}
