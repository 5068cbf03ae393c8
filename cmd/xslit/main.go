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
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"strconv"
	"strings"
	"syscall"
	"time"

	nl "github.com/mlnoga/xslit/internal"
	"github.com/mlnoga/xslit/internal/config"
	"github.com/mlnoga/xslit/internal/features"
	"github.com/mlnoga/xslit/internal/frame"
	"github.com/mlnoga/xslit/internal/ops"
	"github.com/mlnoga/xslit/internal/ops/motion"
	"github.com/mlnoga/xslit/internal/ops/panorama"
	"github.com/mlnoga/xslit/internal/ops/refocus"
	"github.com/mlnoga/xslit/internal/ops/stack"
	"github.com/mlnoga/xslit/internal/ransac"
	"github.com/mlnoga/xslit/internal/rest"
	"github.com/mlnoga/xslit/internal/watch"
)

const version = "0.1.0"

var cpuprofile = flag.String("cpuprofile", "", "write cpu profile to `file`")
var memprofile = flag.String("memprofile", "", "write memory profile to `file`")

var configFile = flag.String("config", "xslit.yaml", "read settings from YAML `file` if present. Flags override its values")
var out = flag.String("out", "Results", "write composites below `dir`/<sequence>/")
var logFile = flag.String("log", "", "save log output to `file` in addition to stdout")
var motionDir = flag.String("motionDir", "Motion", "persist motion in `dir`/<sequence>.csv, empty=do not persist")
var threads = flag.Int("threads", 0, "maximum number of threads, 0=number of physical cores")

var iter = flag.Int("iter", 100, "number of RANSAC iterations")
var tol = flag.Float64("tol", 6, "RANSAC inlier tolerance as squared residual in pixels")
var trans = flag.Bool("trans", false, "estimate translations only")
var proper = flag.Bool("proper", false, "reject reflections when fitting rigid motion")
var seed = flag.Uint("seed", 1, "base seed for the per-pair random sources")
var numFeatures = flag.Int("features", 500, "maximum number of features per frame")
var backend = flag.String("backend", features.BackendNative, "feature extraction backend, one of "+strings.Join(features.Backends(), ", "))
var recompute = flag.Bool("recompute", false, "ignore persisted motion and recompute")
var validate = flag.Bool("validate", true, "check the motion direction and reverse right-to-left sequences")
var matches = flag.String("matches", "", "save feature matches of each frame pair with given filename pattern, e.g. `matches%04d.png`")

var frames = flag.String("frames", "", "panorama frame range `f0,f1`, empty=all frames")
var cols = flag.String("cols", "0,0", "panorama column range `c0,c1`. Descending columns select the big-start branch")
var angle = flag.Float64("angle", 0, "rotate the panorama slice by this many degrees in [-90,90]")
var sweep = flag.String("sweep", "frames", "sweep mode, one of frames, cols or slits")

var dx = flag.Float64("dx", 0, "refocus shift per frame in x, in pixels")
var dy = flag.Float64("dy", 0, "refocus shift per frame in y, in pixels")
var mode = flag.String("mode", "mean", "refocus blend mode, mean or median")
var ref = flag.Int("ref", -1, "reference frame, -1=default")
var region = flag.String("region", "", "refocus on region `rowMin,rowMax,colMin,colMax` instead of shifting")
var fill = flag.String("fill", "zero", "fill pixels outside warped frames with zero or the reference mean")

var addr = flag.String("addr", ":8080", "listen address for serve")

func main() {
	logWriter := nl.LogWriter
	start := time.Now()
	flag.Usage = func() {
		fmt.Fprintf(logWriter, `xslit Copyright (c) 2020 Markus L. Noga
This program comes with ABSOLUTELY NO WARRANTY.
This is free software, and you are welcome to redistribute it under certain conditions.
Refer to https://www.gnu.org/licenses/gpl-3.0.en.html for details.

Usage: %s [-flag value] (motion|panorama|rotate|sweep|refocus|serve|watch|legal|version) (dir|pattern)

Commands:
  motion   Estimate and persist the pairwise motion of a frame sequence
  panorama Create an x-slit panorama for the slice given by -frames and -cols
  rotate   Create an x-slit panorama for the slice rotated by -angle
  sweep    Create a sweep of panoramas, see -sweep
  refocus  Create a refocused image with synthetic shifts -dx, -dy, or focused on -region
  serve    Serve the commands as REST API
  watch    Invalidate persisted motion when the frames of a sequence change
  legal    Show license and attribution information
  version  Show version information

Flags:
`, os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		nl.LogFatalf("Error: %s\n", err.Error())
	}
	applyFlags(cfg)

	// Initialize logging to file in addition to stdout, if selected
	if cfg.Output.Log != "" {
		if err := nl.LogAlsoToFile(cfg.Output.Log); err != nil {
			nl.LogFatalf("Unable to open logfile '%s'\n", cfg.Output.Log)
		}
	}

	// Enable CPU profiling if flagged
	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			nl.LogFatal("Could not create CPU profile: ", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			nl.LogFatal("Could not start CPU profile: ", err)
		}
		defer pprof.StopCPUProfile()
	}

	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		return
	}
	c := ops.NewContext(logWriter, cfg.Processing.Threads)

	// run actions
	switch args[0] {
	case "motion":
		err = cmdMotion(args[1:], cfg, c)

	case "panorama", "rotate":
		err = cmdPanorama(args[0] == "rotate", args[1:], cfg, c)

	case "sweep":
		err = cmdSweep(args[1:], cfg, c)

	case "refocus":
		err = cmdRefocus(args[1:], cfg, c)

	case "serve":
		err = cmdServe(cfg, logWriter)

	case "watch":
		err = cmdWatch(args[1:], cfg, logWriter)

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

	elapsed := time.Since(start)
	fmt.Fprintf(logWriter, "\nDone after %v\n", elapsed)

	// Store memory profile if flagged
	if *memprofile != "" {
		f, err := os.Create(*memprofile)
		if err != nil {
			nl.LogFatal("Could not create memory profile: ", err)
		}
		defer f.Close()
		runtime.GC() // get up-to-date statistics
		if err := pprof.Lookup("allocs").WriteTo(f, 0); err != nil {
			nl.LogFatal("Could not write allocation profile: ", err)
		}
	}

	if err != nil {
		fmt.Fprintf(logWriter, "Error: %s\n", err.Error())
		nl.LogSync()
		os.Exit(-1)
	}
	nl.LogSync()
}

// Overrides configuration values with explicitly set flags
func applyFlags(cfg *config.Config) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "out":
			cfg.Output.Dir = *out
		case "log":
			cfg.Output.Log = *logFile
		case "motionDir":
			cfg.MotionDir = *motionDir
		case "threads":
			cfg.Processing.Threads = *threads
		case "iter":
			cfg.Motion.Ransac.Iterations = *iter
		case "tol":
			cfg.Motion.Ransac.InlierTol = *tol
		case "trans":
			cfg.Motion.Ransac.TranslationOnly = *trans
		case "proper":
			cfg.Motion.Ransac.ProperRotation = *proper
		case "seed":
			cfg.Motion.Seed = uint32(*seed)
		case "features":
			cfg.Motion.Features.MaxFeatures = *numFeatures
		case "backend":
			cfg.Motion.Features.Backend = *backend
		case "fill":
			cfg.Processing.Fill = *fill
		case "addr":
			cfg.Server.Address = *addr
		}
	})
}

// A frame sequence named on the command line
type sequence struct {
	load      *ops.OpLoadMany
	numFrames int
	name      string
}

func loadSequence(args []string) (*sequence, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("expected one frame directory or pattern, got %d arguments", len(args))
	}
	lm := ops.NewOpLoadMany(args)
	names, err := lm.FileNames()
	if err != nil {
		return nil, err
	}
	if len(names) < 2 {
		return nil, fmt.Errorf("need at least two frames in %s, found %d", args[0], len(names))
	}
	return &sequence{load: lm, numFrames: len(names), name: filepath.Base(filepath.Dir(names[0]))}, nil
}

// Motion operator for the sequence. Panoramas always use translation-only motion
func (s *sequence) motion(cfg *config.Config, forPanorama bool) *motion.OpMotion {
	p := cfg.Motion
	if forPanorama {
		p = panorama.MotionParams(p)
	}
	m := motion.NewOpMotion(p, cfg.MotionDir)
	m.Sequence = s.name
	m.Validate, m.Recompute, m.Reference = *validate, *recompute, *ref
	return m
}

func (s *sequence) save(cfg *config.Config) *ops.OpSave {
	return ops.NewOpSave(filepath.Join(cfg.Output.Dir, s.name, "%s"+cfg.Output.Suffix))
}

// Estimates motion and reports it
func cmdMotion(args []string, cfg *config.Config, c *ops.Context) error {
	s, err := loadSequence(args)
	if err != nil {
		return err
	}
	m := s.motion(cfg, false)
	fs, err := ops.NewOpSequence(s.load, m).Run(c)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.Log, "\nMotion of sequence %s with %d frames, reversed=%v loaded=%v:\n", s.name, len(fs), m.Reversed, m.Loaded)
	for i, h := range c.Pairwise {
		fmt.Fprintf(c.Log, "%d: %v\n", i, h)
	}
	for _, f := range m.Failed {
		fmt.Fprintf(c.Log, "Warning: %s\n", f.Error())
	}
	if *matches != "" {
		return writeMatches(fs, cfg.Motion, *matches, c)
	}
	return nil
}

// Saves an overlay of the feature matches of each frame pair onto the later frame, inliers in color
func writeMatches(fs []*frame.Image, p motion.Params, pattern string, c *ops.Context) error {
	e, err := motion.NewEstimator(p)
	if err != nil {
		return err
	}
	for i := 0; i+1 < len(fs); i++ {
		corr, err := e.Extractor.Extract(fs[i+1], fs[i], e.Region)
		if err != nil {
			return err
		}
		var inliers []bool
		if res, err := ransac.Estimate(corr, e.Ransac, motion.PairSource(p.Seed, i)); err == nil {
			inliers = res.Inliers
		}
		fileName := fmt.Sprintf(pattern, i)
		fmt.Fprintf(c.Log, "%d: Writing %d matches to %s\n", fs[i+1].ID, corr.Len(), fileName)
		if err := frame.FromGoImage(features.Overlay(fs[i+1], corr, inliers)).WriteFile(fileName); err != nil {
			return err
		}
	}
	return nil
}

// Parses a pair of comma-separated integers
func parsePair(s string) (int, int, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected two comma-separated values, got '%s'", s)
	}
	a, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, err
	}
	b, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}

// Builds the panorama slice from the -frames and -cols values. Empty frames select all
func parseSlice(framesStr, colsStr string, numFrames int) (panorama.Slice, error) {
	s := panorama.Slice{StartFrame: 0, EndFrame: numFrames - 1}
	var err error
	if framesStr != "" {
		if s.StartFrame, s.EndFrame, err = parsePair(framesStr); err != nil {
			return s, fmt.Errorf("%w: frames: %s", panorama.ErrInvalidSliceBounds, err.Error())
		}
	}
	if s.StartColumn, s.EndColumn, err = parsePair(colsStr); err != nil {
		return s, fmt.Errorf("%w: cols: %s", panorama.ErrInvalidSliceBounds, err.Error())
	}
	return s, nil
}

func cmdPanorama(rotate bool, args []string, cfg *config.Config, c *ops.Context) error {
	s, err := loadSequence(args)
	if err != nil {
		return err
	}
	slice, err := parseSlice(*frames, *cols, s.numFrames)
	if err != nil {
		return err
	}
	op := panorama.NewOpPanorama(slice)
	if rotate {
		a := *angle
		op.Angle = &a
	}
	_, err = ops.NewOpSequence(s.load, s.motion(cfg, true), op, s.save(cfg)).Run(c)
	return err
}

func cmdSweep(args []string, cfg *config.Config, c *ops.Context) error {
	s, err := loadSequence(args)
	if err != nil {
		return err
	}
	slice, err := parseSlice(*frames, *cols, s.numFrames)
	if err != nil {
		return err
	}
	m, err := panorama.ParseSweepMode(*sweep)
	if err != nil {
		return err
	}
	fs, err := ops.NewOpSequence(s.load, s.motion(cfg, true), panorama.NewOpSweep(slice, m), s.save(cfg)).Run(c)
	fmt.Fprintf(c.Log, "Wrote %d panoramas\n", len(fs))
	return err
}

func cmdRefocus(args []string, cfg *config.Config, c *ops.Context) error {
	s, err := loadSequence(args)
	if err != nil {
		return err
	}
	sm, err := stack.ParseStackMode(*mode)
	if err != nil {
		return err
	}
	op := refocus.NewOpRefocus(refocus.Params{Dx: *dx, Dy: *dy, Mode: sm})
	op.Fill, op.Reference = cfg.Processing.Fill, *ref
	seq := ops.NewOpSequence(s.load)
	if *region != "" {
		r, err := features.ParseRegion(*region)
		if err != nil {
			return err
		}
		op.Region = r
		op.RegionP.Features, op.RegionP.Seed = cfg.Motion.Features, cfg.Motion.Seed
	} else {
		seq.Append(s.motion(cfg, false))
	}
	seq.Append(op, s.save(cfg))
	_, err = seq.Run(c)
	return err
}

func cmdServe(cfg *config.Config, logWriter io.Writer) error {
	srv := rest.NewServer(cfg, logWriter)
	if err := rest.MakeSandbox(cfg.Server.Chroot, cfg.Server.Setuid, logWriter); err != nil {
		return err
	}
	fmt.Fprintf(logWriter, "Serving on %s\n", cfg.Server.Address)
	return srv.Serve(cfg.Server.Address)
}

// Watches until interrupted
func cmdWatch(args []string, cfg *config.Config, logWriter io.Writer) error {
	if len(args) != 1 {
		return fmt.Errorf("expected one frame directory, got %d arguments", len(args))
	}
	if cfg.MotionDir == "" {
		return fmt.Errorf("nothing to watch for, motion is not persisted")
	}
	dir := args[0]
	w, err := watch.New(dir, motion.FileName(cfg.MotionDir, filepath.Base(filepath.Clean(dir))), 0, logWriter)
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		return err
	}
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	for {
		select {
		case name := <-w.Invalidated:
			fmt.Fprintf(logWriter, "Motion %s invalidated\n", name)
		case <-sig:
			return w.Stop()
		}
	}
}
