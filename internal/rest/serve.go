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


package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mlnoga/xslit/internal/config"
	"github.com/mlnoga/xslit/internal/features"
	"github.com/mlnoga/xslit/internal/frame"
	"github.com/mlnoga/xslit/internal/ops"
	"github.com/mlnoga/xslit/internal/ops/motion"
	"github.com/mlnoga/xslit/internal/ops/panorama"
	"github.com/mlnoga/xslit/internal/ops/refocus"
	"github.com/mlnoga/xslit/internal/ransac"
)

var ErrPathNotAllowed = errors.New("path not allowed")
var ErrNoSequence = errors.New("no such sequence")
var ErrMissingOperator = errors.New("missing operator")

// Serves motion, panorama, sweep and refocus requests on frame directories below the working directory
type Server struct {
	MotionDir string        // Persisted motion files
	OutDir    string        // Composites are written to OutDir/<sequence>/
	Suffix    string        // File suffix selecting the encoder
	Threads   int           // Concurrency limit per request
	Motion    motion.Params // Motion parameters for requests without a motion operator
	Log       io.Writer
}

func NewServer(cfg *config.Config, log io.Writer) *Server {
	return &Server{
		MotionDir: cfg.MotionDir,
		OutDir:    cfg.Output.Dir,
		Suffix:    cfg.Output.Suffix,
		Threads:   cfg.Processing.Threads,
		Motion:    cfg.Motion,
		Log:       log,
	}
}

func (s *Server) Router() *gin.Engine {
	r := gin.Default()
	api := r.Group("/api")
	{
		v1 := api.Group("/v1")
		{
			v1.GET("/ping", getPing)
			v1.POST("/motion", s.postMotion)
			v1.POST("/panorama", s.postPanorama)
			v1.POST("/sweep", s.postSweep)
			v1.POST("/refocus", s.postRefocus)
		}
	}
	return r
}

// Listens and serves on the given address, e.g. ":8080"
func (s *Server) Serve(addr string) error {
	return s.Router().Run(addr)
}

func getPing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "pong",
	})
}

func printArgs(logWriter io.Writer, prefix, suffix string, args interface{}) error {
	m, err := json.MarshalIndent(args, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(logWriter, "%s%s%s", prefix, string(m), suffix)
	return nil
}

// Common arguments: the frame directory, and optionally the motion operator
type sequenceArgs struct {
	Dir    string           `json:"dir"`
	Motion *motion.OpMotion `json:"motion"`
}

type pairFailure struct {
	Pair  int    `json:"pair"`
	Error string `json:"error"`
}

type response struct {
	Sequence   string        `json:"sequence"`
	Job        string        `json:"job,omitempty"`
	Frames     int           `json:"frames,omitempty"`
	Reversed   bool          `json:"reversed"`
	Loaded     bool          `json:"loaded"`
	MotionFile string        `json:"motionFile,omitempty"`
	Failed     []pairFailure `json:"failed,omitempty"`
	Files      []string      `json:"files,omitempty"`
	Tags       []string      `json:"tags,omitempty"`
	Errors     []string      `json:"errors,omitempty"`
}

// Maps errors to HTTP status codes
func statusOf(err error) int {
	switch {
	case errors.Is(err, panorama.ErrInvalidSliceBounds),
		errors.Is(err, panorama.ErrInvalidRotation),
		errors.Is(err, ransac.ErrInsufficientCorrespondences),
		errors.Is(err, features.ErrInvalidRegion),
		errors.Is(err, motion.ErrInvalidReference),
		errors.Is(err, ErrPathNotAllowed),
		errors.Is(err, ErrMissingOperator):
		return http.StatusBadRequest
	case errors.Is(err, ErrNoSequence):
		return http.StatusNotFound
	case errors.Is(err, motion.ErrMotionNotComputed):
		return http.StatusConflict
	case errors.Is(err, panorama.ErrDegenerateGeometry):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func abort(c *gin.Context, err error) {
	c.JSON(statusOf(err), gin.H{"error": err.Error()})
}

func errorStrings(err error) []string {
	if err == nil {
		return nil
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var res []string
		for _, e := range joined.Unwrap() {
			res = append(res, e.Error())
		}
		return res
	}
	return []string{err.Error()}
}

// Binds the request body, checks the frame directory and prepares the motion operator
func (s *Server) bind(c *gin.Context, args interface{}, seq *sequenceArgs) (*motion.OpMotion, *response, bool) {
	if err := c.ShouldBindJSON(args); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, nil, false
	}
	if err := printArgs(s.Log, "Arguments:\n", "\n", args); err != nil {
		fmt.Fprintf(s.Log, "Error printing arguments: %s\n", err.Error())
	}
	if seq.Dir == "" || !ops.IsPathAllowed(seq.Dir) {
		abort(c, fmt.Errorf("%w: '%s'", ErrPathNotAllowed, seq.Dir))
		return nil, nil, false
	}
	if st, err := os.Stat(seq.Dir); err != nil || !st.IsDir() {
		abort(c, fmt.Errorf("%w: %s", ErrNoSequence, seq.Dir))
		return nil, nil, false
	}

	m := seq.Motion
	if m == nil {
		m = motion.NewOpMotion(s.Motion, s.MotionDir)
	}
	m.MotionDir = s.MotionDir
	m.Sequence = filepath.Base(filepath.Clean(seq.Dir))
	resp := &response{Sequence: m.Sequence}
	if s.MotionDir != "" {
		resp.MotionFile = motion.FileName(s.MotionDir, m.Sequence)
	}
	return m, resp, true
}

// Loads the sequence, establishes motion, then applies the given steps
func (s *Server) run(dir string, m *motion.OpMotion, steps ...ops.Operator) ([]*frame.Image, error) {
	ctx := ops.NewContext(s.Log, s.Threads)
	seq := ops.NewOpSequence(ops.NewOpLoadMany([]string{dir}), m)
	seq.Append(steps...)
	return seq.Run(ctx)
}

func (s *Server) savePattern(subdirs ...string) *ops.OpSave {
	elems := append([]string{s.OutDir}, subdirs...)
	elems = append(elems, "%s"+s.Suffix)
	return ops.NewOpSave(filepath.Join(elems...))
}

func fillMotion(resp *response, m *motion.OpMotion) {
	resp.Reversed, resp.Loaded = m.Reversed, m.Loaded
	for _, f := range m.Failed {
		resp.Failed = append(resp.Failed, pairFailure{Pair: f.Index, Error: f.Err.Error()})
	}
}

func fillOutputs(resp *response, save *ops.OpSave, fs []*frame.Image) {
	for _, f := range fs {
		resp.Files = append(resp.Files, save.FileName(f))
		resp.Tags = append(resp.Tags, f.Tag)
	}
}

func (s *Server) postMotion(c *gin.Context) {
	var args sequenceArgs
	m, resp, ok := s.bind(c, &args, &args)
	if !ok {
		return
	}
	fs, err := s.run(args.Dir, m)
	if err != nil {
		abort(c, err)
		return
	}
	resp.Frames = len(fs)
	fillMotion(resp, m)
	c.JSON(http.StatusOK, resp)
}

type panoramaArgs struct {
	sequenceArgs
	Panorama *panorama.OpPanorama `json:"panorama"`
}

func (s *Server) postPanorama(c *gin.Context) {
	var args panoramaArgs
	m, resp, ok := s.bind(c, &args, &args.sequenceArgs)
	if !ok {
		return
	}
	if args.Panorama == nil {
		abort(c, fmt.Errorf("%w: panorama", ErrMissingOperator))
		return
	}
	m.Params = panorama.MotionParams(m.Params)
	save := s.savePattern(resp.Sequence)
	fs, err := s.run(args.Dir, m, args.Panorama, save)
	if err != nil {
		abort(c, err)
		return
	}
	fillMotion(resp, m)
	fillOutputs(resp, save, fs)
	c.JSON(http.StatusOK, resp)
}

type sweepArgs struct {
	sequenceArgs
	Sweep *panorama.OpSweep `json:"sweep"`
}

// Sweeps are written into a fresh job directory. Partial results are returned with the errors of the
// failed panoramas
func (s *Server) postSweep(c *gin.Context) {
	var args sweepArgs
	m, resp, ok := s.bind(c, &args, &args.sequenceArgs)
	if !ok {
		return
	}
	if args.Sweep == nil {
		abort(c, fmt.Errorf("%w: sweep", ErrMissingOperator))
		return
	}
	m.Params = panorama.MotionParams(m.Params)
	resp.Job = uuid.NewString()
	save := s.savePattern(resp.Sequence, resp.Job)
	fs, err := s.run(args.Dir, m, args.Sweep, save)
	if err != nil && len(fs) == 0 {
		abort(c, err)
		return
	}
	fillMotion(resp, m)
	fillOutputs(resp, save, fs)
	resp.Errors = errorStrings(err)
	c.JSON(http.StatusOK, resp)
}

type refocusArgs struct {
	sequenceArgs
	Refocus *refocus.OpRefocus `json:"refocus"`
}

func (s *Server) postRefocus(c *gin.Context) {
	var args refocusArgs
	m, resp, ok := s.bind(c, &args, &args.sequenceArgs)
	if !ok {
		return
	}
	if args.Refocus == nil {
		abort(c, fmt.Errorf("%w: refocus", ErrMissingOperator))
		return
	}
	save := s.savePattern(resp.Sequence)
	fs, err := s.run(args.Dir, m, args.Refocus, save)
	if err != nil {
		abort(c, err)
		return
	}
	fillMotion(resp, m)
	fillOutputs(resp, save, fs)
	c.JSON(http.StatusOK, resp)
}
