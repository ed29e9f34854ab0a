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
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mlnoga/patchweight/internal/ops"
	"github.com/mlnoga/patchweight/internal/ops/filter"
	"github.com/rs/zerolog"
)

// Serves the REST API on the given address until the server fails
func Serve(addr string, c *ops.Context, logger zerolog.Logger) error {
	logger.Info().Str("addr", addr).Int("threads", c.MaxThreads).Msg("starting server")
	return NewRouter(c, logger).Run(addr)
}

// Builds the router for the REST API. Jobs run on the worker pool of c,
// restricted to the current directory tree
func NewRouter(c *ops.Context, logger zerolog.Logger) *gin.Engine {
	s := &server{ctx: c, logger: logger}
	r := gin.New()
	r.Use(gin.Recovery(), s.logRequests)
	api := r.Group("/api")
	{
		v1 := api.Group("/v1")
		{
			v1.GET("/ping", getPing)
			v1.POST("/stats", s.postStats)
			v1.POST("/denoise", s.postDenoise)
			v1.POST("/pipeline", s.postPipeline)
		}
	}
	return r
}

type server struct {
	ctx    *ops.Context
	logger zerolog.Logger
}

func (s *server) logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.logger.Info().
		Str("method", c.Request.Method).
		Str("path", c.Request.URL.Path).
		Int("status", c.Writer.Status()).
		Dur("latency", time.Since(start)).
		Msg("request")
}

func getPing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "pong",
	})
}

// Serializes concurrent log output from parallel operators onto the response
type syncWriter struct {
	mutex sync.Mutex
	w     io.Writer
}

func (sw *syncWriter) Write(p []byte) (int, error) {
	sw.mutex.Lock()
	defer sw.mutex.Unlock()
	return sw.w.Write(p)
}

func printArgs(logWriter io.Writer, prefix, suffix string, args interface{}) error {
	m, err := json.MarshalIndent(args, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(logWriter, "%s%s%s", prefix, string(m), suffix)
	return nil
}

// Runs the given operator sequence, streaming its log as plain text to the client
func (s *server) runJob(c *gin.Context, name string, args interface{}, seq *ops.OpSequence) {
	header := c.Writer.Header()
	header.Set("Content-Type", "text/plain")
	c.Writer.WriteHeader(http.StatusOK)

	logWriter := &syncWriter{w: c.Writer}
	if err := printArgs(logWriter, "Arguments:\n", "\n", args); err != nil {
		fmt.Fprintf(logWriter, "Error printing arguments: %s\n", err.Error())
		return
	}

	job := s.ctx.NewJob(logWriter)
	job.Sandboxed = true
	start := time.Now()
	err := func() error {
		promises, err := seq.MakePromises(nil, job)
		if err != nil {
			return err
		}
		_, err = ops.MaterializeAll(promises, job.MaxThreads, true)
		return err
	}()
	if err != nil {
		fmt.Fprintf(logWriter, "Error: %s\n", err.Error())
		s.logger.Error().Str("job", name).Err(err).Msg("job failed")
	} else {
		fmt.Fprintf(logWriter, "Done after %v\n", time.Since(start).Round(time.Millisecond))
		s.logger.Info().Str("job", name).Dur("elapsed", time.Since(start)).Msg("job done")
	}
	c.Writer.Flush()
}

type postStatsArgs struct {
	FilePatterns []string `json:"filePatterns"`
	Bins         int      `json:"bins"`
}

func (s *server) postStats(c *gin.Context) {
	var args postStatsArgs
	if err := c.ShouldBindJSON(&args); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	seq := ops.NewOpSequence(
		ops.NewOpLoadMany(args.FilePatterns),
		ops.NewOpStats(args.Bins),
	)
	s.runJob(c, "stats", args, seq)
}

type postDenoiseArgs struct {
	FilePatterns  []string          `json:"filePatterns"`
	OutputPattern string            `json:"outputPattern"`
	Denoise       *filter.OpDenoise `json:"denoise"`
}

func (s *server) postDenoise(c *gin.Context) {
	var args postDenoiseArgs
	if err := c.ShouldBindJSON(&args); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if args.Denoise == nil {
		args.Denoise = filter.NewOpDenoiseDefault()
	}
	if args.OutputPattern == "" {
		args.OutputPattern = "denoised%d.fits"
	}
	seq := ops.NewOpSequence(
		ops.NewOpLoadMany(args.FilePatterns),
		args.Denoise,
		ops.NewOpSave(args.OutputPattern),
	)
	s.runJob(c, "denoise", args, seq)
}

func (s *server) postPipeline(c *gin.Context) {
	var seq ops.OpSequence
	if err := c.ShouldBindJSON(&seq); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.runJob(c, "pipeline", &seq, &seq)
}
