/*
 * MIT License
 *
 * Copyright (c) 2021 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package config loads and validates cmd/tubed's YAML configuration
// (§4.16): the listening address, admission/recycle tuning and the
// thread-pool sizes for every named stage.
package config

import (
	"context"

	libdur "github.com/nabbar/tube/duration"
	liberr "github.com/nabbar/tube/errors"
	liblog "github.com/nabbar/tube/logger"
	libsize "github.com/nabbar/tube/size"
	libvpr "github.com/nabbar/tube/viper"

	"github.com/go-playground/validator/v10"
)

// Error codes for this package, allocated from errors.MinPkgConfig (500).
const (
	ErrorInvalidThreadPoolKey liberr.CodeError = liberr.MinPkgConfig + iota
	ErrorInvalidRecycleCount
	ErrorValidation
	ErrorLoad
)

func init() {
	liberr.RegisterIdFctMessage(ErrorInvalidThreadPoolKey, func(liberr.CodeError) string {
		return "unknown thread_pool key %q"
	})
	liberr.RegisterIdFctMessage(ErrorInvalidRecycleCount, func(liberr.CodeError) string {
		return "thread_pool.recycle = %d, must be 1"
	})
	liberr.RegisterIdFctMessage(ErrorValidation, func(liberr.CodeError) string {
		return "config validation failed"
	})
	liberr.RegisterIdFctMessage(ErrorLoad, func(liberr.CodeError) string {
		return "config load failed"
	})
}

// ThreadPool is the per-stage worker-count section of the YAML schema.
type ThreadPool struct {
	PollIn    int `mapstructure:"poll_in"  json:"poll_in"  yaml:"poll_in"  validate:"min=1"`
	Parser    int `mapstructure:"parser"   json:"parser"   yaml:"parser"   validate:"min=1"`
	Handler   int `mapstructure:"handler"  json:"handler"  yaml:"handler"  validate:"min=1"`
	WriteBack int `mapstructure:"write_back" json:"write_back" yaml:"write_back" validate:"min=1"`
	BlockOut  int `mapstructure:"block_out"  json:"block_out"  yaml:"block_out"  validate:"min=1"`
	Recycle   int `mapstructure:"recycle"  json:"recycle"  yaml:"recycle"  validate:"min=1"`
	Fcgi      int `mapstructure:"fcgi"     json:"fcgi"     yaml:"fcgi"     validate:"min=1"`
}

// validKeys lists the only thread_pool keys the pipeline understands;
// Validate rejects anything else the YAML document happens to set.
var validKeys = map[string]struct{}{
	"poll_in": {}, "parser": {}, "handler": {},
	"write_back": {}, "block_out": {}, "recycle": {}, "fcgi": {},
}

// Config is the root of cmd/tubed's YAML document (spec.md §6, SPEC_FULL
// §4.16).
type Config struct {
	Address         string          `mapstructure:"address" json:"address" yaml:"address" validate:"required"`
	Port            int             `mapstructure:"port" json:"port" yaml:"port" validate:"min=1,max=65535"`
	ListenQueueSize int             `mapstructure:"listen_queue_size" json:"listen_queue_size" yaml:"listen_queue_size" validate:"min=1"`
	IdleTimeout     libdur.Duration `mapstructure:"idle_timeout" json:"idle_timeout" yaml:"idle_timeout"`
	EnableCork      bool            `mapstructure:"enable_cork" json:"enable_cork" yaml:"enable_cork"`
	RecycleThreshold int            `mapstructure:"recycle_threshold" json:"recycle_threshold" yaml:"recycle_threshold" validate:"min=1"`
	MaxMemory       libsize.Size    `mapstructure:"max_memory" json:"max_memory" yaml:"max_memory"`
	ThreadPool      ThreadPool      `mapstructure:"thread_pool" json:"thread_pool" yaml:"thread_pool"`

	// rawThreadPool is only populated by Load, to let Validate reject
	// unknown thread_pool keys that mapstructure would otherwise ignore.
	rawThreadPool map[string]interface{}
}

// Load reads and decodes the YAML document at path using the viper
// wrapper, then validates the result.
func Load(ctx context.Context, path string, log liblog.FuncLog) (*Config, liberr.Error) {
	v := libvpr.New(ctx, log)
	if err := v.SetConfigFile(path); err != nil {
		return nil, ErrorLoad.Error(err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, ErrorLoad.Error(err)
	}
	cfg.rawThreadPool = v.Viper().GetStringMap("thread_pool")

	if e := cfg.Validate(); e != nil {
		return nil, e
	}
	return cfg, nil
}

// Validate checks struct tags via go-playground/validator, then enforces
// the two rules validator tags can't express: every thread_pool key must
// be one this pipeline understands, and recycle must be exactly 1 (the
// recycle stage is single-threaded by design, spec.md §6).
func (c *Config) Validate() liberr.Error {
	if err := validator.New().Struct(c); err != nil {
		return ErrorValidation.Error(err)
	}

	for k := range c.rawThreadPool {
		if _, ok := validKeys[k]; !ok {
			return ErrorInvalidThreadPoolKey.Errorf(k)
		}
	}

	if c.ThreadPool.Recycle != 1 {
		return ErrorInvalidRecycleCount.Errorf(c.ThreadPool.Recycle)
	}

	return nil
}
