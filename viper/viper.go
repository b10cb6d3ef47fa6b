/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
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

// Package viper wraps spf13/viper with the logging and mapstructure-hook
// conventions cmd/tubed's config loader needs (§4.16).
package viper

import (
	"context"
	"fmt"
	"reflect"

	libdur "github.com/nabbar/tube/duration"
	liblog "github.com/nabbar/tube/logger"
	libsize "github.com/nabbar/tube/size"

	"github.com/go-viper/mapstructure/v2"
	spfvpr "github.com/spf13/viper"
)

// durationDecodeHook lets viper populate duration.Duration fields (used for
// idle_timeout and similar §4.16 config keys) directly from YAML strings
// like "30s", mirroring size.DecodeHook's pattern for size.Size.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(libdur.Duration(0)) {
			return data, nil
		}
		switch from.Kind() {
		case reflect.String:
			return libdur.Parse(data.(string))
		default:
			return data, nil
		}
	}
}

// Viper is the subset of spf13/viper's functionality cmd/tubed's config
// loader exercises, plus the decode-hook wiring config.Load needs.
type Viper interface {
	Viper() *spfvpr.Viper
	SetConfigFile(path string) error
	Unmarshal(out interface{}) error
	UnmarshalKey(key string, out interface{}) error
}

type vpr struct {
	ctx context.Context
	log liblog.FuncLog
	v   *spfvpr.Viper
}

// New returns a Viper bound to ctx, logging decode failures through log
// (nil is accepted, in which case failures are silent).
func New(ctx context.Context, log liblog.FuncLog) Viper {
	v := spfvpr.New()
	v.AutomaticEnv()
	return &vpr{ctx: ctx, log: log, v: v}
}

func (o *vpr) Viper() *spfvpr.Viper { return o.v }

// SetConfigFile points Viper at path and reads it immediately.
func (o *vpr) SetConfigFile(path string) error {
	if path == "" {
		return fmt.Errorf("viper: empty config path")
	}
	o.v.SetConfigFile(path)
	if err := o.v.ReadInConfig(); err != nil {
		o.logError("read config %s: %v", path, err)
		return err
	}
	return nil
}

func (o *vpr) decodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		libsize.DecodeHook(),
		durationDecodeHook(),
	)
}

// Unmarshal decodes the whole config tree into out, applying the size.Size
// and duration decode hooks the pipeline's config types need.
func (o *vpr) Unmarshal(out interface{}) error {
	return o.v.Unmarshal(out, func(c *spfvpr.DecoderConfig) {
		c.DecodeHook = o.decodeHooks()
	})
}

// UnmarshalKey decodes the subtree at key into out.
func (o *vpr) UnmarshalKey(key string, out interface{}) error {
	return o.v.UnmarshalKey(key, out, func(c *spfvpr.DecoderConfig) {
		c.DecodeHook = o.decodeHooks()
	})
}

func (o *vpr) logError(format string, args ...interface{}) {
	if o.log == nil {
		return
	}
	if l := o.log(); l != nil {
		l.Error(fmt.Sprintf("[viper] %s", format), nil, args...)
	}
}
