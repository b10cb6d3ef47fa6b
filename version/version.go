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

// Package version holds the build-time identity reported by cmd/tubed's
// --version flag and by monitor's /healthz payload: license, package path,
// build hash, release tag and build date.
package version

import (
	"fmt"
	"reflect"
	"runtime"
	"time"
)

// License identifies the license a binary is distributed under.
type License uint8

const (
	License_MIT License = iota
	License_Apache_v2
	License_GNU_GPL_v3
	License_Unlicense
)

func (l License) name() string {
	switch l {
	case License_Apache_v2:
		return "Apache License 2.0"
	case License_GNU_GPL_v3:
		return "GNU General Public License v3.0"
	case License_Unlicense:
		return "Free and unencumbered software"
	default:
		return "MIT License"
	}
}

// Version is the immutable build identity of a running binary.
type Version interface {
	GetPackage() string
	GetPrefix() string
	GetDescription() string
	GetAuthor() string
	GetBuild() string
	GetRelease() string
	GetDate() string
	GetTime() time.Time
	GetLicenseName() string
	GetRootPackagePath() string
	CheckGo(constraint string) bool
	GetHeader() string
	String() string
}

type version struct {
	license     License
	pkg         string
	description string
	dateStr     string
	date        time.Time
	build       string
	release     string
	author      string
	prefix      string
	rootPkgPath string
}

// NewVersion builds a Version. rootStruct is any zero value from the
// binary's root package, used to recover that package's import path via
// reflection; intArg is reserved for future minimum-Go-version checks and
// is currently unused.
func NewVersion(license License, pkg, description, dateStr, build, release, author, prefix string, rootStruct interface{}, intArg int) Version {
	d, err := time.Parse(time.RFC3339, dateStr)
	if err != nil {
		d = time.Now()
	}

	root := ""
	if rootStruct != nil {
		root = reflect.TypeOf(rootStruct).PkgPath()
	}

	return &version{
		license:     license,
		pkg:         pkg,
		description: description,
		dateStr:     dateStr,
		date:        d,
		build:       build,
		release:     release,
		author:      author,
		prefix:      prefix,
		rootPkgPath: root,
	}
}

func (v *version) GetPackage() string        { return v.pkg }
func (v *version) GetPrefix() string         { return v.prefix }
func (v *version) GetDescription() string    { return v.description }
func (v *version) GetAuthor() string         { return v.author }
func (v *version) GetBuild() string          { return v.build }
func (v *version) GetRelease() string        { return v.release }
func (v *version) GetDate() string           { return v.dateStr }
func (v *version) GetTime() time.Time        { return v.date }
func (v *version) GetLicenseName() string    { return v.license.name() }
func (v *version) GetRootPackagePath() string { return v.rootPkgPath }

// CheckGo reports whether the runtime's compiled Go version starts with
// constraint (e.g. "go1.22"); empty constraint always passes.
func (v *version) CheckGo(constraint string) bool {
	if constraint == "" {
		return true
	}
	return len(runtime.Version()) >= len(constraint) && runtime.Version()[:len(constraint)] == constraint
}

// GetHeader returns the one-line banner cmd/tubed prints for --version.
func (v *version) GetHeader() string {
	return fmt.Sprintf("%s %s (%s) built %s by %s [%s]", v.prefix, v.pkg, v.release, v.build, v.author, v.license.name())
}

func (v *version) String() string {
	return v.GetHeader()
}
