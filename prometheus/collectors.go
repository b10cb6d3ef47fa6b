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

// Package prometheus exposes the pipeline's stage and controller metrics
// (§4.17) as prometheus.Collector implementations, grounded in the
// teacher's prometheus/metrics test-file contracts: every scheduler and
// adaptive controller reports itself on scrape rather than pushing on
// every task, keeping the hot path free of metrics-registry locking.
package prometheus

import (
	libctl "github.com/nabbar/tube/controller"
	libstg "github.com/nabbar/tube/stage"

	"github.com/prometheus/client_golang/prometheus"
)

// StageCollector reports one stage's queue depth, in-flight load and
// cumulative processed-task count under the tube_stage_<name>_* names.
type StageCollector struct {
	stage *libstg.Stage

	depth     *prometheus.Desc
	load      *prometheus.Desc
	processed *prometheus.Desc
	workers   *prometheus.Desc
}

// NewStageCollector returns a Collector for stage. Register it with a
// prometheus.Registry (monitor.Monitor does this for every stage given to
// monitor.New).
func NewStageCollector(stage *libstg.Stage) *StageCollector {
	name := stage.Name()
	return &StageCollector{
		stage: stage,
		depth: prometheus.NewDesc(
			"tube_stage_"+name+"_depth", "Scheduler queue depth", nil, nil,
		),
		load: prometheus.NewDesc(
			"tube_stage_"+name+"_load", "In-flight task count", nil, nil,
		),
		processed: prometheus.NewDesc(
			"tube_stage_"+name+"_tasks_total", "Cumulative processed task count", nil, nil,
		),
		workers: prometheus.NewDesc(
			"tube_stage_"+name+"_workers", "Current worker count", nil, nil,
		),
	}
}

func (c *StageCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.depth
	ch <- c.load
	ch <- c.processed
	ch <- c.workers
}

func (c *StageCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.depth, prometheus.GaugeValue, float64(c.stage.Depth()))
	ch <- prometheus.MustNewConstMetric(c.load, prometheus.GaugeValue, float64(c.stage.Load()))
	ch <- prometheus.MustNewConstMetric(c.processed, prometheus.CounterValue, float64(c.stage.Processed()))
	ch <- prometheus.MustNewConstMetric(c.workers, prometheus.GaugeValue, float64(c.stage.WorkerCount()))
}

// ControllerCollector reports an adaptive Controller's worker count and
// load-history mean under tube_controller_<stage>_*.
type ControllerCollector struct {
	ctrl *libctl.Controller

	workers *prometheus.Desc
	loadAvg *prometheus.Desc
}

// NewControllerCollector returns a Collector for ctrl, which watches the
// stage named stageName.
func NewControllerCollector(stageName string, ctrl *libctl.Controller) *ControllerCollector {
	return &ControllerCollector{
		ctrl: ctrl,
		workers: prometheus.NewDesc(
			"tube_controller_"+stageName+"_workers", "Controller-observed worker count", nil, nil,
		),
		loadAvg: prometheus.NewDesc(
			"tube_controller_"+stageName+"_load_mean", "Mean of the retained load-history samples", nil, nil,
		),
	}
}

func (c *ControllerCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.workers
	ch <- c.loadAvg
}

func (c *ControllerCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.workers, prometheus.GaugeValue, float64(c.ctrl.WorkerCount()))
	ch <- prometheus.MustNewConstMetric(c.loadAvg, prometheus.GaugeValue, c.ctrl.LoadHistoryMean())
}
