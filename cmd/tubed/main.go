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

// Command tubed is the pipeline's process entry point: load a YAML
// config (§4.16), wire the staged pipeline, serve connections until a
// signal arrives.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string
	var monitorAddr string
	var monitorInterval string
	var showVersion bool

	cmd := &cobra.Command{
		Use:   "tubed",
		Short: "Tube staged connection-processing server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				fmt.Println(appVersion.GetHeader())
				return nil
			}
			return run(configPath, monitorAddr, monitorInterval)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configPath, "config", "tubed.yaml", "path to the pipeline's YAML config")
	flags.StringVar(&monitorAddr, "monitor-addr", "127.0.0.1:9090", "address the /metrics and /healthz router binds to")
	flags.StringVar(&monitorInterval, "monitor-interval", "5s", "interval between monitor health polls")
	flags.BoolVar(&showVersion, "version", false, "print version information and exit")

	return cmd
}
