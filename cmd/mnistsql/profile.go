package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
)

// startProfiling starts a CPU profile when cpuFile is set and registers
// a heap profile write when memFile is set. Both finish in app.close.
func (a *app) startProfiling(cpuFile, memFile string) error {
	if cpuFile != "" {
		f, err := os.Create(cpuFile) //nolint:gosec // path from the command line
		if err != nil {
			return fmt.Errorf("failed to create CPU profile: %w", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			f.Close()
			return fmt.Errorf("failed to start CPU profile: %w", err)
		}
		a.shutdown = append([]func(context.Context) error{func(context.Context) error {
			pprof.StopCPUProfile()
			return f.Close()
		}}, a.shutdown...)
	}

	if memFile != "" {
		a.shutdown = append([]func(context.Context) error{func(context.Context) error {
			f, err := os.Create(memFile) //nolint:gosec // path from the command line
			if err != nil {
				return fmt.Errorf("failed to create memory profile: %w", err)
			}
			defer f.Close()
			runtime.GC()
			return pprof.WriteHeapProfile(f)
		}}, a.shutdown...)
	}
	return nil
}
