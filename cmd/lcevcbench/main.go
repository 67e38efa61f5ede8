/*
NAME
  main.go

DESCRIPTION
  lcevcbench builds a synthetic CPU command buffer, splits it across a
  requested number of worker entry points, and reports how evenly the
  split balanced command counts across them. With -plot it additionally
  renders a histogram of per-entry-point command counts.

AUTHOR
  AusOcean

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// lcevcbench exercises cmdbuffer.CPU.Split at a chosen scale and reports
// (and optionally plots) the resulting entry-point balance.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/ausocean/lcevc/cmdbuffer"
)

const (
	ddLayers = 4
	// jumpSpread bounds the synthetic per-command jump distance; kept
	// well clear of the big-jump sentinel so the benchmark exercises
	// the common one-byte encoding path.
	jumpSpread = 40
)

func buildBuffer(commands int, entryPoints int, seed int64) (*cmdbuffer.CPU, error) {
	b, err := cmdbuffer.NewCPU(entryPoints)
	if err != nil {
		return nil, err
	}
	b.Reset(ddLayers)

	rng := rand.New(rand.NewSource(seed))
	values := make([]int16, ddLayers)
	for i := 0; i < commands; i++ {
		for j := range values {
			values[j] = int16(rng.Intn(512) - 256)
		}
		if err := b.Append(cmdbuffer.CmdAdd, values, uint32(rng.Intn(jumpSpread))); err != nil {
			return nil, err
		}
	}
	b.Split()
	return b, nil
}

func plotEntryPointCounts(path string, counts []uint32) error {
	values := make(plotter.Values, len(counts))
	for i, c := range counts {
		values[i] = float64(c)
	}

	p := plot.New()
	p.Title.Text = "command buffer entry-point balance"
	p.X.Label.Text = "entry point"
	p.Y.Label.Text = "command count"

	bars, err := plotter.NewBarChart(values, vg.Points(20))
	if err != nil {
		return err
	}
	p.Add(bars)

	return p.Save(6*vg.Inch, 4*vg.Inch, path)
}

func main() {
	commands := flag.Int("commands", 100000, "number of synthetic commands to append")
	entryPoints := flag.Int("entrypoints", 8, "number of Split entry points")
	seed := flag.Int64("seed", 1, "PRNG seed for synthetic jump/residual generation")
	plotPath := flag.String("plot", "", "if set, write an entry-point balance histogram (PNG) to this path")
	flag.Parse()

	b, err := buildBuffer(*commands, *entryPoints, *seed)
	if err != nil {
		fmt.Fprintln(os.Stderr, "lcevcbench:", err)
		os.Exit(1)
	}

	counts := make([]uint32, len(b.EntryPoints))
	var min, max uint32
	for i, ep := range b.EntryPoints {
		counts[i] = ep.Count
		if i == 0 || ep.Count < min {
			min = ep.Count
		}
		if ep.Count > max {
			max = ep.Count
		}
	}
	fmt.Printf("entry points: %d, total commands: %d, min %d, max %d, spread %d\n",
		len(counts), b.Count(), min, max, max-min)

	if *plotPath != "" {
		if err := plotEntryPointCounts(*plotPath, counts); err != nil {
			fmt.Fprintln(os.Stderr, "lcevcbench: plot:", err)
			os.Exit(1)
		}
	}
}
