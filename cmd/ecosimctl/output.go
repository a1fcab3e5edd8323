package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"ecosim/internal/model"
	"ecosim/internal/stats"
	"ecosim/pkg/ecosim"
)

// progressPrinter rewrites a single status line on a terminal and prints one
// line per tick otherwise.
type progressPrinter struct {
	w       io.Writer
	ticks   int
	inPlace bool
	wrote   bool
}

func newProgressPrinter(w io.Writer, ticks int) *progressPrinter {
	return &progressPrinter{w: w, ticks: ticks, inPlace: isTerminal(w)}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func (p *progressPrinter) Print(s model.PopulationSample) {
	line := fmt.Sprintf("tick=%d/%d prey=%s predators=%s poachers=%s",
		s.Tick, p.ticks, humanize.Comma(int64(s.Prey)), humanize.Comma(int64(s.Predators)), humanize.Comma(int64(s.Poachers)))
	if p.inPlace {
		fmt.Fprintf(p.w, "\r\033[K%s", line)
	} else {
		fmt.Fprintln(p.w, line)
	}
	p.wrote = true
}

func (p *progressPrinter) Done() {
	if p.inPlace && p.wrote {
		fmt.Fprintln(p.w)
	}
}

func printRunSummary(w io.Writer, s ecosim.RunSummary) {
	fmt.Fprintf(w, "run_id=%s ticks=%s stop=%s artifacts=%s\n", s.RunID, humanize.Comma(int64(s.TicksRun)), s.StopReason, s.ArtifactsDir)
	fmt.Fprintf(w, "births=%s deaths=%s saturations=%s\n", humanize.Comma(int64(s.Births)), humanize.Comma(int64(s.Deaths)), humanize.Comma(int64(s.Saturations)))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "species\tinitial\tfinal\tpeak\tpeak_tick\textinct_at")
	for _, sp := range s.Species {
		extinct := "-"
		if sp.ExtinctAt != nil {
			extinct = fmt.Sprintf("%d", *sp.ExtinctAt)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n", sp.Species,
			humanize.Comma(int64(sp.Initial)), humanize.Comma(int64(sp.Final)), humanize.Comma(int64(sp.Peak)), sp.PeakTick, extinct)
	}
	_ = tw.Flush()
}

func printSweepSummary(w io.Writer, r ecosim.SweepResult) {
	fmt.Fprintf(w, "sweep_id=%s runs=%d summary=%s\n", r.Summary.ID, len(r.Summary.Runs), r.Path)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "species\tmean\tstd\tmin\tmax\textinct")
	for _, agg := range r.Summary.Species {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d/%d\n", agg.Species,
			humanize.FtoaWithDigits(agg.MeanFinal, 2), humanize.FtoaWithDigits(agg.StdFinal, 2), agg.MinFinal, agg.MaxFinal, agg.Extinct, len(r.Summary.Runs))
	}
	_ = tw.Flush()
}

func printRuns(w io.Writer, items []ecosim.RunItem, now time.Time) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "run_id\tcreated\tgrid\tseed\tticks\tstop\tprey\tpredators\tpoachers")
	for _, item := range items {
		created := item.CreatedAtUTC
		if t, err := time.Parse(time.RFC3339Nano, item.CreatedAtUTC); err == nil {
			created = humanize.RelTime(t, now, "ago", "from now")
		}
		fmt.Fprintf(tw, "%s\t%s\t%dx%d\t%d\t%d/%d\t%s\t%d\t%d\t%d\n", item.RunID, created, item.Height, item.Width, item.Seed,
			item.TicksRun, item.Ticks, item.StopReason, item.Final.Prey, item.Final.Predators, item.Final.Poachers)
	}
	_ = tw.Flush()
}

type runSummaryOutput struct {
	RunID        string                   `json:"run_id"`
	ArtifactsDir string                   `json:"artifacts_dir"`
	TicksRun     int                      `json:"ticks_run"`
	StopReason   string                   `json:"stop_reason"`
	Saturations  int                      `json:"saturations"`
	Births       int                      `json:"births"`
	Deaths       int                      `json:"deaths"`
	Final        model.PopulationSample   `json:"final"`
	Species      []stats.SpeciesSummary   `json:"species"`
	History      []model.PopulationSample `json:"history"`
}

func runSummaryJSON(s ecosim.RunSummary) runSummaryOutput {
	return runSummaryOutput{
		RunID:        s.RunID,
		ArtifactsDir: s.ArtifactsDir,
		TicksRun:     s.TicksRun,
		StopReason:   s.StopReason,
		Saturations:  s.Saturations,
		Births:       s.Births,
		Deaths:       s.Deaths,
		Final:        s.Final,
		Species:      s.Species,
		History:      s.History,
	}
}

type runItemOutput struct {
	RunID        string                 `json:"run_id"`
	CreatedAtUTC string                 `json:"created_at_utc"`
	Height       int                    `json:"height"`
	Width        int                    `json:"width"`
	Seed         int64                  `json:"seed"`
	Ticks        int                    `json:"ticks"`
	TicksRun     int                    `json:"ticks_run"`
	StopReason   string                 `json:"stop_reason"`
	Final        model.PopulationSample `json:"final"`
}

func runItemsJSON(items []ecosim.RunItem) []runItemOutput {
	out := make([]runItemOutput, 0, len(items))
	for _, item := range items {
		out = append(out, runItemOutput(item))
	}
	return out
}
