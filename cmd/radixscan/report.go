package main

import (
	"cmp"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/tamirms/radixscan/device"
)

// kernelStat aggregates the dispatches of one kernel.
type kernelStat struct {
	Name       string        `json:"name"`
	Dispatches int           `json:"dispatches"`
	Workers    int64         `json:"workers"`
	Total      time.Duration `json:"total_ns"`
	Failed     int           `json:"failed"`
}

// kernelStats collects DispatchEvents from the device hook.
type kernelStats struct {
	mu     sync.Mutex
	byName map[string]*kernelStat
}

func newKernelStats() *kernelStats {
	return &kernelStats{byName: make(map[string]*kernelStat)}
}

func (k *kernelStats) record(ev device.DispatchEvent) {
	k.mu.Lock()
	defer k.mu.Unlock()
	st, ok := k.byName[ev.Name]
	if !ok {
		st = &kernelStat{Name: ev.Name}
		k.byName[ev.Name] = st
	}
	st.Dispatches++
	st.Workers += int64(ev.Workers)
	st.Total += ev.Duration
	if ev.Err != nil {
		st.Failed++
	}
}

func (k *kernelStats) reset() {
	k.mu.Lock()
	clear(k.byName)
	k.mu.Unlock()
}

// snapshot returns the kernels ordered by total time, longest first.
func (k *kernelStats) snapshot() []kernelStat {
	k.mu.Lock()
	out := make([]kernelStat, 0, len(k.byName))
	for _, st := range k.byName {
		out = append(out, *st)
	}
	k.mu.Unlock()
	slices.SortFunc(out, func(a, b kernelStat) int {
		if c := cmp.Compare(b.Total, a.Total); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

type param struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// params builds an ordered parameter list from name/value pairs.
func params(kv ...any) []param {
	out := make([]param, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, param{Name: fmt.Sprint(kv[i]), Value: fmt.Sprint(kv[i+1])})
	}
	return out
}

// report is the outcome of one scan or sort run.
type report struct {
	Command        string        `json:"command"`
	DeviceID       string        `json:"device_id"`
	Memory         string        `json:"memory"`
	Elements       int           `json:"elements"`
	Type           string        `json:"type"`
	Params         []param       `json:"params"`
	Elapsed        time.Duration `json:"elapsed_ns"`
	ElementsPerSec float64       `json:"elements_per_sec"`
	Checksum       string        `json:"checksum"`
	Verified       *bool         `json:"verified,omitempty"`
	PeakBytes      int64         `json:"peak_bytes"`
	Kernels        []kernelStat  `json:"kernels"`
}

func (r *report) write(w io.Writer, format string) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle("%s of %d %s", r.Command, r.Elements, r.Type)
	t.AppendHeader(table.Row{"Field", "Value"})
	t.AppendRow(table.Row{"device", r.DeviceID})
	t.AppendRow(table.Row{"memory", r.Memory})
	for _, p := range r.Params {
		t.AppendRow(table.Row{p.Name, p.Value})
	}
	t.AppendSeparator()
	t.AppendRow(table.Row{"elapsed", r.Elapsed})
	t.AppendRow(table.Row{"elements/s", fmt.Sprintf("%.3g", r.ElementsPerSec)})
	t.AppendRow(table.Row{"peak bytes", r.PeakBytes})
	t.AppendRow(table.Row{"checksum", r.Checksum})
	if r.Verified != nil {
		t.AppendRow(table.Row{"verified", *r.Verified})
	}
	t.Render()

	if len(r.Kernels) == 0 {
		return nil
	}
	k := table.NewWriter()
	k.SetOutputMirror(w)
	k.SetStyle(table.StyleLight)
	k.AppendHeader(table.Row{"Kernel", "Dispatches", "Workers", "Total", "Mean", "Failed"})
	for _, st := range r.Kernels {
		k.AppendRow(table.Row{
			st.Name,
			st.Dispatches,
			st.Workers,
			st.Total,
			st.Total / time.Duration(max(st.Dispatches, 1)),
			st.Failed,
		})
	}
	k.Render()
	return nil
}
