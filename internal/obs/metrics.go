package obs

import (
	"sort"
	"strings"
	"sync"
)

// Label is a key/value pair attached to measurements.
type Label struct {
	Key   string
	Value string
}

// Meter is a very small interface for emitting counters/histograms.
// Implementations may no-op or bridge to a metrics system.
type Meter interface {
	Counter(name string, value float64, labels ...Label)
	Histogram(name string, value float64, labels ...Label)
}

// NopMeter is a Meter that discards all measurements.
type NopMeter struct{}

func (NopMeter) Counter(name string, value float64, labels ...Label)   {}
func (NopMeter) Histogram(name string, value float64, labels ...Label) {}

// MemMeter accumulates measurements in memory. Counters are summed;
// histograms keep a count and a sum. It is safe for concurrent use.
type MemMeter struct {
	mu       sync.Mutex
	counters map[string]float64
	hists    map[string]HistogramStat
}

type HistogramStat struct {
	Count int
	Sum   float64
}

func NewMemMeter() *MemMeter {
	return &MemMeter{counters: make(map[string]float64), hists: make(map[string]HistogramStat)}
}

func (m *MemMeter) Counter(name string, value float64, labels ...Label) {
	k := seriesKey(name, labels)
	m.mu.Lock()
	m.counters[k] += value
	m.mu.Unlock()
}

func (m *MemMeter) Histogram(name string, value float64, labels ...Label) {
	k := seriesKey(name, labels)
	m.mu.Lock()
	st := m.hists[k]
	st.Count++
	st.Sum += value
	m.hists[k] = st
	m.mu.Unlock()
}

// CounterValue returns the current value of a counter series.
func (m *MemMeter) CounterValue(name string, labels ...Label) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[seriesKey(name, labels)]
}

func (m *MemMeter) HistogramValue(name string, labels ...Label) HistogramStat {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hists[seriesKey(name, labels)]
}

// Counters returns a copy of every counter series keyed as
// name{k="v",...} with labels sorted by key.
func (m *MemMeter) Counters() map[string]float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]float64, len(m.counters))
	for k, v := range m.counters {
		out[k] = v
	}
	return out
}

func seriesKey(name string, labels []Label) string {
	if len(labels) == 0 {
		return name
	}
	ls := append([]Label(nil), labels...)
	sort.Slice(ls, func(i, j int) bool { return ls[i].Key < ls[j].Key })
	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('{')
	for i, l := range ls {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(l.Key)
		b.WriteString(`="`)
		b.WriteString(l.Value)
		b.WriteByte('"')
	}
	b.WriteByte('}')
	return b.String()
}
