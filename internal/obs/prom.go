package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// PromMeter bridges Meter to a Prometheus registerer. Metric vectors
// are created on first use; a given metric name must always be used
// with the same label keys.
type PromMeter struct {
	Reg prometheus.Registerer

	mu       sync.Mutex
	counters map[string]*prometheus.CounterVec
	hists    map[string]*prometheus.HistogramVec
}

// NewPromMeter returns a PromMeter registering into reg, or the
// default registerer when reg is nil.
func NewPromMeter(reg prometheus.Registerer) *PromMeter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &PromMeter{
		Reg:      reg,
		counters: make(map[string]*prometheus.CounterVec),
		hists:    make(map[string]*prometheus.HistogramVec),
	}
}

func splitLabels(labels []Label) (keys, values []string) {
	keys = make([]string, len(labels))
	values = make([]string, len(labels))
	for i, l := range labels {
		keys[i] = l.Key
		values[i] = l.Value
	}
	return keys, values
}

func (m *PromMeter) Counter(name string, value float64, labels ...Label) {
	keys, values := splitLabels(labels)
	m.mu.Lock()
	cv, ok := m.counters[name]
	if !ok {
		cv = prometheus.NewCounterVec(prometheus.CounterOpts{Name: name}, keys)
		if err := m.Reg.Register(cv); err != nil {
			if are, dup := err.(prometheus.AlreadyRegisteredError); dup {
				cv = are.ExistingCollector.(*prometheus.CounterVec)
			} else {
				m.mu.Unlock()
				return
			}
		}
		m.counters[name] = cv
	}
	m.mu.Unlock()
	cv.WithLabelValues(values...).Add(value)
}

func (m *PromMeter) Histogram(name string, value float64, labels ...Label) {
	keys, values := splitLabels(labels)
	m.mu.Lock()
	hv, ok := m.hists[name]
	if !ok {
		hv = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    name,
			Buckets: prometheus.DefBuckets,
		}, keys)
		if err := m.Reg.Register(hv); err != nil {
			if are, dup := err.(prometheus.AlreadyRegisteredError); dup {
				hv = are.ExistingCollector.(*prometheus.HistogramVec)
			} else {
				m.mu.Unlock()
				return
			}
		}
		m.hists[name] = hv
	}
	m.mu.Unlock()
	hv.WithLabelValues(values...).Observe(value)
}
