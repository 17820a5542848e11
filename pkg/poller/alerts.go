package poller

import (
	"sync"
)

// Severity orders alert levels for escalation comparisons.
type Severity int

const (
	SeverityNormal Severity = iota
	SeverityWarning
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityCritical:
		return "critical"
	default:
		return "normal"
	}
}

// Threshold holds one metric's alert levels. A zero Critical means
// the metric has no critical level.
type Threshold struct {
	Warning  float64 `yaml:"warning" json:"warning"`
	Critical float64 `yaml:"critical" json:"critical"`
	Unit     string  `yaml:"unit" json:"unit"`
}

// Classify maps a sample value to a severity.
func (t Threshold) Classify(value float64) Severity {
	if t.Critical > 0 && value >= t.Critical {
		return SeverityCritical
	}
	if t.Warning > 0 && value >= t.Warning {
		return SeverityWarning
	}
	return SeverityNormal
}

// deviceAlerts is one device's alert state. Each device has its own
// lock so a slow device's transition never blocks another device's.
type deviceAlerts struct {
	mu         sync.Mutex
	severities map[string]Severity
	offline    bool
}

// AlertTracker keeps per-device, per-metric severity state and
// reports only the transitions. This is what makes alerting
// edge-triggered: a metric sitting above its threshold produces one
// event when it crosses, not one per sample.
type AlertTracker struct {
	mu      sync.Mutex
	devices map[string]*deviceAlerts
}

// NewAlertTracker returns an empty tracker.
func NewAlertTracker() *AlertTracker {
	return &AlertTracker{devices: make(map[string]*deviceAlerts)}
}

func (t *AlertTracker) deviceFor(deviceID string) *deviceAlerts {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, ok := t.devices[deviceID]
	if !ok {
		d = &deviceAlerts{severities: make(map[string]Severity)}
		t.devices[deviceID] = d
	}
	return d
}

// Observe records a metric's current severity and reports whether it
// changed, along with the previous severity.
func (t *AlertTracker) Observe(deviceID, metric string, severity Severity) (changed bool, previous Severity) {
	d := t.deviceFor(deviceID)
	d.mu.Lock()
	defer d.mu.Unlock()
	previous = d.severities[metric]
	if severity == previous {
		return false, previous
	}
	if severity == SeverityNormal {
		delete(d.severities, metric)
	} else {
		d.severities[metric] = severity
	}
	return true, previous
}

// SetOffline records connectivity state and reports whether it
// flipped.
func (t *AlertTracker) SetOffline(deviceID string, offline bool) (changed bool) {
	d := t.deviceFor(deviceID)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.offline == offline {
		return false
	}
	d.offline = offline
	return true
}

// Severity returns the tracked severity for one device metric.
func (t *AlertTracker) Severity(deviceID, metric string) Severity {
	d := t.deviceFor(deviceID)
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.severities[metric]
}
