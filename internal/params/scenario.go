package params

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"inverter-drive/internal/drive"
)

// Event is one scripted change at a simulation time.
type Event struct {
	At              float64           `yaml:"at"` // s, simulation time
	Set             map[string]string `yaml:"set,omitempty"`
	Inject          string            `yaml:"inject,omitempty"`
	Clear           bool              `yaml:"clear,omitempty"`
	ResetController bool              `yaml:"reset_controller,omitempty"`

	fault drive.FaultKind
}

// Fault is the parsed Inject value.
func (e Event) Fault() drive.FaultKind { return e.fault }

// Scenario is a time-ordered list of events played once.
type Scenario struct {
	Name   string  `yaml:"name"`
	Events []Event `yaml:"events"`

	next int
}

func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseScenario(data)
}

// ParseScenario validates every field name and fault up front, so a bad
// script fails before the run starts.
func ParseScenario(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	for i := range sc.Events {
		e := &sc.Events[i]
		if e.At < 0 {
			return nil, fmt.Errorf("%w: event %d at negative time", drive.ErrInvalidConfiguration, i)
		}
		for name, raw := range e.Set {
			f, ok := LookupName(name)
			if !ok {
				return nil, fmt.Errorf("event %d: %w: %q", i, ErrUnknownParameter, name)
			}
			if _, err := f.Parse(raw); err != nil {
				return nil, fmt.Errorf("event %d: %w", i, err)
			}
		}
		if e.Inject != "" {
			k, err := drive.ParseFaultKind(e.Inject)
			if err != nil {
				return nil, fmt.Errorf("event %d: %w", i, err)
			}
			e.fault = k
		}
	}
	sort.SliceStable(sc.Events, func(i, j int) bool { return sc.Events[i].At < sc.Events[j].At })
	return &sc, nil
}

// Due returns the events whose time has come and not yet been played.
func (s *Scenario) Due(t float64) []Event {
	if s == nil {
		return nil
	}
	start := s.next
	for s.next < len(s.Events) && s.Events[s.next].At <= t {
		s.next++
	}
	return s.Events[start:s.next]
}

// Done reports whether every event has been played.
func (s *Scenario) Done() bool { return s == nil || s.next >= len(s.Events) }

// Rewind makes every event due again.
func (s *Scenario) Rewind() { s.next = 0 }
