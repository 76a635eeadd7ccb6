package params

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"inverter-drive/internal/drive"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(drive.DefaultParameters(), nil)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	return s
}

func TestFieldTableIsComplete(t *testing.T) {
	seen := map[uint8]bool{}
	for _, f := range Fields() {
		if seen[f.ID] {
			t.Fatalf("duplicate id %d", f.ID)
		}
		seen[f.ID] = true
		if _, ok := LookupName(f.Name); !ok {
			t.Errorf("field %s not found by name", f.Name)
		}
	}
	if len(seen) != 33 {
		t.Errorf("expected 33 fields, got %d", len(seen))
	}
}

func TestStoreSetParsesText(t *testing.T) {
	s := newTestStore(t)
	if err := s.ApplyText(map[string]string{
		"speed_ref":  "150",
		"mode":       "FOC",
		"auto_reset": "true",
		"load_type":  "Fan/Pump",
	}); err != nil {
		t.Fatalf("ApplyText failed: %v", err)
	}
	p := s.Snapshot()
	if p.SpeedRef != 150 || p.Mode != drive.ModeFOC || !p.AutoReset || p.LoadType != drive.LoadFanPump {
		t.Errorf("unexpected parameters %+v", p)
	}
	if s.Version() != 1 {
		t.Errorf("expected version 1, got %d", s.Version())
	}
}

func TestStoreKeepsLastKnownGood(t *testing.T) {
	s := newTestStore(t)
	before := s.Snapshot()

	cases := []map[string]string{
		{"speed_ref": "fast"},
		{"direction": "0"},
		{"inductance": "0"},
		{"mode": "turbo"},
		{"warp_drive": "1"},
		// one bad key spoils the whole batch
		{"speed_ref": "120", "dc_link_voltage": "NaN"},
	}
	for i, values := range cases {
		if err := s.ApplyText(values); err == nil {
			t.Errorf("case %d: expected error", i)
		}
	}
	if s.Snapshot() != before {
		t.Errorf("expected parameters unchanged after rejected writes")
	}
	if err := s.Set("warp_drive", "1"); !errors.Is(err, ErrUnknownParameter) {
		t.Errorf("expected ErrUnknownParameter, got %v", err)
	}
}

func TestStoreApplyWireUpdates(t *testing.T) {
	s := newTestStore(t)
	mode, _ := LookupName("mode")
	speed, _ := LookupName("speed_ref")

	if err := s.Apply([]Update{{ID: mode.ID, Value: 1}, {ID: speed.ID, Value: 80}}); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	p := s.Snapshot()
	if p.Mode != drive.ModeFOC || p.SpeedRef != 80 {
		t.Errorf("unexpected parameters %+v", p)
	}

	if err := s.Apply([]Update{{ID: mode.ID, Value: 7}}); !errors.Is(err, drive.ErrInvalidConfiguration) {
		t.Errorf("expected ErrInvalidConfiguration for enum out of range, got %v", err)
	}
	if err := s.Apply([]Update{{ID: 200, Value: 1}}); !errors.Is(err, ErrUnknownParameter) {
		t.Errorf("expected ErrUnknownParameter, got %v", err)
	}
}

func TestFieldFormatRoundTrip(t *testing.T) {
	p := drive.DefaultParameters()
	p.Mode = drive.ModeFOC
	p.HarmonicInjection = true
	for _, f := range Fields() {
		v, err := f.Parse(f.Format(p))
		if err != nil {
			t.Fatalf("%s: parse %q: %v", f.Name, f.Format(p), err)
		}
		if v != f.Get(p) {
			t.Errorf("%s: expected %v, got %v", f.Name, f.Get(p), v)
		}
	}
}

func TestScenarioDue(t *testing.T) {
	sc, err := ParseScenario([]byte(`
name: overcurrent ride-through
events:
  - at: 0.5
    inject: Overcurrent
  - at: 0.1
    set:
      speed_ref: "120"
  - at: 0.9
    clear: true
`))
	if err != nil {
		t.Fatalf("ParseScenario failed: %v", err)
	}
	if got := sc.Due(0.05); len(got) != 0 {
		t.Fatalf("expected nothing due, got %d", len(got))
	}
	got := sc.Due(0.6)
	if len(got) != 2 || got[0].Set["speed_ref"] != "120" || got[1].Fault() != drive.FaultOvercurrent {
		t.Fatalf("unexpected due events %+v", got)
	}
	if len(sc.Due(0.6)) != 0 {
		t.Error("expected events to fire once")
	}
	if got := sc.Due(1); len(got) != 1 || !got[0].Clear {
		t.Errorf("expected clear event, got %+v", got)
	}
	if !sc.Done() {
		t.Error("expected scenario done")
	}
}

func TestScenarioRejectsBadEvents(t *testing.T) {
	bad := []string{
		"events:\n  - at: 1\n    inject: Meltdown\n",
		"events:\n  - at: 1\n    set:\n      warp: \"9\"\n",
		"events:\n  - at: -1\n    clear: true\n",
	}
	for i, doc := range bad {
		if _, err := ParseScenario([]byte(doc)); err == nil {
			t.Errorf("case %d: expected error", i)
		}
	}
}

func TestWatcherReloadsPreset(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "preset.yaml")
	if err := os.WriteFile(path, []byte("speed_ref: 60\nmode: FOC\n"), 0o644); err != nil {
		t.Fatalf("write preset: %v", err)
	}

	s := newTestStore(t)
	w := NewWatcher(path, s, nil)
	w.debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	waitFor(t, func() bool { return w.Applied() >= 1 })
	if p := s.Snapshot(); p.SpeedRef != 60 || p.Mode != drive.ModeFOC {
		t.Fatalf("expected initial preset applied, got %+v", p)
	}

	// give the watcher time to register before writing again
	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(path, []byte("speed_ref: 75\n"), 0o644); err != nil {
		t.Fatalf("rewrite preset: %v", err)
	}
	waitFor(t, func() bool { return s.Snapshot().SpeedRef == 75 })

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run returned %v", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
