package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"inverter-drive/internal/drive"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	p, err := cfg.DriveParameters()
	if err != nil {
		t.Fatalf("DriveParameters failed: %v", err)
	}
	if p != drive.DefaultParameters() {
		t.Errorf("expected factory parameters, got %+v", p)
	}
	c, err := cfg.Constants()
	if err != nil {
		t.Fatalf("Constants failed: %v", err)
	}
	if c != drive.DefaultConstants() {
		t.Errorf("expected default constants, got %+v", c)
	}
	if cfg.Simulation.TickInterval != 10*time.Millisecond {
		t.Errorf("expected 10ms tick, got %v", cfg.Simulation.TickInterval)
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 7000
simulation:
  time_step: 0.0005
  torque_model: average
faults:
  auto_reset_after: 3s
drive:
  mode: FOC
  load_type: Fan/Pump
  pwm_type: SVPWM
  protection: Shutdown
  speed_ref: 42
auth:
  users:
    - username: operator
      password: secret
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Server.Port != 7000 {
		t.Errorf("expected port 7000, got %d", cfg.Server.Port)
	}
	if len(cfg.Auth.Users) != 1 || cfg.Auth.Users[0].Username != "operator" {
		t.Errorf("unexpected users %+v", cfg.Auth.Users)
	}

	p, err := cfg.DriveParameters()
	if err != nil {
		t.Fatalf("DriveParameters failed: %v", err)
	}
	if p.Mode != drive.ModeFOC || p.LoadType != drive.LoadFanPump ||
		p.PWMType != drive.PWMSpaceVector || p.Protection != drive.ProtectionShutdown {
		t.Errorf("unexpected enums %+v", p)
	}
	if p.SpeedRef != 42 {
		t.Errorf("expected speed_ref 42, got %v", p.SpeedRef)
	}
	// untouched keys keep their defaults
	if p.DCLinkVoltage != 400 {
		t.Errorf("expected default dc link 400, got %v", p.DCLinkVoltage)
	}

	c, err := cfg.Constants()
	if err != nil {
		t.Fatalf("Constants failed: %v", err)
	}
	if c.TorqueModel != drive.TorqueModelAverage || c.AutoResetAfter != 3*time.Second {
		t.Errorf("unexpected constants %+v", c)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("DRIVESIM_DRIVE_SPEED_REF", "12.5")
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Drive.SpeedRef != 12.5 {
		t.Errorf("expected 12.5 from env, got %v", cfg.Drive.SpeedRef)
	}
}

func TestDriveParametersRejectsUnknownEnum(t *testing.T) {
	path := writeConfig(t, "drive:\n  mode: turbo\n")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if _, err := cfg.DriveParameters(); !errors.Is(err, drive.ErrInvalidConfiguration) {
		t.Errorf("expected ErrInvalidConfiguration, got %v", err)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
