package recorder

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"inverter-drive/internal/drive"
)

func TestRecorderFormatAndOrder(t *testing.T) {
	var buf bytes.Buffer
	r, err := New(&buf, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 500; i++ {
		r.Accept(drive.Sample{
			Tick:     uint64(i),
			Time:     float64(i) * 1e-3,
			Voltages: [3]float64{200, -100, -100},
			Currents: [3]float64{1.234, -0.5, 0},
			Speed:    float64(i),
			Torque:   2.5,
		})
	}
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if lines[0] != "Time,Va,Vb,Vc,Ia,Ib,Ic,Speed,Torque" {
		t.Fatalf("unexpected header %q", lines[0])
	}
	if len(lines) != 501 {
		t.Fatalf("expected 501 lines, got %d", len(lines))
	}
	if lines[2] != "0.001,200.00,-100.00,-100.00,1.23,-0.50,0.00,1.00,2.50" {
		t.Errorf("unexpected row %q", lines[2])
	}

	rows, err := ReadCSV(strings.NewReader(buf.String()))
	if err != nil {
		t.Fatal(err)
	}
	for i, row := range rows {
		if row.Speed != float64(i) {
			t.Fatalf("row %d out of order: speed %v", i, row.Speed)
		}
	}
}

func TestRecorderIgnoresSamplesAfterClose(t *testing.T) {
	var buf bytes.Buffer
	r, err := New(&buf, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	r.Accept(drive.Sample{})
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	r.Accept(drive.Sample{})
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(buf.String(), "\n"); n != 2 {
		t.Errorf("expected header and one row, got %d lines", n)
	}
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestRecorderCountsOnlyWrittenRows(t *testing.T) {
	r, err := New(failWriter{}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 500; i++ {
		r.Accept(drive.Sample{})
	}
	if err := r.Close(); err == nil {
		t.Fatal("expected write error from Close")
	}
	// header is 36 bytes, a zero row 46; only rows that fit the 4 KiB csv buffer were accepted
	n := r.Rows()
	if n == 0 || 36+46*n > 4096 {
		t.Errorf("expected rows that fit in the write buffer, got %d", n)
	}
}

func TestOpenCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs", "out.csv")
	r, err := Open(path, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	r.Accept(drive.Sample{Time: 0.5, Speed: 10})
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := ReadCSV(f)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].Time != 0.5 || rows[0].Speed != 10 {
		t.Errorf("unexpected rows %+v", rows)
	}
}

func TestReadCSVRejectsBadInput(t *testing.T) {
	if _, err := ReadCSV(strings.NewReader("a,b,c,d,e,f,g,h,i\n")); err == nil {
		t.Error("expected header error")
	}
	bad := "Time,Va,Vb,Vc,Ia,Ib,Ic,Speed,Torque\n0.000,x,0,0,0,0,0,0,0\n"
	if _, err := ReadCSV(strings.NewReader(bad)); err == nil {
		t.Error("expected parse error")
	}
}
