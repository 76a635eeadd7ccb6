// Package recorder writes samples to a CSV file off the tick path.
package recorder

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"inverter-drive/internal/drive"
)

// Header is the first CSV row.
var Header = []string{"Time", "Va", "Vb", "Vc", "Ia", "Ib", "Ic", "Speed", "Torque"}

// Recorder queues samples without bound and writes them in order from a
// single goroutine, so Accept never blocks the tick and no row is lost.
type Recorder struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []drive.Sample
	closed bool

	out     io.Closer
	w       *csv.Writer
	err     error
	written atomic.Uint64
	done    chan struct{}
	logger  *zap.Logger
}

var _ drive.Sink = (*Recorder)(nil)

// Open creates (truncates) path and writes the header.
func Open(path string, logger *zap.Logger) (*Recorder, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("recorder: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("recorder: %w", err)
	}
	r, err := New(f, logger)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.out = f
	logger.Info("Recording samples", zap.String("path", path))
	return r, nil
}

// New records to w. w is not closed by Close.
func New(w io.Writer, logger *zap.Logger) (*Recorder, error) {
	r := &Recorder{
		w:      csv.NewWriter(w),
		done:   make(chan struct{}),
		logger: logger,
	}
	r.cond = sync.NewCond(&r.mu)
	if err := r.w.Write(Header); err != nil {
		return nil, fmt.Errorf("recorder: header: %w", err)
	}
	go r.loop()
	return r, nil
}

// Accept implements drive.Sink.
func (r *Recorder) Accept(s drive.Sample) {
	r.mu.Lock()
	if !r.closed {
		r.queue = append(r.queue, s)
		r.cond.Signal()
	}
	r.mu.Unlock()
}

func (r *Recorder) loop() {
	defer close(r.done)
	row := make([]string, len(Header))
	for {
		r.mu.Lock()
		for len(r.queue) == 0 && !r.closed {
			r.cond.Wait()
		}
		batch := r.queue
		r.queue = nil
		closed := r.closed
		r.mu.Unlock()

		for _, s := range batch {
			if r.err != nil {
				break
			}
			formatRow(row, s)
			if err := r.w.Write(row); err != nil {
				r.err = err
				r.logger.Error("CSV write failed, recording stopped", zap.Error(err))
				break
			}
			r.written.Add(1)
		}
		r.w.Flush()
		if err := r.w.Error(); err != nil && r.err == nil {
			r.err = err
			r.logger.Error("CSV flush failed, recording stopped", zap.Error(err))
		}
		if closed {
			return
		}
	}
}

func formatRow(row []string, s drive.Sample) {
	row[0] = strconv.FormatFloat(s.Time, 'f', 3, 64)
	for i := 0; i < 3; i++ {
		row[1+i] = strconv.FormatFloat(s.Voltages[i], 'f', 2, 64)
		row[4+i] = strconv.FormatFloat(s.Currents[i], 'f', 2, 64)
	}
	row[7] = strconv.FormatFloat(s.Speed, 'f', 2, 64)
	row[8] = strconv.FormatFloat(s.Torque, 'f', 2, 64)
}

// Close drains the queue, flushes and closes the file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		<-r.done
		return r.err
	}
	r.closed = true
	r.cond.Broadcast()
	r.mu.Unlock()

	<-r.done
	err := r.err
	if r.out != nil {
		err = multierr.Append(err, r.out.Close())
		r.out = nil
	}
	r.logger.Info("Recorder closed", zap.Uint64("rows", r.written.Load()))
	return err
}

// Rows returns how many rows were handed to the CSV writer without error.
func (r *Recorder) Rows() uint64 { return r.written.Load() }

// Row is one parsed CSV record.
type Row struct {
	Time     float64
	Voltages [3]float64
	Currents [3]float64
	Speed    float64
	Torque   float64
}

// ReadCSV parses a file written by Recorder.
func ReadCSV(in io.Reader) ([]Row, error) {
	cr := csv.NewReader(in)
	cr.FieldsPerRecord = len(Header)
	head, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("recorder: header: %w", err)
	}
	for i, h := range Header {
		if head[i] != h {
			return nil, fmt.Errorf("recorder: unexpected column %q, want %q", head[i], h)
		}
	}

	var rows []Row
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("recorder: %w", err)
		}
		var v [9]float64
		for i, f := range rec {
			if v[i], err = strconv.ParseFloat(f, 64); err != nil {
				return nil, fmt.Errorf("recorder: line %d column %s: %w", len(rows)+2, Header[i], err)
			}
		}
		rows = append(rows, Row{
			Time:     v[0],
			Voltages: [3]float64{v[1], v[2], v[3]},
			Currents: [3]float64{v[4], v[5], v[6]},
			Speed:    v[7],
			Torque:   v[8],
		})
	}
}
