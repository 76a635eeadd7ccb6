package report

import (
	"bytes"
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"inverter-drive/internal/recorder"
)

var (
	speedColor  = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	torqueColor = color.RGBA{R: 214, G: 39, B: 40, A: 255}
)

// decimate keeps at most n evenly spaced rows, always including the last.
func decimate(rows []recorder.Row, n int) []recorder.Row {
	if n < 2 || len(rows) <= n {
		return rows
	}
	out := make([]recorder.Row, 0, n)
	step := float64(len(rows)-1) / float64(n-1)
	for i := 0; i < n; i++ {
		out = append(out, rows[int(float64(i)*step+0.5)])
	}
	return out
}

// RenderChart draws speed and torque against simulation time as PNG.
func RenderChart(rows []recorder.Row, width, height vg.Length, maxPoints int) ([]byte, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("report: no samples to plot")
	}
	rows = decimate(rows, maxPoints)

	speed := make(plotter.XYs, len(rows))
	torque := make(plotter.XYs, len(rows))
	for i, r := range rows {
		speed[i].X, speed[i].Y = r.Time, r.Speed
		torque[i].X, torque[i].Y = r.Time, r.Torque
	}

	p := plot.New()
	p.Title.Text = "Speed and torque"
	p.X.Label.Text = "time (s)"
	p.Y.Label.Text = "rad/s | N*m"
	p.Add(plotter.NewGrid())

	for _, s := range []struct {
		name string
		pts  plotter.XYs
		c    color.Color
	}{
		{"speed (rad/s)", speed, speedColor},
		{"torque (N*m)", torque, torqueColor},
	} {
		line, err := plotter.NewLine(s.pts)
		if err != nil {
			return nil, err
		}
		line.LineStyle.Width = vg.Points(1.2)
		line.LineStyle.Color = s.c
		p.Add(line)
		p.Legend.Add(s.name, line)
	}
	p.Legend.Top = true

	c := vgimg.NewWith(vgimg.UseWH(width, height), vgimg.UseDPI(150))
	p.Draw(draw.New(c))

	var buf bytes.Buffer
	if _, err := (vgimg.PngCanvas{Canvas: c}).WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("report: png: %w", err)
	}
	return buf.Bytes(), nil
}
