// Package report renders a run summary PDF from the journal and a recording.
package report

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-pdf/fpdf"
	"gonum.org/v1/plot/vg"

	"inverter-drive/internal/recorder"
	"inverter-drive/internal/store"
)

// Input is everything a report needs. Rows may be empty.
type Input struct {
	Run    *store.Run
	Events []store.FaultEvent
	Rows   []recorder.Row
}

const chartImage = "chart"

// GeneratePDF writes the report for in to w.
func GeneratePDF(w io.Writer, in Input) error {
	if in.Run == nil {
		return fmt.Errorf("report: run not found")
	}
	run := in.Run

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 18)
	pdf.CellFormat(0, 12, "Drive Simulation Report", "", 1, "C", false, 0, "")
	pdf.Ln(4)

	info := []struct{ label, value string }{
		{"Run", run.ID},
		{"Drive", run.DriveID},
		{"Status", run.Status},
		{"Started", run.StartedAt.Format(time.RFC3339)},
		{"Time step", humanize.SIWithDigits(run.TimeStep, 2, "s")},
		{"Ticks", humanize.Comma(int64(run.Ticks))},
		{"Simulated", fmt.Sprintf("%.3f s", float64(run.Ticks)*run.TimeStep)},
	}
	if run.FinishedAt != nil {
		info = append(info, struct{ label, value string }{"Finished", run.FinishedAt.Format(time.RFC3339)})
	}
	if run.Summary != "" {
		info = append(info, struct{ label, value string }{"Summary", run.Summary})
	}
	for _, item := range info {
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(35, 7, item.label+":", "", 0, "L", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(0, 7, item.value, "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	if len(in.Rows) > 0 {
		png, err := RenderChart(in.Rows, 18*vg.Centimeter, 10*vg.Centimeter, 2000)
		if err != nil {
			return err
		}
		pdf.RegisterImageOptionsReader(chartImage, fpdf.ImageOptions{ImageType: "PNG"}, bytes.NewReader(png))
		pdf.ImageOptions(chartImage, 15, pdf.GetY(), 180, 100, true, fpdf.ImageOptions{ImageType: "PNG"}, 0, "")
		pdf.Ln(4)
	}

	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(0, 8, "Fault events", "", 1, "L", false, 0, "")
	pdf.Ln(2)
	if len(in.Events) == 0 {
		pdf.SetFont("Arial", "I", 10)
		pdf.CellFormat(0, 7, "No fault transitions recorded.", "", 1, "L", false, 0, "")
	} else {
		pdf.SetFont("Arial", "B", 9)
		pdf.SetFillColor(220, 220, 220)
		pdf.CellFormat(25, 7, "Sim time (s)", "1", 0, "R", true, 0, "")
		pdf.CellFormat(35, 7, "From", "1", 0, "L", true, 0, "")
		pdf.CellFormat(35, 7, "To", "1", 0, "L", true, 0, "")
		pdf.CellFormat(30, 7, "Cause", "1", 0, "L", true, 0, "")
		pdf.CellFormat(0, 7, "Wall time", "1", 1, "L", true, 0, "")

		pdf.SetFont("Arial", "", 9)
		for _, e := range in.Events {
			pdf.CellFormat(25, 7, fmt.Sprintf("%.4f", e.SimTime), "1", 0, "R", false, 0, "")
			pdf.CellFormat(35, 7, e.From.String(), "1", 0, "L", false, 0, "")
			pdf.CellFormat(35, 7, e.To.String(), "1", 0, "L", false, 0, "")
			pdf.CellFormat(30, 7, string(e.Cause), "1", 0, "L", false, 0, "")
			pdf.CellFormat(0, 7, e.At.Format("15:04:05.000"), "1", 1, "L", false, 0, "")
		}
	}

	return pdf.Output(w)
}
