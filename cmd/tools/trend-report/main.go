// Command trend-report renders the observed vs forward-horizon throughput of
// one cell as an interactive HTML chart, with an optional static PNG for
// embedding in documents.
package main

import (
	"context"
	"flag"
	"fmt"
	"image/color"
	"log"
	"os"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/cellular.report/internal/db"
)

var (
	dbFile  = flag.String("db", "telemetry.db", "Path to the sqlite database")
	cell    = flag.String("cell", "", "Cell id to report on (default: first cell with features)")
	from    = flag.String("from", "", "Range start (RFC3339 or YYYY-MM-DD, default: all)")
	to      = flag.String("to", "", "Range end (RFC3339 or YYYY-MM-DD, default: all)")
	outFile = flag.String("out", "trend-report.html", "Output HTML file")
	pngFile = flag.String("png", "", "Optional output PNG file")
)

func parseBound(s string, fallback time.Time) (time.Time, error) {
	if s == "" {
		return fallback, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

func main() {
	flag.Parse()
	ctx := context.Background()

	store, err := db.OpenDB(*dbFile)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()

	start, err := parseBound(*from, time.Unix(0, 0))
	if err != nil {
		log.Fatalf("Invalid -from: %v", err)
	}
	end, err := parseBound(*to, time.Now().Add(24*time.Hour))
	if err != nil {
		log.Fatalf("Invalid -to: %v", err)
	}

	cellID := *cell
	if cellID == "" {
		cells, err := store.FeatureCells(ctx)
		if err != nil {
			log.Fatalf("Failed to list cells: %v", err)
		}
		if len(cells) == 0 {
			log.Fatal("No feature rows in database; run the features command first")
		}
		cellID = cells[0]
		log.Printf("No -cell given, using %s", cellID)
	}

	series, err := store.TrendSeries(ctx, cellID, start, end)
	if err != nil {
		log.Fatalf("Failed to load trend series: %v", err)
	}
	if len(series) == 0 {
		log.Fatalf("No feature rows for cell %s in range", cellID)
	}

	if err := renderHTML(cellID, series, *outFile); err != nil {
		log.Fatalf("Failed to render HTML: %v", err)
	}
	log.Printf("Wrote %s (%d points)", *outFile, len(series))

	if *pngFile != "" {
		if err := renderPNG(cellID, series, *pngFile); err != nil {
			log.Fatalf("Failed to render PNG: %v", err)
		}
		log.Printf("Wrote %s", *pngFile)
	}
}

func renderHTML(cellID string, series []db.TrendPoint, path string) error {
	xAxis := make([]string, 0, len(series))
	observed := make([]opts.LineData, 0, len(series))
	forecast := make([]opts.LineData, 0, len(series))
	for _, p := range series {
		xAxis = append(xAxis, p.Ts.UTC().Format("01-02 15:04"))
		observed = append(observed, lineValue(p.DlMbpsMean))
		forecast = append(forecast, lineValue(p.DlMbpsFwd))
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Cell Throughput Trend", Width: "1200px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("Throughput trend: %s", cellID),
			Subtitle: fmt.Sprintf("%d points, %s to %s", len(series), series[0].Ts.UTC().Format(time.RFC3339), series[len(series)-1].Ts.UTC().Format(time.RFC3339)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Mbps"}),
	)
	line.SetXAxis(xAxis).
		AddSeries("observed", observed).
		AddSeries("horizon target", forecast)

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return line.Render(f)
}

func lineValue(v *float64) opts.LineData {
	if v == nil {
		return opts.LineData{Value: nil}
	}
	return opts.LineData{Value: *v}
}

func renderPNG(cellID string, series []db.TrendPoint, path string) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Throughput trend: %s", cellID)
	p.X.Label.Text = "Time"
	p.Y.Label.Text = "Mbps"
	p.X.Tick.Marker = plot.TimeTicks{Format: "01-02 15:04"}

	var obsPts, fwdPts plotter.XYs
	for _, pt := range series {
		x := float64(pt.Ts.Unix())
		if pt.DlMbpsMean != nil {
			obsPts = append(obsPts, plotter.XY{X: x, Y: *pt.DlMbpsMean})
		}
		if pt.DlMbpsFwd != nil {
			fwdPts = append(fwdPts, plotter.XY{X: x, Y: *pt.DlMbpsFwd})
		}
	}

	if len(obsPts) > 0 {
		obsLine, err := plotter.NewLine(obsPts)
		if err != nil {
			return err
		}
		obsLine.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}
		obsLine.Width = vg.Points(1)
		p.Add(obsLine)
		p.Legend.Add("observed", obsLine)
	}
	if len(fwdPts) > 0 {
		fwdLine, err := plotter.NewLine(fwdPts)
		if err != nil {
			return err
		}
		fwdLine.Color = color.RGBA{R: 255, G: 127, B: 14, A: 255}
		fwdLine.Width = vg.Points(1)
		p.Add(fwdLine)
		p.Legend.Add("horizon target", fwdLine)
	}
	p.Legend.Top = true

	return p.Save(10*vg.Inch, 4*vg.Inch, path)
}
