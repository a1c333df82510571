// Command imu-plot renders the session database's IMU history to PNG line
// charts: one for accelerometer axes, one for gyroscope axes and one for the
// fused orientation quaternion. Useful for checking filter convergence and
// mount vibration after a capture session.
package main

import (
	"flag"
	"fmt"
	"image/color"
	"log"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/oakview/oakbridge/internal/db"
)

var (
	dbPath = flag.String("db", "oakbridge.db", "Session database path")
	outDir = flag.String("out", "plots", "Output directory for PNG files")
	limit  = flag.Int("limit", 0, "Max samples to plot (0 = all)")
)

var axisColors = []color.Color{
	color.RGBA{R: 220, G: 60, B: 60, A: 255},  // x
	color.RGBA{R: 60, G: 160, B: 60, A: 255},  // y
	color.RGBA{R: 60, G: 90, B: 220, A: 255},  // z
	color.RGBA{R: 150, G: 150, B: 60, A: 255}, // w
}

func main() {
	flag.Parse()

	sessionDB, err := db.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer sessionDB.Close()

	samples, err := sessionDB.IMUSamples(*limit)
	if err != nil {
		log.Fatalf("failed to read IMU samples: %v", err)
	}
	if len(samples) == 0 {
		log.Fatal("no IMU samples recorded")
	}
	log.Printf("plotting %d samples", len(samples))

	if err := os.MkdirAll(*outDir, 0755); err != nil {
		log.Fatalf("failed to create output dir: %v", err)
	}

	// X axis is seconds since the first sample.
	start := samples[0].Timestamp
	seconds := func(i int) float64 {
		return samples[i].Timestamp.Sub(start).Seconds()
	}

	plots := []struct {
		file   string
		title  string
		yLabel string
		series map[string]func(i int) float64
		order  []string
	}{
		{
			file:   "imu_accel.png",
			title:  "Accelerometer",
			yLabel: "m/s²",
			series: map[string]func(i int) float64{
				"x": func(i int) float64 { return samples[i].AccelX },
				"y": func(i int) float64 { return samples[i].AccelY },
				"z": func(i int) float64 { return samples[i].AccelZ },
			},
			order: []string{"x", "y", "z"},
		},
		{
			file:   "imu_gyro.png",
			title:  "Gyroscope",
			yLabel: "rad/s",
			series: map[string]func(i int) float64{
				"x": func(i int) float64 { return samples[i].GyroX },
				"y": func(i int) float64 { return samples[i].GyroY },
				"z": func(i int) float64 { return samples[i].GyroZ },
			},
			order: []string{"x", "y", "z"},
		},
		{
			file:   "imu_orientation.png",
			title:  "Fused orientation",
			yLabel: "quaternion component",
			series: map[string]func(i int) float64{
				"w": func(i int) float64 { return samples[i].QuatW },
				"x": func(i int) float64 { return samples[i].QuatX },
				"y": func(i int) float64 { return samples[i].QuatY },
				"z": func(i int) float64 { return samples[i].QuatZ },
			},
			order: []string{"w", "x", "y", "z"},
		},
	}

	for _, chart := range plots {
		p := plot.New()
		p.Title.Text = chart.title
		p.X.Label.Text = "Time (s)"
		p.Y.Label.Text = chart.yLabel

		for si, name := range chart.order {
			value := chart.series[name]
			pts := make(plotter.XYs, len(samples))
			for i := range samples {
				pts[i] = plotter.XY{X: seconds(i), Y: value(i)}
			}
			line, err := plotter.NewLine(pts)
			if err != nil {
				log.Fatalf("failed to build %s/%s: %v", chart.title, name, err)
			}
			line.Color = axisColors[si%len(axisColors)]
			line.Width = vg.Points(1)
			p.Add(line)
			p.Legend.Add(name, line)
		}
		p.Legend.Top = true

		file := filepath.Join(*outDir, chart.file)
		if err := p.Save(14*vg.Inch, 6*vg.Inch, file); err != nil {
			log.Fatalf("failed to save %s: %v", file, err)
		}
		fmt.Println(file)
	}
}
