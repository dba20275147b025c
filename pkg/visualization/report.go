package visualization

import (
	"fmt"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// WriteReport renders the recorded run as a single static HTML page:
// achieved contrast per wavelength for corrected conditions, and the
// per-condition deviation bars when the consistency gate ran.
func (p *Plotter) WriteReport(path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	page := components.NewPage()
	if len(p.diags) > 0 {
		page.AddCharts(p.contrastChart())
	}
	if len(p.commits) > 0 {
		page.AddCharts(p.deviationChart())
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("visualization: creating report: %w", err)
	}
	defer f.Close()

	if err := page.Render(f); err != nil {
		return fmt.Errorf("visualization: rendering report: %w", err)
	}
	return nil
}

func (p *Plotter) contrastChart() *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "stim2cone run report", Width: "900px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Achieved contrast per wavelength",
			Subtitle: fmt.Sprintf("run %s, receptors %s", p.runID, p.variant),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Wavelength (nm)"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Michelson contrast"}),
	)

	var labels []string
	for _, ci := range p.sortedConditions() {
		diag, ok := p.diags[ci]
		if !ok {
			continue
		}
		if labels == nil {
			labels = make([]string, len(diag.Wavelengths))
			for i, wl := range diag.Wavelengths {
				labels[i] = fmt.Sprintf("%.0f", wl)
			}
			line.SetXAxis(labels)
		}
		data := make([]opts.LineData, len(diag.Achieved))
		for i, v := range diag.Achieved {
			data[i] = opts.LineData{Value: v}
		}
		line.AddSeries(fmt.Sprintf("p%d c%d", ci.Phase, ci.Contrast), data)
	}
	return line
}

func (p *Plotter) deviationChart() *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "400px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Max relative deviation per condition",
			Subtitle: fmt.Sprintf("run %s", p.runID),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "relative deviation"}),
	)

	labels := make([]string, 0, len(p.commits))
	data := make([]opts.BarData, 0, len(p.commits))
	for _, ci := range p.sortedConditions() {
		labels = append(labels, fmt.Sprintf("p%d c%d", ci.Phase, ci.Contrast))
		data = append(data, opts.BarData{Value: p.commits[ci].MaxRelativeDeviation})
	}
	bar.SetXAxis(labels).AddSeries("max relative deviation", data)
	return bar
}
