package metrics

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"wifirtt/internal/model"
)

var csvHeader = []string{
	"timestamp",
	"host",
	"technique",
	"avg_ms",
	"min_ms",
	"max_ms",
	"jitter_ms",
	"samples",
	"kernel_rtt_ms",
}

// CSVWriter renders host measurements as CSV rows, one per technique, with a
// fixed column order. The header is written before the first row.
type CSVWriter struct {
	w           *csv.Writer
	wroteHeader bool
}

func NewCSVWriter(w io.Writer) *CSVWriter {
	return &CSVWriter{w: csv.NewWriter(w)}
}

// Write appends both techniques of h. An absent summary still yields a row
// with empty value columns so a lost probe is visible.
func (c *CSVWriter) Write(at time.Time, h model.HostLatency) error {
	if !c.wroteHeader {
		if err := c.w.Write(csvHeader); err != nil {
			return err
		}
		c.wroteHeader = true
	}

	ts := at.UTC().Format(time.RFC3339Nano)
	kernel := formatOptional(h.KernelRTTMs)
	rows := []struct {
		technique model.Technique
		summary   *model.LatencySummary
		kernel    string
	}{
		{model.TechniqueTCP, h.TCP, kernel},
		{model.TechniqueICMP, h.ICMP, ""},
	}
	for _, r := range rows {
		record := []string{ts, h.Host, string(r.technique), "", "", "", "", "0", r.kernel}
		if s := r.summary; s != nil {
			record[3] = formatMs(s.AvgMs)
			record[4] = formatMs(s.MinMs)
			record[5] = formatMs(s.MaxMs)
			record[6] = formatOptional(s.JitterMs)
			record[7] = strconv.Itoa(s.Samples)
		}
		if err := c.w.Write(record); err != nil {
			return err
		}
	}

	c.w.Flush()
	return c.w.Error()
}

func formatMs(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return formatMs(*v)
}
