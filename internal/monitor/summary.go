package monitor

import (
	"fmt"
	"io"
	"text/tabwriter"
)

const maxSourceWidth = 40

// WriteSummary renders a run as a fixed-width table.
func WriteSummary(w io.Writer, results []CameraResult) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, "CAMERA\tSOURCE\tSTATUS\tCONF\tNORMAL\tFLOODED\tMEDIUM\tFRAMES\tSAVED")
	for _, r := range results {
		name := r.Camera.Name
		if name == "" {
			name = r.Camera.ID
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.1f\t%.1f%%\t%.1f%%\t%.1f%%\t%d\t%s\n",
			name,
			truncate(r.Camera.Stream, maxSourceWidth),
			r.Status,
			r.Confidence,
			r.Probabilities.Normal,
			r.Probabilities.Flooded,
			r.Probabilities.Medium,
			r.Meta.Frames,
			yesNo(r.Saved),
		)
	}

	return tw.Flush()
}

func truncate(s string, n int) string {
	if s == "" {
		return "-"
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-3]) + "..."
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
