package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/charmed-kubernetes/jenkins-sub000/batch"
	"github.com/charmed-kubernetes/jenkins-sub000/errors"
)

// printSummary writes one row per result.
func printSummary(w io.Writer, s batch.Summary) {
	if len(s.Results) == 0 {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ARTIFACT\tTRACK\tSTATE\tDETAIL")
	for _, r := range s.Results {
		track := r.Track
		if track == "" {
			track = "-"
		}
		state := string(r.State)
		detail := r.Reason
		switch {
		case r.Error != "":
			detail = r.Error
		case r.Skipped:
			state = "skipped"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Artifact, track, state, detail)
	}
	built, skipped, failed := s.Counts()
	fmt.Fprintf(tw, "\nrun %s: %d built, %d skipped, %d failed\n", s.RunID, built, skipped, failed)
	_ = tw.Flush()
}

// reportError names every failed artifact of a batch failure.
func reportError(w io.Writer, err error) {
	var agg *errors.AggregateBatchFailure
	if !errors.As(err, &agg) {
		fmt.Fprintf(w, "cibuild: %v\n", err)
		return
	}
	fmt.Fprintf(w, "cibuild: %v\n", agg)
	for _, name := range agg.Names {
		fmt.Fprintf(w, "  %s: %v\n", name, agg.Failed[name])
	}
}
