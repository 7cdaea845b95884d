// Package progress renders an orchestrator.ProgressUpdate stream as a human
// progress display, the CLI-boundary counterpart to a plain loop over the
// orchestrator's update channel. It is peripheral glue: the orchestrator
// never imports this package, only emits the channel it reads.
package progress

import (
	"fmt"
	"io"

	"github.com/cheggaaa/pb/v3"

	"github.com/canonical/aptmirror/internal/orchestrator"
)

// stageOrder orders stages for the bar's running total; Done is excluded
// since it never advances the bar itself.
var stageOrder = []string{
	orchestrator.StageInit,
	orchestrator.StageFetchRelease,
	orchestrator.StageParseRelease,
	orchestrator.StageFetchIndex,
	orchestrator.StageDecompress,
	orchestrator.StageBuildPlan,
	orchestrator.StageFetchArtifacts,
	orchestrator.StagePromote,
	orchestrator.StageSweep,
}

// Render consumes updates until the channel closes, driving a cheggaaa/pb
// bar across the pipeline's stages and printing one line to w for every
// update that carries an error or a message (repository exclusions, stage
// errors, the Init and per-repository Sweep messages). It returns the first stage error seen, if
// any (the orchestrator itself never aborts a run over a single repository's
// failure, so this is informational, not a sentinel callers must act on).
func Render(updates <-chan orchestrator.ProgressUpdate, w io.Writer) error {
	bar := pb.New(len(stageOrder))
	bar.SetWriter(w)
	bar.Start()
	defer bar.Finish()

	seenStage := map[string]bool{}
	var firstErr error

	for u := range updates {
		if u.Done {
			continue
		}
		if !seenStage[u.Stage] {
			seenStage[u.Stage] = true
			bar.SetCurrent(int64(stageIndex(u.Stage) + 1))
		}

		switch {
		case u.Err != nil:
			if firstErr == nil {
				firstErr = u.Err
			}
			fmt.Fprintf(w, "\n%s: %s: %v\n", u.Stage, u.Repository, u.Err)
		case u.Message != "":
			fmt.Fprintf(w, "\n%s: %s: %s\n", u.Stage, u.Repository, u.Message)
		}
	}

	return firstErr
}

func stageIndex(stage string) int {
	for i, s := range stageOrder {
		if s == stage {
			return i
		}
	}
	return len(stageOrder) - 1
}
