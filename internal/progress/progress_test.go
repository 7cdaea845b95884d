package progress

import (
	"bytes"
	"errors"
	"testing"

	"github.com/canonical/aptmirror/internal/orchestrator"
)

func TestRenderReturnsFirstStageError(t *testing.T) {
	ch := make(chan orchestrator.ProgressUpdate, 4)
	ch <- orchestrator.ProgressUpdate{Stage: orchestrator.StageInit}
	ch <- orchestrator.ProgressUpdate{Stage: orchestrator.StageFetchRelease, Repository: "http://example.test/repo", Err: errors.New("boom")}
	ch <- orchestrator.ProgressUpdate{Stage: orchestrator.StageDone, Done: true}
	close(ch)

	var buf bytes.Buffer
	err := Render(ch, &buf)
	if err == nil || err.Error() != "boom" {
		t.Fatalf("expected the stage error to surface, got %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte("boom")) {
		t.Error("expected the error to be printed to the writer")
	}
}

func TestRenderNilErrorWhenNoFailures(t *testing.T) {
	ch := make(chan orchestrator.ProgressUpdate, 2)
	ch <- orchestrator.ProgressUpdate{Stage: orchestrator.StageInit, Message: "validating configuration"}
	ch <- orchestrator.ProgressUpdate{Stage: orchestrator.StageDone, Done: true}
	close(ch)

	var buf bytes.Buffer
	if err := Render(ch, &buf); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}
