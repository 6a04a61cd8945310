package report

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/veliant/tribunal/internal/config"
)

// RunPaths locates every artifact one run leaves on disk.
type RunPaths struct {
	Root     string
	Trace    string
	State    string
	Decision string
}

// Layout derives run directories from the output configuration.
type Layout struct {
	BaseDir          string
	TraceFilename    string
	StateFilename    string
	DecisionFilename string
}

func NewLayout(cfg config.Config) Layout {
	l := Layout{
		BaseDir:          cfg.Output.Dir,
		TraceFilename:    cfg.Output.TraceFilename,
		StateFilename:    cfg.Output.StateFilename,
		DecisionFilename: cfg.Output.DecisionFilename,
	}
	if l.BaseDir == "" {
		l.BaseDir = "runs"
	}
	if l.TraceFilename == "" {
		l.TraceFilename = "trace.jsonl"
	}
	if l.StateFilename == "" {
		l.StateFilename = "state.json"
	}
	if l.DecisionFilename == "" {
		l.DecisionFilename = "decision.md"
	}
	return l
}

func (l Layout) Paths(runID string) RunPaths {
	root := filepath.Join(l.BaseDir, runID)
	return RunPaths{
		Root:     root,
		Trace:    filepath.Join(root, l.TraceFilename),
		State:    filepath.Join(root, l.StateFilename),
		Decision: filepath.Join(root, l.DecisionFilename),
	}
}

// Ensure creates the run directory and returns its paths.
func (l Layout) Ensure(runID string) (RunPaths, error) {
	if runID == "" {
		return RunPaths{}, fmt.Errorf("run id is empty")
	}
	paths := l.Paths(runID)
	if err := os.MkdirAll(paths.Root, 0o755); err != nil {
		return RunPaths{}, fmt.Errorf("create run dir %s: %w", paths.Root, err)
	}
	return paths, nil
}
