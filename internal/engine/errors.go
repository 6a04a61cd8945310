package engine

import (
	"fmt"
	"strings"
)

// StructuralIntegrityError marks a referential break between pipeline
// stages, such as an adjudication citing an evidence id the registry never
// minted. Unlike a contract violation, it cannot be repaired by retrying a
// worker, so it is the one failure that aborts a run instead of degrading it.
type StructuralIntegrityError struct {
	Stage   string
	Subject string
	Missing []string
}

func (e *StructuralIntegrityError) Error() string {
	return fmt.Sprintf("structural integrity violated at %s: %s cites unknown evidence ids [%s]",
		e.Stage, e.Subject, strings.Join(e.Missing, ", "))
}
