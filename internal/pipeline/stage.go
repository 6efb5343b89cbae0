package pipeline

import (
	"fmt"

	dErrors "ilsgate/pkg/domain-errors"
)

// Stage is a conversion's position in the pipeline. Stages only move
// forward one step at a time.
type Stage int

const (
	StageStart Stage = iota
	StageFieldsNormalized
	StageDefaultsApplied
	StageNoteHookApplied
	StageDone
)

func (s Stage) String() string {
	switch s {
	case StageStart:
		return "start"
	case StageFieldsNormalized:
		return "fields_normalized"
	case StageDefaultsApplied:
		return "defaults_applied"
	case StageNoteHookApplied:
		return "note_hook_applied"
	case StageDone:
		return "done"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// advance moves *s to next, refusing skips and repeats.
func advance(s *Stage, next Stage) error {
	if next != *s+1 {
		return dErrors.New(dErrors.CodeInternal, fmt.Sprintf("illegal stage transition %s -> %s", *s, next))
	}
	*s = next
	return nil
}
