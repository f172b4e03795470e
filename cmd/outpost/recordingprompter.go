package main

import (
	"context"
	"strconv"

	"github.com/outpostctl/outpost/internal/inputrecorder"
	"github.com/outpostctl/outpost/internal/loginmachine"
)

// recordingPrompter wraps a real Prompter and appends every answer to a
// Recorder, so a module configuration session run interactively can later
// be replayed verbatim by a detached worker (spec.md §4.9).
type recordingPrompter struct {
	inner loginmachine.Prompter
	rec   *inputrecorder.Recorder
}

func newRecordingPrompter(inner loginmachine.Prompter, rec *inputrecorder.Recorder) *recordingPrompter {
	return &recordingPrompter{inner: inner, rec: rec}
}

func (p *recordingPrompter) ReadLine(ctx context.Context, prompt string) (string, error) {
	answer, err := p.inner.ReadLine(ctx, prompt)
	if err != nil {
		return "", err
	}
	p.rec.Record(answer)
	return answer, nil
}

func (p *recordingPrompter) Choose(ctx context.Context, prompt string, options []string) (int, error) {
	idx, err := p.inner.Choose(ctx, prompt, options)
	if err != nil {
		return 0, err
	}
	p.rec.Record(strconv.Itoa(idx))
	return idx, nil
}
