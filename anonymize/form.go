package anonymize

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

type State int

const (
	StateIdle State = iota
	StatePending
)

func (s State) String() string {
	if s == StatePending {
		return "pending"
	}
	return "idle"
}

// InputSource supplies the current form values.
type InputSource interface {
	Snapshot() Inputs
}

// InputsFunc adapts a function to InputSource.
type InputsFunc func() Inputs

func (f InputsFunc) Snapshot() Inputs { return f() }

// Display is the output area.
type Display interface {
	Show(text string)
}

// DisplayFunc adapts a function to Display.
type DisplayFunc func(text string)

func (f DisplayFunc) Show(text string) { f(text) }

// Form wires an InputSource, an Anonymizer and a Display together.
//
// Every Submit gets a token. Only the result of the most recently issued
// token reaches the Display; results of superseded submissions are dropped
// when they settle. Superseded calls are not cancelled.
type Form struct {
	anonymizer Anonymizer
	source     InputSource
	display    Display
	logger     logrus.FieldLogger

	mu            sync.Mutex
	latest        uint64
	latestSettled bool
	wg            sync.WaitGroup
}

func NewForm(anonymizer Anonymizer, source InputSource, display Display, logger logrus.FieldLogger) *Form {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Form{
		anonymizer:    anonymizer,
		source:        source,
		display:       display,
		logger:        logger,
		latestSettled: true,
	}
}

// Submit snapshots the inputs, then anonymizes them in the background. It
// returns the token assigned to this submission.
func (f *Form) Submit(ctx context.Context) uint64 {
	req := BuildRequest(f.source.Snapshot())

	f.mu.Lock()
	f.latest++
	token := f.latest
	f.latestSettled = false
	f.mu.Unlock()

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		text, err := f.anonymizer.Anonymize(ctx, req)
		f.settle(token, text, err)
	}()

	return token
}

func (f *Form) settle(token uint64, text string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if token != f.latest {
		f.logger.WithFields(logrus.Fields{
			"token":  token,
			"latest": f.latest,
		}).Debug("Discarding superseded anonymization result")
		return
	}
	f.latestSettled = true

	if err != nil {
		f.logger.WithError(err).WithField("token", token).Error("Anonymization failed")
		f.display.Show(FormatError(err))
		return
	}
	f.display.Show(text)
}

// State reports Pending while the most recent submission is outstanding.
func (f *Form) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.latestSettled {
		return StateIdle
	}
	return StatePending
}

// Wait blocks until every submission issued so far has settled.
func (f *Form) Wait() {
	f.wg.Wait()
}
