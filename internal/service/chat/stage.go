package chat

import (
	analysis "github.com/silvercoin/advisor/backend/internal/analysis/sentiment"
)

// Stage is a step of the chat pipeline.
type Stage string

const (
	StageAuthenticating   Stage = "authenticating"
	StageResolvingProfile Stage = "resolving_profile"
	StageClassifying      Stage = "classifying"
	StageBuilding         Stage = "building"
	StageCompleting       Stage = "completing"
	StagePersisting       Stage = "persisting"
	StageDone             Stage = "done"
	StageError            Stage = "error"
)

// Event is delivered to observers when the pipeline enters a stage.
// Sentiment and Tags are set once classification has finished.
type Event struct {
	Stage     Stage
	Sentiment *analysis.Result
	Tags      []string
	Err       error
}

// Observer receives pipeline events. It runs on the request goroutine.
type Observer func(Event)

// Option customises a single Chat call.
type Option func(*callOptions)

type callOptions struct {
	observers []Observer
}

// WithObserver registers fn for the stage events of one call.
func WithObserver(fn Observer) Option {
	return func(o *callOptions) {
		if fn != nil {
			o.observers = append(o.observers, fn)
		}
	}
}

func (o *callOptions) emit(ev Event) {
	for _, fn := range o.observers {
		fn(ev)
	}
}

// ObserverFrom folds the observers registered by opts into one Observer.
// Pipelines other than Service use it to honour WithObserver.
func ObserverFrom(opts ...Option) Observer {
	var co callOptions
	for _, opt := range opts {
		opt(&co)
	}
	return co.emit
}
