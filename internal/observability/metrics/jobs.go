// Package metrics emits the standard job lifecycle metrics.
package metrics

import (
	"maps"
	"time"

	obserrors "github.com/private-judge/judge-api/internal/observability/errors"
	"github.com/private-judge/judge-api/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// Transition names tagged on job.transition.
const (
	TransitionEnqueue  = "enqueue"
	TransitionBegin    = "begin"
	TransitionComplete = "complete"
	TransitionFail     = "fail"
	TransitionRetry    = "retry"
	TransitionCancel   = "cancel"
	TransitionRequeue  = "requeue"
	TransitionProgress = "progress"
)

// JobMetric captures details about a job lifecycle event for metric emission.
type JobMetric struct {
	JobType    string
	Transition string
	Result     string
	Duration   time.Duration
	Err        error
	// ErrorClass overrides classification of Err, for worker-reported failures.
	ErrorClass string
}

// EmitJobLifecycle emits job.transition and, when a duration is known, job.duration.
func EmitJobLifecycle(sink statsd.Sink, in JobMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"job_type":   in.JobType,
		"transition": in.Transition,
		"result":     in.Result,
	}

	if in.Result == ResultError {
		class := in.ErrorClass
		if class == "" {
			class = obserrors.Classify(in.Err)
		}
		if class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("job.transition", 1, tags)

	if in.Duration > 0 {
		sink.Timing("job.duration", in.Duration, CloneTags(tags))
	}
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	return maps.Clone(src)
}
