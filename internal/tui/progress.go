package tui

import (
	"fmt"

	"github.com/Sourjya261-BB/Jira-Router/internal/export"
)

var stageTasks = map[export.Stage]TaskID{
	export.StageFirstPage: TaskFirstPage,
	export.StageFetch:     TaskFetch,
	export.StageRetry:     TaskRetry,
	export.StageTally:     TaskTally,
}

// ProgressSink returns an export.ProgressFunc that forwards updates to ch.
func ProgressSink(ch chan<- Event) export.ProgressFunc {
	return func(p export.Progress) {
		for _, e := range EventsFor(p) {
			SendEvent(ch, e)
		}
	}
}

// EventsFor translates an export progress update into display events.
func EventsFor(p export.Progress) []Event {
	task, ok := stageTasks[p.Stage]
	if !ok {
		return nil
	}

	e := TaskEvent{Task: task, Status: StatusRunning}
	switch {
	case p.Err != nil:
		e.Status = StatusError
		e.Error = p.Err
	case !p.Finished:
		if p.Total > 0 {
			e.Progress = float64(p.Done) / float64(p.Total)
			e.Message = fmt.Sprintf("%d/%d pages", p.Done, p.Total)
		}
	default:
		e = finishedEvent(task, p)
	}

	events := []Event{e}
	if p.Stage == export.StageFetch || p.Stage == export.StageRetry {
		events = append(events, FailedPagesEvent{Count: p.Failed})
	}
	return events
}

func finishedEvent(task TaskID, p export.Progress) TaskEvent {
	e := TaskEvent{Task: task, Status: StatusComplete}
	switch p.Stage {
	case export.StageFirstPage:
		e.Message = fmt.Sprintf("%d issues match", p.Issues)
	case export.StageFetch:
		if p.Total == 0 {
			e.Status = StatusSkipped
			e.Message = "single page"
			break
		}
		e.Message = fmt.Sprintf("%d pages, %d rows written", p.Total, p.Written)
	case export.StageRetry:
		switch {
		case p.Failed > 0:
			e.Status = StatusError
			e.Message = fmt.Sprintf("%d pages still missing", p.Failed)
		case p.Written == 0:
			e.Status = StatusSkipped
			e.Message = "nothing to retry"
		default:
			e.Message = "all pages recovered"
		}
	case export.StageTally:
		e.Count = p.Done
	}
	return e
}
