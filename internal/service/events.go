package service

// eventRecorder counts authentication outcomes. MetricsService implements it.
type eventRecorder interface {
	RecordAuthEvent(event, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) RecordAuthEvent(string, string) {}
