package scheduler

import "context"

type jobContext struct {
	context.Context
	id, name string
	s        *Scheduler
}

func (jc *jobContext) JobID() string   { return jc.id }
func (jc *jobContext) JobName() string { return jc.name }

func (jc *jobContext) SetStatusMessage(message string) {
	_ = jc.s.repo.SetStatusMessage(jc, jc.id, message)
}

func (jc *jobContext) AddLogLine(text string) {
	_ = jc.s.repo.AddLogLine(jc, jc.id, newLogLine(text))
}

func (jc *jobContext) AddAdditionalData(key, value string) {
	_ = jc.s.repo.AddAdditionalData(jc, jc.id, key, value)
}
