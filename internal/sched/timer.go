package sched

import "time"

// realTimers is the production TimerHost on top of time.AfterFunc.
type realTimers struct{}

// RealTimers returns the default TimerHost.
func RealTimers() TimerHost { return realTimers{} }

func (realTimers) ArmOnce(delay time.Duration, onFire func()) TimerHandle {
	if delay < 0 {
		delay = 0
	}
	return time.AfterFunc(delay, onFire)
}

func (realTimers) Disarm(h TimerHandle) {
	if t, ok := h.(*time.Timer); ok && t != nil {
		_ = t.Stop()
	}
}
