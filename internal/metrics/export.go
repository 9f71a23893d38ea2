package metrics

import "time"

// Package-level helpers, meant to be dot-imported alongside logging.

func MetricTimerStart(topic, function string) string {
	return GetInstance().StartTiming(topic, function)
}

func MetricTimerStop(key string) {
	GetInstance().EndTiming(key)
}

func MetricDuration(topic, function string, d time.Duration) {
	GetInstance().RecordDuration(topic, function, d)
}

func MetricInc(topic, function string) {
	GetInstance().AddCounter(topic, function, 1)
}

func MetricAdd(topic, function string, delta int64) {
	GetInstance().AddCounter(topic, function, delta)
}

func MetricSet(topic, function string, value int64) {
	GetInstance().SetGauge(topic, function, value)
}

func MetricSuccess(topic, operation string) {
	GetInstance().RecordSuccess(topic, operation)
}

func MetricFail(topic, operation string) {
	GetInstance().RecordFailure(topic, operation, "")
}

func MetricFailWithReason(topic, operation, reason string) {
	GetInstance().RecordFailure(topic, operation, reason)
}

func MetricOutcome(topic, operation, name string) {
	GetInstance().RecordOutcome(topic, operation, name)
}
