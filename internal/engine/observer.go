package engine

import (
	"github.com/daryltucker/tau-eval/internal/report"
)

// Observer is notified as pairs start and finish. With ParallelModels > 1 the
// methods are called from several goroutines.
type Observer interface {
	PairStarted(taskKey, model string)
	PairFinished(res report.PairResult)
}

type nopObserver struct{}

func (nopObserver) PairStarted(string, string)     {}
func (nopObserver) PairFinished(report.PairResult) {}

// Observers fans notifications out to several observers, in order.
type Observers []Observer

func (o Observers) PairStarted(taskKey, model string) {
	for _, obs := range o {
		obs.PairStarted(taskKey, model)
	}
}

func (o Observers) PairFinished(res report.PairResult) {
	for _, obs := range o {
		obs.PairFinished(res)
	}
}
