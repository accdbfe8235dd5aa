package logger

import (
	"sync"
	"sync/atomic"
)

type levelCounter struct {
	warns  int64
	errors int64
}

var components sync.Map // map[string]*levelCounter

// ComponentCounts is the number of warnings and errors a component has logged.
type ComponentCounts struct {
	Warns  int64 `json:"warns"`
	Errors int64 `json:"errors"`
}

func counterFor(component string) *levelCounter {
	v, _ := components.LoadOrStore(component, &levelCounter{})
	return v.(*levelCounter)
}

func recordWarn(component string) {
	atomic.AddInt64(&counterFor(component).warns, 1)
}

func recordError(component string) {
	atomic.AddInt64(&counterFor(component).errors, 1)
}

// Counts returns warn/error totals per component since process start.
func Counts() map[string]ComponentCounts {
	out := make(map[string]ComponentCounts)
	components.Range(func(k, v any) bool {
		c := v.(*levelCounter)
		out[k.(string)] = ComponentCounts{
			Warns:  atomic.LoadInt64(&c.warns),
			Errors: atomic.LoadInt64(&c.errors),
		}
		return true
	})
	return out
}
