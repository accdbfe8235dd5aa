package logger

import (
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

// wrapperPackages are skipped when resolving the reported caller. The
// metrics emitters log on behalf of the session and the server, so their
// frames are skipped too.
var wrapperPackages = []string{
	"sirupsen/logrus",
	"upwrdfin/logger.",
	"upwrdfin/internal/metrics.",
}

const maxCallerDepth = 24

// callerHook reports the first frame outside the logging wrappers as
// the entry's caller.
type callerHook struct{}

func (h *callerHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *callerHook) Fire(entry *logrus.Entry) error {
	if frame, ok := callerFrame(); ok {
		entry.Caller = &frame
	}
	return nil
}

func callerFrame() (runtime.Frame, bool) {
	pcs := make([]uintptr, maxCallerDepth)
	// Skip runtime.Callers, callerFrame and Fire.
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if frame.Function != "" && !isWrapperFrame(frame.Function) {
			return frame, true
		}
		if !more {
			return runtime.Frame{}, false
		}
	}
}

func isWrapperFrame(fn string) bool {
	for _, pkg := range wrapperPackages {
		if strings.Contains(fn, pkg) {
			return true
		}
	}
	return false
}
