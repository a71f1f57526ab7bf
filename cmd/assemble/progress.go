package main

import (
	"sync"
	"time"

	"github.com/turbokube/assemble/pkg/assembly"
	"go.uber.org/zap"
)

const progressInterval = 2 * time.Second

// newProgress logs copy progress at most every progressInterval, and on completion
func newProgress() assembly.Progress {
	var mu sync.Mutex
	var last time.Time
	return func(done, total int) {
		mu.Lock()
		defer mu.Unlock()
		if done < total && time.Since(last) < progressInterval {
			return
		}
		last = time.Now()
		zap.L().Debug("copy progress", zap.Int("done", done), zap.Int("total", total))
	}
}
