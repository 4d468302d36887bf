package domain

import (
	"sync/atomic"
	"time"
)

// Clock отдаёт текущее время в секундах unix.
// Операции читают его один раз в начале.
type Clock interface {
	Now() int64
}

// SystemClock — настоящие часы.
type SystemClock struct{}

func (SystemClock) Now() int64 { return time.Now().Unix() }

// ManualClock — часы, которые двигаются вручную.
type ManualClock struct {
	now atomic.Int64
}

// NewManualClock создаёт часы, показывающие start.
func NewManualClock(start int64) *ManualClock {
	c := &ManualClock{}
	c.now.Store(start)
	return c
}

func (c *ManualClock) Now() int64 { return c.now.Load() }

// Advance сдвигает часы вперёд на seconds.
func (c *ManualClock) Advance(seconds int64) { c.now.Add(seconds) }

// Set выставляет время.
func (c *ManualClock) Set(unix int64) { c.now.Store(unix) }
