// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.
package main

import (
	"fmt"
	"log"
	"time"
)

// Log prints messages prefixed by the time elapsed since the start of the tool.
type Log struct {
	start  time.Time
	logger *log.Logger
}

func NewLog() *Log {
	return &Log{start: time.Now(), logger: log.Default()}
}

func (l *Log) Print(msg string) {
	t := uint64(time.Since(l.start).Seconds())
	l.logger.Printf("[t=%4d:%02d] - %s\n", t/60, t%60, msg)
}

func (l *Log) Printf(format string, v ...any) {
	l.Print(fmt.Sprintf(format, v...))
}

// ProgressLogger reports the progress of a task once per window of steps.
// The format receives the number of completed steps and the current rate.
type ProgressLogger struct {
	log            *Log
	start          time.Time
	format         string
	window         int
	counter, steps int
}

func (l *Log) NewProgressTracker(format string, window int) *ProgressLogger {
	return &ProgressLogger{log: l, start: time.Now(), format: format, window: window}
}

func (p *ProgressLogger) Step(increment int) {
	p.counter += increment
	p.steps += increment
	if p.steps >= p.window {
		now := time.Now()
		count := p.counter / p.window * p.window
		p.log.Printf(p.format, count, float64(p.steps)/now.Sub(p.start).Seconds())
		p.steps = 0
		p.start = now
	}
}

func (p *ProgressLogger) GetCounter() int {
	return p.counter
}
