// Package worker contains dedicated worker plumbing: document side worker object,
// messaging proxy between document and worker threads, worker thread with its
// global scope, and synchronous loader bridge.
//
// Document and every worker global scope run their own runloop.Loop on their own goroutine.
// State owned by one thread is never touched by other: all cross-thread interaction
// is a task carrying copied data, posted to the loop of the owner.
package worker

import (
	"fmt"

	"github.com/skipor/rescache/log"
	"github.com/skipor/rescache/messaging"
)

// Context is script execution context: document or worker global scope.
type Context interface {
	messaging.Context
	ReportException(e ErrorEvent)
	AddConsoleMessage(m ConsoleMessage)
}

// ErrorEvent describes uncaught script error.
type ErrorEvent struct {
	Message string
	URL     string
	Line    int
	Column  int
}

func (e ErrorEvent) String() string {
	return fmt.Sprintf("%s:%d:%d: %s", e.URL, e.Line, e.Column, e.Message)
}

type ConsoleMessage struct {
	Level  log.Level
	Text   string
	URL    string
	Line   int
	Column int
}

func (m ConsoleMessage) String() string {
	if m.URL == "" {
		return m.Text
	}
	return fmt.Sprintf("%s:%d:%d: %s", m.URL, m.Line, m.Column, m.Text)
}

// Console receives reports of document context.
type Console interface {
	AddConsoleMessage(m ConsoleMessage)
	ReportException(e ErrorEvent)
}

type logConsole struct {
	log log.Logger
}

var _ Console = logConsole{}

func (c logConsole) AddConsoleMessage(m ConsoleMessage) {
	switch m.Level {
	case log.DebugLevel:
		c.log.Debug(m)
	case log.InfoLevel:
		c.log.Info(m)
	case log.WarnLevel:
		c.log.Warn(m)
	default:
		c.log.Error(m)
	}
}

func (c logConsole) ReportException(e ErrorEvent) {
	c.log.Errorf("Uncaught exception: %s", e)
}
