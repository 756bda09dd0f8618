package worker

import (
	"sync/atomic"

	g "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/mock"

	"github.com/skipor/rescache/cache"
	"github.com/skipor/rescache/log"
	"github.com/skipor/rescache/messaging"
)

var _ = g.Describe("Worker", func() {
	var (
		doc *Document
		w   *Worker
		in  *inbox
	)
	g.BeforeEach(func() {
		doc = newTestDocument()
		w = New(doc)
		in = &inbox{}
		in.listen(w)
	})
	g.AfterEach(func() {
		releaseAndWait(doc, w)
	})

	g.It("message from worker is single document task", func() {
		w.Proxy().PostMessageToWorkerObject(messaging.MustSerialize("x"), nil)
		Expect(doc.loop.Len()).To(Equal(1))
		doc.RunPending()
		Expect(in.strings()).To(Equal([]string{"x"}))
		Expect(in.events[0].Ports).To(BeEmpty())
	})

	g.It("reply to message confirms it", func() {
		w.Start("worker.js", echo)
		Expect(w.HasPendingActivity()).To(BeTrue(), "worker initialization")
		Expect(w.PostMessage(messaging.MustSerialize("x"), nil)).To(Succeed())
		runUntil(doc, func() bool { return len(in.events) == 1 })
		Expect(in.strings()).To(Equal([]string{"x"}))
		Expect(in.events[0].Ports).To(BeEmpty())
		runUntil(doc, func() bool { return !w.HasPendingActivity() })
		Expect(w.Proxy().unconfirmedMessageCount).To(BeZero())
	})

	g.It("delivers messages posted before start first, in order", func() {
		for _, m := range []string{"1", "2", "3"} {
			Expect(w.PostMessage(messaging.MustSerialize(m), nil)).To(Succeed())
		}
		w.Start("worker.js", echo)
		Expect(w.Proxy().unconfirmedMessageCount).To(Equal(3))
		Expect(w.Proxy().queuedEarlyTasks).To(BeEmpty())
		Expect(w.PostMessage(messaging.MustSerialize("4"), nil)).To(Succeed())
		runUntil(doc, func() bool { return len(in.events) == 4 })
		Expect(in.strings()).To(Equal([]string{"1", "2", "3", "4"}))
	})

	g.It("script is evaluated before queued messages", func() {
		Expect(w.PostMessage(messaging.MustSerialize("message"), nil)).To(Succeed())
		w.Start("worker.js", func(scope *GlobalScope) error {
			scope.PostMessage(messaging.MustSerialize("script"), nil)
			return echo(scope)
		})
		runUntil(doc, func() bool { return len(in.events) == 2 })
		Expect(in.strings()).To(Equal([]string{"script", "message"}))
	})

	g.Context("terminate", func() {
		g.It("drops messages and stops thread", func() {
			w.Start("worker.js", echo)
			w.Terminate()
			Expect(w.HasPendingActivity()).To(BeFalse())
			Expect(w.PostMessage(messaging.MustSerialize("dropped"), nil)).To(Succeed())
			runUntil(doc, func() bool { return w.Proxy().thread == nil })
			Expect(in.events).To(BeEmpty())
		})

		g.It("before start skips script", func() {
			var evaluated int32
			w.Terminate()
			w.Start("worker.js", func(*GlobalScope) error {
				atomic.StoreInt32(&evaluated, 1)
				return nil
			})
			runUntil(doc, func() bool { return w.Proxy().thread == nil })
			Expect(atomic.LoadInt32(&evaluated)).To(BeZero())
		})

		g.It("start twice panics", func() {
			w.Start("worker.js", echo)
			Expect(func() { w.Start("worker.js", echo) }).To(Panic())
		})
	})

	g.It("closed worker global scope is terminated", func() {
		w.Start("worker.js", func(scope *GlobalScope) error {
			scope.PostMessage(messaging.MustSerialize("before close"), nil)
			scope.Close()
			return echo(scope)
		})
		runUntil(doc, func() bool { return w.Proxy().AskedToTerminate() })
		Expect(w.PostMessage(messaging.MustSerialize("dropped"), nil)).To(Succeed())
		runUntil(doc, func() bool { return w.Proxy().thread == nil })
		Expect(in.strings()).To(Equal([]string{"before close"}))
	})

	g.It("release terminates running worker", func() {
		w.Start("worker.js", func(scope *GlobalScope) error {
			scope.SetOnMessage(func(messaging.MessageEvent) {})
			return nil
		})
		w.Release()
		Expect(w.Proxy().workerObject).To(BeNil())
		runUntil(doc, isClosed(w.Done()))
		Expect(w.Proxy().AskedToTerminate()).To(BeTrue())
	})

	g.It("release of not started worker destroys proxy", func() {
		w.Release()
		runUntil(doc, isClosed(w.Done()))
	})

	g.Context("errors", func() {
		var console *MockConsole
		g.BeforeEach(func() {
			console = &MockConsole{}
			doc.SetConsole(console)
		})
		g.AfterEach(func() {
			console.AssertExpectations(g.GinkgoT())
		})

		g.It("not handled are reported to document", func() {
			reported := make(chan struct{})
			console.On("ReportException", ErrorEvent{Message: "boom", URL: "worker.js"}).
				Run(func(mock.Arguments) { close(reported) }).Once()
			w.Start("worker.js", func(*GlobalScope) error { return errors.New("boom") })
			runUntil(doc, isClosed(reported))
		})

		g.It("handled are not reported", func() {
			var events []ErrorEvent
			w.SetOnError(func(e ErrorEvent) bool {
				events = append(events, e)
				return true
			})
			w.Start("worker.js", func(*GlobalScope) error { panic("oops") })
			runUntil(doc, func() bool { return len(events) == 1 })
			Expect(events[0].Message).To(ContainSubstring("oops"))
		})

		g.It("console messages are added to document", func() {
			msg := ConsoleMessage{Level: log.WarnLevel, Text: "warning", URL: "worker.js", Line: 1}
			added := make(chan struct{})
			console.On("AddConsoleMessage", msg).Run(func(mock.Arguments) { close(added) }).Once()
			w.Start("worker.js", func(scope *GlobalScope) error {
				scope.AddConsoleMessage(msg)
				return nil
			})
			runUntil(doc, isClosed(added))
		})
	})

	g.It("notifies network state change", func() {
		w.Start("worker.js", func(scope *GlobalScope) error {
			scope.SetOnNetworkStateChange(func(online bool) {
				scope.PostMessage(messaging.MustSerialize(map[bool]string{true: "online", false: "offline"}[online]), nil)
			})
			return nil
		})
		w.NotifyNetworkStateChange(false)
		w.NotifyNetworkStateChange(true)
		runUntil(doc, func() bool { return len(in.events) == 2 })
		Expect(in.strings()).To(Equal([]string{"offline", "online"}))
	})

	g.Context("ports", func() {
		var p1, p2 *messaging.Port
		g.BeforeEach(func() {
			p1, p2 = messaging.NewMessageChannel(doc, doc)
		})

		g.It("transferred to worker", func() {
			var viaPort []string
			p1.SetOnMessage(func(ev messaging.MessageEvent) {
				var s string
				Expect(ev.Data.Deserialize(&s)).To(Succeed())
				viaPort = append(viaPort, s)
			})
			w.Start("worker.js", func(scope *GlobalScope) error {
				scope.SetOnMessage(func(ev messaging.MessageEvent) {
					port := ev.Ports[0]
					port.PostMessage(messaging.MustSerialize("via port"), nil)
				})
				return nil
			})
			Expect(w.PostMessage(messaging.MustSerialize("take port"), []*messaging.Port{p2})).To(Succeed())
			Expect(p2.IsNeutered()).To(BeTrue())
			runUntil(doc, func() bool { return len(viaPort) == 1 })
			Expect(viaPort).To(Equal([]string{"via port"}))
		})

		g.It("transfer failure changes nothing", func() {
			w.Start("worker.js", echo)
			err := w.PostMessage(messaging.MustSerialize("x"), []*messaging.Port{p1, p1})
			Expect(errors.Cause(err)).To(Equal(messaging.ErrDataClone))
			Expect(p1.IsEntangled()).To(BeTrue())
			Expect(w.Proxy().unconfirmedMessageCount).To(BeZero())
		})
	})

	g.It("removes request from session caches on document thread", func() {
		req := cache.NewRequest("http://example.com/script.js", "")
		doc.MemoryCache().Add(cache.NewResource(req, cache.Script, cache.DefaultSessionID))
		doc.MemoryCache().Add(cache.NewResource(req, cache.Script, cache.NewSessionID()))
		w.Start("worker.js", func(scope *GlobalScope) error {
			cache.RemoveRequestFromSessionCaches(scope, req)
			scope.PostMessage(messaging.MustSerialize("removed"), nil)
			return nil
		})
		runUntil(doc, func() bool { return len(in.events) == 1 })
		Expect(doc.MemoryCache().Len()).To(BeZero())
	})
})
