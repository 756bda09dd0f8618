package worker

import (
	g "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/mock"

	"github.com/skipor/rescache/runloop"
	"github.com/skipor/rescache/testutil"
)

type loaderTask struct{ name string }

func (loaderTask) Perform(runloop.Context) {}

var _ = g.Describe("Thread", func() {
	var (
		objectProxy *MockObjectProxy
		loaderProxy *MockLoaderProxy
		t           *Thread
	)
	newThread := func(script Script) {
		t = NewThread(testutil.NewLogger(), "w.js", script, objectProxy, loaderProxy)
	}
	g.BeforeEach(func() {
		objectProxy = &MockObjectProxy{}
		loaderProxy = &MockLoaderProxy{}
	})
	g.AfterEach(func() {
		Eventually(t.Done()).Should(BeClosed())
		objectProxy.AssertExpectations(g.GinkgoT())
		loaderProxy.AssertExpectations(g.GinkgoT())
	})

	g.It("closed scope reports error, closes and is destroyed", func() {
		objectProxy.On("PostExceptionToWorkerObject", ErrorEvent{Message: "boom", URL: "w.js"}).Once()
		objectProxy.On("ReportPendingActivity", false).Once()
		objectProxy.On("WorkerGlobalScopeClosed").Run(func(mock.Arguments) { t.Stop() }).Once()
		objectProxy.On("WorkerGlobalScopeDestroyed").Once()
		newThread(func(scope *GlobalScope) error {
			scope.Close()
			return errors.New("boom")
		})
		t.Start()
	})

	g.It("stopped before start skips script", func() {
		objectProxy.On("ReportPendingActivity", false).Once()
		objectProxy.On("WorkerGlobalScopeDestroyed").Once()
		newThread(func(*GlobalScope) error {
			g.Fail("script should not be evaluated")
			return nil
		})
		t.Stop()
		t.Start()
	})

	g.It("stop cancels scope context", func() {
		started := make(chan struct{})
		objectProxy.On("PostExceptionToWorkerObject", ErrorEvent{Message: "context canceled", URL: "w.js"}).Once()
		objectProxy.On("ReportPendingActivity", false).Once()
		objectProxy.On("WorkerGlobalScopeDestroyed").Once()
		newThread(func(scope *GlobalScope) error {
			close(started)
			<-scope.Context().Done()
			return scope.Context().Err()
		})
		t.Start()
		Eventually(started).Should(BeClosed())
		t.Stop()
	})

	g.It("posts tasks to loader", func() {
		task := runloop.NewTask(loaderTask{"load"})
		posted := make(chan struct{})
		loaderProxy.On("PostTaskToLoader", task).Run(func(mock.Arguments) { close(posted) }).Once()
		objectProxy.On("ReportPendingActivity", false).Once()
		objectProxy.On("WorkerGlobalScopeDestroyed").Once()
		newThread(func(scope *GlobalScope) error {
			scope.PostTaskToLoader(task)
			return nil
		})
		t.Start()
		Eventually(posted).Should(BeClosed())
		t.Stop()
	})
})
