package integration

import (
	"os/exec"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	. "github.com/onsi/gomega/gbytes"
	. "github.com/onsi/gomega/gexec"

	"github.com/skipor/rescache/cmd/rescache/config"
	"github.com/skipor/rescache/testutil"
)

var _ = Describe("Integration", func() {
	const SessionWaitTime = 30 * time.Second
	var (
		inConf   config.Config // App config to run.
		confFile string
		session  *Session
	)
	BeforeEach(func() {
		inConf = *config.Default()
		inConf.LogLevel = "warn"
		inConf.Cache.Capacity = "256KiB"
		inConf.Cache.MaxDeadCapacity = "128KiB"
		inConf.Load.Workers = 2
		inConf.Load.Requests = 300
		inConf.Load.Resources = 100
		inConf.Load.MaxResourceSize = "8KiB"
	})

	Run := func(args ...string) {
		confFile = testutil.TmpFile(".yaml", config.MarshalYAML(&inConf))
		var err error
		command := exec.Command(RescacheCLI, append(args, "--config", confFile)...)
		session, err = Start(command, GinkgoWriter, GinkgoWriter)
		Expect(err).ToNot(HaveOccurred(), "%v", err)
	}
	AfterEach(func() {
		session.Terminate().Wait(SessionWaitTime)
	})

	It("simulate prints report", func() {
		Run("simulate", "--metrics")
		Eventually(session, SessionWaitTime).Should(Exit(0))
		Expect(session.Out).To(Say("Requests: 600"))
		Expect(session.Out).To(Say("Hit ratio"))
		Expect(session.Out).To(Say("cache.hits"))
	})

	It("flags override config file", func() {
		Run("simulate", "--workers", "1", "--cache-disabled")
		Eventually(session, SessionWaitTime).Should(Exit(0))
		Expect(session.Out).To(Say("Requests: 300, hits: 0"))
	})

	It("config prints merged config", func() {
		Run("config", "--json", "--log-level", "debug")
		Eventually(session, SessionWaitTime).Should(Exit(0))
		Expect(session.Out).To(Say(`"log-level":"debug"`))
		Expect(session.Out).To(Say(`"capacity":"256KiB"`))
	})

	It("invalid config fails", func() {
		inConf.LogLevel = "verbose"
		Run("simulate")
		Eventually(session, SessionWaitTime).Should(Exit(1))
		Expect(session.Err).To(Say("Log level parse error"))
	})
})
