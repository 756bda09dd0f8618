package log

import (
	"bytes"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/ginkgo/extensions/table"
	. "github.com/onsi/gomega"
)

var _ = Describe("Logger", func() {
	var (
		buf *bytes.Buffer
		l   Logger
	)
	BeforeEach(func() {
		buf = &bytes.Buffer{}
		l = NewLogger(WarnLevel, buf)
	})

	It("filters by level", func() {
		l.Info("skipped")
		l.Warnf("written %v", 1)
		Expect(buf.String()).NotTo(ContainSubstring("skipped"))
		Expect(buf.String()).To(ContainSubstring("written 1"))
	})

	It("with fields keeps parent fields", func() {
		child := l.WithFields(Fields{"worker": 1}).WithFields(Fields{"context": "cache"})
		Expect(child.Fields()).To(Equal(Fields{"worker": 1, "context": "cache"}))
		Expect(l.Fields()).To(BeEmpty())
		child.Error("failed")
		Expect(buf.String()).To(ContainSubstring("worker=1"))
		Expect(buf.String()).To(ContainSubstring("context=cache"))
	})

	It("panic logs message", func() {
		Expect(func() { l.Panicf("bad %s", "state") }).To(PanicWith("bad state"))
		Expect(buf.String()).To(ContainSubstring("bad state"))
	})

	It("nop discards", func() {
		Expect(func() { Nop().Error("nothing") }).NotTo(Panic())
	})

	DescribeTable("level from string",
		func(s string, expected Level) {
			l, err := LevelFromString(s)
			Expect(err).NotTo(HaveOccurred())
			Expect(l).To(Equal(expected))
			Expect(l.String()).To(Equal(s))
		},
		Entry("debug", "DEBUG", DebugLevel),
		Entry("info", "INFO", InfoLevel),
		Entry("warn", "WARN", WarnLevel),
		Entry("error", "ERROR", ErrorLevel),
		Entry("fatal", "FATAL", FatalLevel),
	)

	It("level parse ignores case", func() {
		Expect(LevelFromString("Warn")).To(Equal(WarnLevel))
		_, err := LevelFromString("verbose")
		Expect(err).To(HaveOccurred())
	})
})
