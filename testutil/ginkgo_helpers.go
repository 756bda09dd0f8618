package testutil

import (
	"fmt"
	"os"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/skipor/rescache/log"
)

func Byf(format string, args ...interface{}) {
	By(fmt.Sprintf(format, args...))
	fmt.Fprintln(GinkgoWriter)
}

// NewLogger returns debug logger, that writes to GinkgoWriter. Output is shown only for failed tests.
func NewLogger() log.Logger {
	return log.NewLogger(log.DebugLevel, GinkgoWriter)
}

func TmpFileName() string {
	f, err := os.CreateTemp("", "go_test_tmp_")
	Expect(err).To(BeNil())
	filename := f.Name()
	err = f.Close()
	Expect(err).To(BeNil())
	err = os.Remove(filename)
	Expect(err).To(BeNil())
	return filename
}

// TmpFile writes data to temporary file with suffix and returns its name.
func TmpFile(suffix string, data []byte) string {
	f, err := os.CreateTemp("", "go_test_tmp_*"+suffix)
	Expect(err).To(BeNil())
	defer f.Close()
	_, err = f.Write(data)
	Expect(err).To(BeNil())
	return f.Name()
}
