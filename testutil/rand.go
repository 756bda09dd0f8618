package testutil

import (
	"math/rand"

	"github.com/google/gofuzz"
	. "github.com/onsi/ginkgo"
)

var RandSource = rand.NewSource(GinkgoRandomSeed())
var Rand = rand.New(RandSource)

// NewFuzzer returns fuzzer seeded by ginkgo seed, so failed run can be reproduced with --seed.
func NewFuzzer() *fuzz.Fuzzer {
	return fuzz.New().RandSource(RandSource).NilChance(0)
}
