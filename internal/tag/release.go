//go:build !debug

package tag

// Debug enables extra runtime checks. Build with "-tags debug" to turn them on.
const Debug = false
