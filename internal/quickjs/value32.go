//go:build !v8 && (386 || arm)

package quickjs

import lib "modernc.org/libquickjs"

// On 32-bit targets a JSValue is NaN-boxed in a uint64. Floats are stored
// with an addend that keeps them clear of the small tags compared here.
func valueTag(v lib.TJSValue) int32 {
	return int32(v >> 32)
}
