//go:build !v8 && !(386 || arm)

package quickjs

import lib "modernc.org/libquickjs"

func valueTag(v lib.TJSValue) int32 {
	return int32(v.Ftag)
}
