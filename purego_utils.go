//go:build darwin || linux

// Shared helpers for the purego-loaded native codecs.

package mediakit

import (
	"runtime"
	"unsafe"
)

// libName turns a base library name into the platform file name, e.g.
// "opus" into "libopus.so" or "libopus.dylib".
func libName(base string) string {
	if runtime.GOOS == "darwin" {
		return "lib" + base + ".dylib"
	}
	return "lib" + base + ".so"
}

// goStringFromPtr copies a NUL terminated C string into a Go string.
// Reads at most 1 KiB so a missing terminator cannot run away.
func goStringFromPtr(ptr uintptr) string {
	if ptr == 0 {
		return ""
	}
	p := unsafe.Pointer(ptr)
	var length int
	for length < 1024 {
		if *(*byte)(unsafe.Pointer(uintptr(p) + uintptr(length))) == 0 {
			break
		}
		length++
	}
	if length == 0 {
		return ""
	}
	return string(unsafe.Slice((*byte)(p), length))
}
