package utils

import (
	"unsafe"
)

// BytesToString reinterprets b as a string without copying. The result
// aliases b and must not outlive it; meant for transient comparisons on
// request hot paths.
func BytesToString(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return *(*string)(unsafe.Pointer(&b))
}
