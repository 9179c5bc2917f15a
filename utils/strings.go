package utils

import "unsafe"

// BytesToString aliases b without copying. The result must not outlive
// the buffer, which for fasthttp means the request handler.
func BytesToString(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return unsafe.String(unsafe.SliceData(b), len(b))
}
