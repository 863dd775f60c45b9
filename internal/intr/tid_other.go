//go:build !linux

package intr

import "os"

// threadID falls back to the process id where thread ids are not exposed.
func threadID() int {
	return os.Getpid()
}

// onThread cannot tell threads apart without thread ids.
func onThread(int) bool {
	return false
}
