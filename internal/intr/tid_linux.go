package intr

import "golang.org/x/sys/unix"

func threadID() int {
	return unix.Gettid()
}

// onThread reports whether the caller runs on the OS thread tid.
func onThread(tid int) bool {
	return tid != 0 && unix.Gettid() == tid
}
