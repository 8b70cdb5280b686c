//go:build linux

package logger

import (
	"syscall"
	"unsafe"
)

// tcgets is the Linux "get terminal attributes" ioctl.
const tcgets = 0x5401

// isTerminal reports whether fd is attached to a terminal, so the text
// handler only emits color codes where they will render.
func isTerminal(fd uintptr) bool {
	var t syscall.Termios
	_, _, errno := syscall.Syscall6(
		syscall.SYS_IOCTL, fd, tcgets,
		uintptr(unsafe.Pointer(&t)), 0, 0, 0,
	)
	return errno == 0
}
