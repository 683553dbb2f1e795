//go:build !linux && !darwin

package log

func isTerminalFd(fd int) bool {
	return false
}
