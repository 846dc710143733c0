//go:build !windows

package tactile

import (
	"errors"
	"os"
	"os/exec"
	"runtime"
	"syscall"
)

// getProcessResourceUsage extracts resource usage on Unix systems.
func getProcessResourceUsage(cmd *exec.Cmd) *ResourceUsage {
	if cmd.ProcessState == nil {
		return nil
	}

	rusage, ok := cmd.ProcessState.SysUsage().(*syscall.Rusage)
	if !ok || rusage == nil {
		return nil
	}

	return &ResourceUsage{
		UserTimeMs:   rusage.Utime.Sec*1000 + int64(rusage.Utime.Usec/1000),
		SystemTimeMs: rusage.Stime.Sec*1000 + int64(rusage.Stime.Usec/1000),
		MaxRSSBytes:  maxRSSBytes(rusage),
	}
}

// maxRSSBytes normalizes ru_maxrss, which darwin reports in bytes and
// everything else in kilobytes.
func maxRSSBytes(rusage *syscall.Rusage) int64 {
	if runtime.GOOS == "darwin" {
		return int64(rusage.Maxrss)
	}
	return int64(rusage.Maxrss) * 1024
}

// setupProcessGroup configures the command to run in its own process group.
// This allows killing all child processes when the parent is terminated.
func setupProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

// killProcessGroup kills the process and all its children on Unix.
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}

	pgid, err := syscall.Getpgid(cmd.Process.Pid)
	if err == nil && pgid > 0 {
		if err := syscall.Kill(-pgid, syscall.SIGKILL); err != nil {
			syscall.Kill(-pgid, syscall.SIGTERM)
		}
	}

	// Also kill the main process directly as a fallback
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}
