package preflight

import (
	"fmt"
	"syscall"
)

// MinFileDescriptors is the recommended file descriptor limit.
const MinFileDescriptors = 256

// CheckFileDescriptors warns when the file descriptor limit is low.
func (c *Checker) CheckFileDescriptors() CheckResult {
	result := CheckResult{
		Name:     "file_descriptors",
		Required: false,
	}

	var rLimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("failed to check file descriptor limit: %v", err)
		return result
	}

	if rLimit.Cur < MinFileDescriptors {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%d (recommended: %d)", rLimit.Cur, MinFileDescriptors)
		result.Details = "Run 'ulimit -n 1024' to increase the limit"
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%d (recommended: %d)", rLimit.Cur, MinFileDescriptors)
	return result
}
