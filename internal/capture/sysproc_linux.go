package capture

import "syscall"

// sysProcAttr puts the driver in its own process group and has the kernel
// signal it if SunLapse itself dies without running cleanup.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true, Pdeathsig: syscall.SIGTERM}
}
