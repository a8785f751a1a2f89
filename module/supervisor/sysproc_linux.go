//go:build linux

package supervisor

import "syscall"

// nodeSysProcAttr puts every node in its own process group, so a terminal
// interrupt reaches only the orchestrator, and has the kernel kill the node
// if the orchestrator dies without tearing the cluster down.
func nodeSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}
}
