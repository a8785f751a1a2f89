//go:build !linux

package supervisor

import "syscall"

func nodeSysProcAttr() *syscall.SysProcAttr {
	return nil
}
