//go:build !unix

package process

import "syscall"

func detachedAttr() *syscall.SysProcAttr {
	return nil
}
