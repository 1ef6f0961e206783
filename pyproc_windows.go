package tablebridge

import (
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"syscall"

	"golang.org/x/sys/windows"
)

func setSignalsForChannel(c chan os.Signal) {
	signal.Notify(c, os.Interrupt)
}

func stopSignals(c chan os.Signal) {
	signal.Stop(c)
}

// setExtraFiles marks the files inheritable and returns their handle values,
// which the host script turns back into file descriptors with msvcrt.
func setExtraFiles(cmd *exec.Cmd, extraFiles []*os.File) []string {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	retv := make([]string, len(extraFiles))
	for i, f := range extraFiles {
		h := windows.Handle(f.Fd())
		windows.SetHandleInformation(h, windows.HANDLE_FLAG_INHERIT, windows.HANDLE_FLAG_INHERIT)
		cmd.SysProcAttr.AdditionalInheritedHandles = append(cmd.SysProcAttr.AdditionalInheritedHandles, syscall.Handle(h))
		retv[i] = strconv.FormatUint(uint64(h), 10)
	}
	return retv
}

// configureChild puts the interpreter in its own process group so a console
// Ctrl+C reaches only the host, which then terminates the child.
func configureChild(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.CreationFlags |= windows.CREATE_NEW_PROCESS_GROUP
}

// Windows has no SIGTERM for console processes.
func terminateSignal(p *os.Process) error {
	return p.Kill()
}
