package tablebridge

import (
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"syscall"

	"golang.org/x/sys/unix"
)

// setSignalsForChannel configures the channel to receive SIGINT and SIGTERM.
func setSignalsForChannel(c chan os.Signal) {
	signal.Notify(c, os.Interrupt, unix.SIGTERM)
}

func stopSignals(c chan os.Signal) {
	signal.Stop(c)
}

// setExtraFiles attaches extra files to the command and returns their FD numbers.
// Extra files start at FD 3 (after stdin=0, stdout=1, stderr=2).
func setExtraFiles(cmd *exec.Cmd, extraFiles []*os.File) []string {
	cmd.ExtraFiles = extraFiles
	retv := make([]string, len(extraFiles))
	for i := range extraFiles {
		retv[i] = strconv.Itoa(i + 3)
	}
	return retv
}

// configureChild makes the kernel kill the interpreter if the host dies
// without cleaning up.
func configureChild(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Pdeathsig = unix.SIGKILL
}

func terminateSignal(p *os.Process) error {
	return p.Signal(unix.SIGTERM)
}
