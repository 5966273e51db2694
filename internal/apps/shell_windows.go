//go:build windows

package apps

import (
	"os/exec"
	"syscall"
)

// CREATE_NO_WINDOW keeps powershell from flashing a console when the
// binary runs as a GUI subsystem program.
const CREATE_NO_WINDOW = 0x08000000

func hideWindow(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{HideWindow: true, CreationFlags: CREATE_NO_WINDOW}
}
