//go:build windows

package activation

import (
	"context"
	"errors"
	"runtime"
	"syscall"
	"unsafe"

	ole "github.com/go-ole/go-ole"
	"golang.org/x/sys/windows"
)

var (
	clsidApplicationActivationManager = ole.NewGUID("{45BA127D-10A8-46EA-8AB7-56EA9078943C}")
	iidIApplicationActivationManager  = ole.NewGUID("{2E941141-7F97-4756-BA1D-9DECDE894A3D}")
)

const (
	aoNone          = 0x0
	sFalse          = 0x1
	rpcEChangedMode = 0x80010106
)

type applicationActivationManager struct {
	ole.IUnknown
}

type applicationActivationManagerVtbl struct {
	ole.IUnknownVtbl
	ActivateApplication uintptr
	ActivateForFile     uintptr
	ActivateForProtocol uintptr
}

func (m *applicationActivationManager) vtbl() *applicationActivationManagerVtbl {
	return (*applicationActivationManagerVtbl)(unsafe.Pointer(m.RawVTable))
}

func (m *applicationActivationManager) activateApplication(id, args string) (uint32, uint32, error) {
	idp, err := windows.UTF16PtrFromString(id)
	if err != nil {
		return 0, 0, err
	}
	var argp *uint16
	if args != "" {
		if argp, err = windows.UTF16PtrFromString(args); err != nil {
			return 0, 0, err
		}
	}
	var pid uint32
	hr, _, _ := syscall.SyscallN(m.vtbl().ActivateApplication,
		uintptr(unsafe.Pointer(m)),
		uintptr(unsafe.Pointer(idp)),
		uintptr(unsafe.Pointer(argp)),
		aoNone,
		uintptr(unsafe.Pointer(&pid)),
	)
	runtime.KeepAlive(idp)
	runtime.KeepAlive(argp)
	if int32(hr) < 0 {
		return 0, uint32(hr), ole.NewError(hr)
	}
	return pid, 0, nil
}

type comActivator struct{}

// System returns the IApplicationActivationManager activator.
func System() Activator { return comActivator{} }

func (comActivator) Activate(ctx context.Context, req Request) (uint32, error) {
	if err := ctx.Err(); err != nil {
		return 0, &Error{Kind: PlatformFailure, ActivationID: req.ActivationID, Err: err}
	}
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := ole.CoInitializeEx(0, ole.COINIT_APARTMENTTHREADED); err != nil {
		var oe *ole.OleError
		switch {
		case errors.As(err, &oe) && oe.Code() == sFalse:
			defer ole.CoUninitialize()
		case errors.As(err, &oe) && uint32(oe.Code()) == rpcEChangedMode:
			// thread already in an MTA; usable as is
		default:
			return 0, comFailure(req.ActivationID, err)
		}
	} else {
		defer ole.CoUninitialize()
	}

	unk, err := ole.CreateInstance(clsidApplicationActivationManager, iidIApplicationActivationManager)
	if err != nil {
		return 0, comFailure(req.ActivationID, err)
	}
	mgr := (*applicationActivationManager)(unsafe.Pointer(unk))
	defer mgr.Release()

	pid, hr, err := mgr.activateApplication(req.ActivationID, windows.ComposeCommandLine(req.Args))
	if err != nil {
		if hr != 0 {
			return 0, FromHRESULT(req.ActivationID, hr, err)
		}
		return 0, &Error{Kind: PlatformFailure, ActivationID: req.ActivationID, Err: err}
	}
	return pid, nil
}

func comFailure(id string, err error) *Error {
	var oe *ole.OleError
	if errors.As(err, &oe) {
		return FromHRESULT(id, uint32(oe.Code()), err)
	}
	return &Error{Kind: PlatformFailure, ActivationID: id, Err: err}
}
