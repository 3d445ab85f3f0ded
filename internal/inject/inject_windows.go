//go:build windows

package inject

import (
	"fmt"
	"os"
	"unicode/utf16"
	"unsafe"

	"golang.org/x/sys/windows"
)

// Win32 SendInput primitives. golang.org/x/sys/windows doesn't wrap
// SendInput itself, so we bind the three procs we need directly off
// user32.dll the same way the x/sys/windows package binds its own procs.
var (
	user32                      = windows.NewLazySystemDLL("user32.dll")
	procSendInput               = user32.NewProc("SendInput")
	procGetForegroundWindow     = user32.NewProc("GetForegroundWindow")
	procGetWindowThreadProcessId = user32.NewProc("GetWindowThreadProcessId")
	procGetAsyncKeyState        = user32.NewProc("GetAsyncKeyState")
)

const (
	inputKeyboard   = 1
	keyEventFKeyUp  = 0x0002
	keyEventFUnicode = 0x0004

	vkShift   = 0x10
	vkControl = 0x11
	vkMenu    = 0x12 // Alt
	vkLWin    = 0x5B
	vkRWin    = 0x5C
	vkReturn  = 0x0D
	vkV       = 0x56
)

// keybdInput mirrors Win32's KEYBDINPUT struct.
type keybdInput struct {
	wVk         uint16
	wScan       uint16
	dwFlags     uint32
	time        uint32
	dwExtraInfo uintptr
}

// rawInput mirrors Win32's tagINPUT union, keyboard variant only — the
// struct must be padded to the union's full size on amd64.
type rawInput struct {
	kind uint32
	_    uint32 // alignment padding to match the union's 8-byte field start
	ki   keybdInput
	_    uint64 // pad out to the union's largest member (MOUSEINPUT) size
}

func sendRawInputs(inputs []rawInput) error {
	if len(inputs) == 0 {
		return nil
	}
	n, _, err := procSendInput.Call(
		uintptr(len(inputs)),
		uintptr(unsafe.Pointer(&inputs[0])),
		unsafe.Sizeof(inputs[0]),
	)
	if n == 0 {
		return fmt.Errorf("SendInput: %w", err)
	}
	return nil
}

func keyEvent(vk uint16, scan uint16, flags uint32) rawInput {
	return rawInput{kind: inputKeyboard, ki: keybdInput{wVk: vk, wScan: scan, dwFlags: flags}}
}

// releaseHeldModifiers synthesizes key-up events for any of Shift/Ctrl/Alt/
// Win currently held down, per §4.10 "must release any currently held
// modifier keys first to avoid hotkey re-entry" — the toggle hotkey itself
// is usually a modifier chord, so without this the injected text would
// start while those keys are still logically down.
func releaseHeldModifiers() {
	for _, vk := range []uint16{vkShift, vkControl, vkMenu, vkLWin, vkRWin} {
		state, _, _ := procGetAsyncKeyState.Call(uintptr(vk))
		if state&0x8000 != 0 {
			_ = sendRawInputs([]rawInput{keyEvent(vk, 0, keyEventFKeyUp)})
		}
	}
}

// sendInputText synthesizes one Unicode key event pair (down+up) per UTF-16
// code unit, so multi-code-unit graphemes and surrogate pairs for
// non-BMP runes round-trip correctly. Newlines become the Enter virtual
// key when sendEnter is true, otherwise they're dropped per §4.10's
// configurable no-op policy.
func sendInputText(text string, sendEnter bool) error {
	releaseHeldModifiers()

	units := utf16.Encode([]rune(text))
	inputs := make([]rawInput, 0, len(units)*2)
	for _, u := range units {
		if u == '\n' {
			if !sendEnter {
				continue
			}
			inputs = append(inputs,
				keyEvent(vkReturn, 0, 0),
				keyEvent(vkReturn, 0, keyEventFKeyUp),
			)
			continue
		}
		inputs = append(inputs,
			keyEvent(0, u, keyEventFUnicode),
			keyEvent(0, u, keyEventFUnicode|keyEventFKeyUp),
		)
	}
	return sendRawInputs(inputs)
}

// sendPasteKeystroke synthesizes Ctrl+V.
func sendPasteKeystroke() error {
	releaseHeldModifiers()
	return sendRawInputs([]rawInput{
		keyEvent(vkControl, 0, 0),
		keyEvent(vkV, 0, 0),
		keyEvent(vkV, 0, keyEventFKeyUp),
		keyEvent(vkControl, 0, keyEventFKeyUp),
	})
}

// isOwnWindowFocused reports whether the foreground window belongs to this
// process. The engine core has no window of its own; a hosting GUI shell
// running in the same process would own one, so this compares the
// foreground window's owning process id against our own — the practical
// equivalent of "is focus on the engine's own window" for a headless core.
func isOwnWindowFocused() bool {
	hwnd, _, _ := procGetForegroundWindow.Call()
	if hwnd == 0 {
		return false
	}
	var pid uint32
	procGetWindowThreadProcessId.Call(hwnd, uintptr(unsafe.Pointer(&pid)))
	return int(pid) == os.Getpid()
}
