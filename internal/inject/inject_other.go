//go:build !windows

package inject

import "errors"

// errUnsupportedPlatform is returned by both the synthetic-input path and
// the paste keystroke on platforms without the Win32 SendInput backend
// (§4.10), so sendinput and clipboard-paste modes both fail here; only the
// clipboard write itself (github.com/atotto/clipboard) is cross-platform.
var errUnsupportedPlatform = errors.New("inject: sendinput backend not implemented on this platform")

func sendInputText(text string, sendEnter bool) error {
	return errUnsupportedPlatform
}

func sendPasteKeystroke() error {
	return errUnsupportedPlatform
}

func isOwnWindowFocused() bool {
	return false
}
