//go:build !linux

package main

import "mediabridge/internal/platform"

func newPlatformSource() (platform.Source, error) {
	return nil, platform.ErrUnsupported
}

func newDesktopPortal() (desktopPortal, error) {
	return nil, platform.ErrUnsupported
}
