//go:build linux

package main

import (
	"mediabridge/internal/platform"
	"mediabridge/internal/platform/linux/mpris"
	"mediabridge/internal/platform/linux/portal"
)

func newPlatformSource() (platform.Source, error) {
	source, err := mpris.New()
	if err != nil {
		return nil, err
	}
	return source, nil
}

func newDesktopPortal() (desktopPortal, error) {
	p, err := portal.New()
	if err != nil {
		return nil, err
	}
	return p, nil
}
