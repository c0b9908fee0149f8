package notify

import (
	"errors"
	"strings"

	"github.com/gen2brain/beeep"
)

var ErrEmptyNotification = errors.New("notification needs a title or body")

type Notifier interface {
	Notify(title string, body string) error
}

// Desktop shows notifications through the OS notification daemon.
type Desktop struct {
	AppName string
	Icon    string
}

func NewDesktop(appName string) *Desktop {
	return &Desktop{AppName: appName}
}

func (d *Desktop) Notify(title string, body string) error {
	title = strings.TrimSpace(title)
	body = strings.TrimSpace(body)
	if title == "" && body == "" {
		return ErrEmptyNotification
	}
	if title == "" {
		title = d.AppName
	}
	return beeep.Notify(title, body, d.Icon)
}

// Func adapts a plain function to Notifier.
type Func func(title string, body string) error

func (f Func) Notify(title string, body string) error {
	return f(title, body)
}
