//go:build linux

package portal

import (
	"context"
	"errors"
	"fmt"
	"mediabridge/internal/platform"
	"strings"

	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	busName     = "org.freedesktop.portal.Desktop"
	objectPath  = dbus.ObjectPath("/org/freedesktop/portal/desktop")
	requestRoot = "/org/freedesktop/portal/desktop/request/"

	settingsInterface    = "org.freedesktop.portal.Settings"
	fileChooserInterface = "org.freedesktop.portal.FileChooser"
	requestInterface     = "org.freedesktop.portal.Request"

	signalSettingChanged = settingsInterface + ".SettingChanged"
	signalResponse       = requestInterface + ".Response"

	appearanceNamespace = "org.freedesktop.appearance"
	colorSchemeKey      = "color-scheme"
	preferDark          = 1

	responseSuccess   = 0
	responseCancelled = 1

	signalBuffer = 8
)

var ErrNoFileChosen = errors.New("file chooser returned no files")

// Portal reaches the XDG desktop portal on its own session bus connection.
type Portal struct {
	conn    *dbus.Conn
	desktop dbus.BusObject
}

var (
	_ platform.FilePicker  = (*Portal)(nil)
	_ platform.ThemeSource = (*Portal)(nil)
)

func New() (*Portal, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}
	return &Portal{conn: conn, desktop: conn.Object(busName, objectPath)}, nil
}

func (p *Portal) Close() error {
	return p.conn.Close()
}

// DarkMode reads the desktop color scheme. "No preference" counts as light.
func (p *Portal) DarkMode(ctx context.Context) (bool, error) {
	var value dbus.Variant
	err := p.desktop.CallWithContext(ctx, settingsInterface+".ReadOne", 0, appearanceNamespace, colorSchemeKey).Store(&value)
	if err != nil {
		// Portals before version 2 only have Read, which wraps the value once more.
		err = p.desktop.CallWithContext(ctx, settingsInterface+".Read", 0, appearanceNamespace, colorSchemeKey).Store(&value)
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", colorSchemeKey, err)
	}

	dark, ok := colorSchemeDark(value)
	if !ok {
		return false, fmt.Errorf("%s has type %s", colorSchemeKey, value.Signature())
	}
	return dark, nil
}

func (p *Portal) WatchDarkMode(ctx context.Context) (<-chan bool, error) {
	match := []dbus.MatchOption{
		dbus.WithMatchObjectPath(objectPath),
		dbus.WithMatchInterface(settingsInterface),
		dbus.WithMatchMember("SettingChanged"),
		dbus.WithMatchOption("arg0", appearanceNamespace),
	}
	if err := p.conn.AddMatchSignal(match...); err != nil {
		return nil, fmt.Errorf("watch settings: %w", err)
	}
	signals := make(chan *dbus.Signal, signalBuffer)
	p.conn.Signal(signals)

	release := func() {
		p.conn.RemoveSignal(signals)
		_ = p.conn.RemoveMatchSignal(match...)
	}

	dark, err := p.DarkMode(ctx)
	if err != nil {
		release()
		return nil, err
	}

	changes := make(chan bool, 1)
	changes <- dark
	go func() {
		defer close(changes)
		defer release()

		last := dark
		for {
			select {
			case <-ctx.Done():
				return
			case signal, ok := <-signals:
				if !ok {
					return
				}
				next, ok := darkModeSetting(signal)
				if !ok || next == last {
					continue
				}
				last = next
				select {
				case changes <- next:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return changes, nil
}

// PickFile shows the portal's open or save dialog and waits for the user.
// Dismissing the dialog is not an error; the URI is then empty.
func (p *Portal) PickFile(ctx context.Context, req platform.FileRequest) (string, error) {
	names := p.conn.Names()
	if len(names) == 0 {
		return "", errors.New("session bus connection has no unique name")
	}
	token := "mediabridge_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	handle := requestPath(names[0], token)

	responses := make(chan *dbus.Signal, signalBuffer)
	p.conn.Signal(responses)
	defer p.conn.RemoveSignal(responses)

	if err := p.watchRequest(handle); err != nil {
		return "", err
	}
	defer p.unwatchRequest(handle)

	method, options := fileChooserCall(req, token)
	var returned dbus.ObjectPath
	if err := p.desktop.CallWithContext(ctx, method, 0, "", req.Title, options).Store(&returned); err != nil {
		return "", fmt.Errorf("open file chooser: %w", err)
	}
	if returned != handle {
		if err := p.watchRequest(returned); err != nil {
			return "", err
		}
		defer p.unwatchRequest(returned)
		handle = returned
	}

	for {
		select {
		case <-ctx.Done():
			p.closeRequest(handle)
			return "", ctx.Err()
		case signal, ok := <-responses:
			if !ok {
				return "", errors.New("session bus connection closed")
			}
			if signal.Name != signalResponse || signal.Path != handle {
				continue
			}
			return parseResponse(signal)
		}
	}
}

func (p *Portal) watchRequest(handle dbus.ObjectPath) error {
	if err := p.conn.AddMatchSignal(requestMatch(handle)...); err != nil {
		return fmt.Errorf("watch request %s: %w", handle, err)
	}
	return nil
}

func (p *Portal) unwatchRequest(handle dbus.ObjectPath) {
	_ = p.conn.RemoveMatchSignal(requestMatch(handle)...)
}

func (p *Portal) closeRequest(handle dbus.ObjectPath) {
	call := p.conn.Object(busName, handle).Call(requestInterface+".Close", 0)
	if call.Err != nil {
		log.Debug().Err(call.Err).Str("request", string(handle)).Msg("portal: closing request failed")
	}
}

func requestMatch(handle dbus.ObjectPath) []dbus.MatchOption {
	return []dbus.MatchOption{
		dbus.WithMatchObjectPath(handle),
		dbus.WithMatchInterface(requestInterface),
		dbus.WithMatchMember("Response"),
	}
}

// requestPath predicts the handle the portal creates for token, so the
// response can be watched before the call is made.
func requestPath(uniqueName string, token string) dbus.ObjectPath {
	sender := strings.ReplaceAll(strings.TrimPrefix(uniqueName, ":"), ".", "_")
	return dbus.ObjectPath(requestRoot + sender + "/" + token)
}

type filterPattern struct {
	Kind    uint32
	Pattern string
}

type fileFilter struct {
	Name     string
	Patterns []filterPattern
}

// newFileFilter folds every glob into one filter named after the globs.
func newFileFilter(globs []string) fileFilter {
	filter := fileFilter{Name: strings.Join(globs, ", ")}
	for _, glob := range globs {
		filter.Patterns = append(filter.Patterns, filterPattern{Kind: 0, Pattern: glob})
	}
	return filter
}

func fileChooserCall(req platform.FileRequest, token string) (string, map[string]dbus.Variant) {
	options := map[string]dbus.Variant{
		"handle_token": dbus.MakeVariant(token),
		"modal":        dbus.MakeVariant(true),
	}
	if len(req.Filters) > 0 {
		options["filters"] = dbus.MakeVariant([]fileFilter{newFileFilter(req.Filters)})
	}

	if req.Save {
		if req.FileName != "" {
			options["current_name"] = dbus.MakeVariant(req.FileName)
		}
		return fileChooserInterface + ".SaveFile", options
	}
	options["multiple"] = dbus.MakeVariant(false)
	options["directory"] = dbus.MakeVariant(false)
	return fileChooserInterface + ".OpenFile", options
}

func parseResponse(signal *dbus.Signal) (string, error) {
	if len(signal.Body) != 2 {
		return "", fmt.Errorf("file chooser response has %d values", len(signal.Body))
	}
	code, _ := signal.Body[0].(uint32)
	switch code {
	case responseSuccess:
	case responseCancelled:
		return "", nil
	default:
		return "", fmt.Errorf("file chooser ended with response %d", code)
	}

	results, _ := signal.Body[1].(map[string]dbus.Variant)
	uris, _ := results["uris"].Value().([]string)
	if len(uris) == 0 {
		return "", ErrNoFileChosen
	}
	return uris[0], nil
}

func darkModeSetting(signal *dbus.Signal) (bool, bool) {
	if signal.Name != signalSettingChanged || len(signal.Body) != 3 {
		return false, false
	}
	namespace, _ := signal.Body[0].(string)
	key, _ := signal.Body[1].(string)
	if namespace != appearanceNamespace || key != colorSchemeKey {
		return false, false
	}
	value, ok := signal.Body[2].(dbus.Variant)
	if !ok {
		return false, false
	}
	return colorSchemeDark(value)
}

func colorSchemeDark(value dbus.Variant) (bool, bool) {
	inner := value.Value()
	for {
		nested, ok := inner.(dbus.Variant)
		if !ok {
			break
		}
		inner = nested.Value()
	}
	scheme, ok := inner.(uint32)
	if !ok {
		return false, false
	}
	return scheme == preferDark, true
}
