package main

import (
	"context"
	"errors"
	"mediabridge/internal/platform"
	"mediabridge/internal/session"
	"strings"
)

var (
	errAppIDRequired     = errors.New("appId is required")
	errRequestIDRequired = errors.New("requestId is required")
)

// SessionService is the host-facing command surface of the session engine.
type SessionService struct {
	commands *session.Inlet
	outbound *session.Dispatcher
}

func NewSessionService(commands *session.Inlet, outbound *session.Dispatcher) *SessionService {
	return &SessionService{commands: commands, outbound: outbound}
}

func (s *SessionService) RefreshSessions(ctx context.Context) error {
	return s.commands.Send(ctx, session.Command{Kind: session.CommandRefreshSessions})
}

func (s *SessionService) Skip(ctx context.Context, appID string) error {
	return s.sendToPlayer(ctx, session.CommandSkip, appID)
}

func (s *SessionService) Mute(ctx context.Context, appID string) error {
	return s.sendToPlayer(ctx, session.CommandMute, appID)
}

func (s *SessionService) Unmute(ctx context.Context, appID string) error {
	return s.sendToPlayer(ctx, session.CommandUnmute, appID)
}

func (s *SessionService) Shutdown(ctx context.Context) error {
	return s.commands.Send(ctx, session.Command{Kind: session.CommandShutdown})
}

func (s *SessionService) SetAlbumArt(ctx context.Context, enabled bool) error {
	return s.commands.Send(ctx, session.Command{Kind: session.CommandSetAlbumArt, Enabled: enabled})
}

func (s *SessionService) Notify(ctx context.Context, title string, body string) error {
	return s.commands.Send(ctx, session.Command{Kind: session.CommandNotify, Title: title, Body: body})
}

// LaunchFilePicker asks for a file dialog. The answer arrives later as a
// FilePicked event carrying the same request id.
func (s *SessionService) LaunchFilePicker(ctx context.Context, requestID string, req platform.FileRequest) error {
	if strings.TrimSpace(requestID) == "" {
		return errRequestIDRequired
	}
	return s.commands.Send(ctx, session.Command{Kind: session.CommandLaunchFilePicker, RequestID: requestID, File: req})
}

// Forward echoes a host command the engine does not handle back to the host
// as an IPC callback.
func (s *SessionService) Forward(command string, arg string) {
	s.outbound.Emit(session.IPCCallback(command, arg))
}

func (s *SessionService) sendToPlayer(ctx context.Context, kind session.CommandKind, appID string) error {
	appID = strings.TrimSpace(appID)
	if appID == "" {
		return errAppIDRequired
	}
	return s.commands.Send(ctx, session.Command{Kind: kind, Identity: appID})
}
