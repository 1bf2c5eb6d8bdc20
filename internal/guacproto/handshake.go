package guacproto

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
)

// ConnectParams are the Guacamole client connect instruction's
// arguments for a single RDP/VNC backend (spec §4.3).
type ConnectParams struct {
	Protocol string
	Hostname string
	Port     int
	Username string
	Password string
	Width    int
	Height   int

	// Optional parameters, encoded into "connect" only when non-zero.
	IgnoreCert      bool
	Security        string
	EnableWallpaper bool
	DisableAuth     bool
}

// Handshake performs the guacd negotiation: select, args, size, audio,
// video, image, connect, ready. It returns the "ready" instruction's
// arguments (the connection identifier guacd assigns), which the
// caller forwards to the client so recordings/reconnects can key off
// it.
func Handshake(w io.Writer, r *bufio.Reader, p ConnectParams) ([]string, error) {
	if err := Send(w, "select", p.Protocol); err != nil {
		return nil, fmt.Errorf("send select: %w", err)
	}

	argsInst, err := Read(r)
	if err != nil {
		return nil, fmt.Errorf("read args: %w", err)
	}
	if argsInst.Opcode != "args" {
		return nil, fmt.Errorf("expected args instruction, got %q", argsInst.Opcode)
	}

	if err := Send(w, "size", itoa(p.Width), itoa(p.Height), "96"); err != nil {
		return nil, fmt.Errorf("send size: %w", err)
	}
	if err := Send(w, "audio", "audio/L16", "rate=44100", "channels=2"); err != nil {
		return nil, fmt.Errorf("send audio: %w", err)
	}
	if err := Send(w, "video", "image/jpeg", "image/png", "image/webp"); err != nil {
		return nil, fmt.Errorf("send video: %w", err)
	}
	if err := Send(w, "image", "image/png", "image/jpeg"); err != nil {
		return nil, fmt.Errorf("send image: %w", err)
	}

	config := connectConfig(p)
	connectArgs := make([]string, len(argsInst.Args))
	for i, name := range argsInst.Args {
		connectArgs[i] = config[name]
	}

	if err := Send(w, "connect", connectArgs...); err != nil {
		return nil, fmt.Errorf("send connect: %w", err)
	}

	readyInst, err := Read(r)
	if err != nil {
		return nil, fmt.Errorf("read ready: %w", err)
	}
	if readyInst.Opcode != "ready" {
		return nil, fmt.Errorf("expected ready instruction, got %q", readyInst.Opcode)
	}

	return readyInst.Args, nil
}

func connectConfig(p ConnectParams) map[string]string {
	cfg := map[string]string{
		"hostname": p.Hostname,
		"port":     itoa(p.Port),
		"username": p.Username,
		"password": p.Password,
		"width":    itoa(p.Width),
		"height":   itoa(p.Height),
		"dpi":      "96",
	}
	if p.IgnoreCert {
		cfg["ignore-cert"] = "true"
	}
	if p.Security != "" {
		cfg["security"] = p.Security
	}
	if p.EnableWallpaper {
		cfg["enable-wallpaper"] = "true"
	}
	if p.DisableAuth {
		cfg["disable-auth"] = "true"
	}
	return cfg
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
