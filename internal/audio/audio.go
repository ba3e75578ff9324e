// Package audio resolves sound cues to files and optionally hands them to an
// external player command.
package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/MikeSquared-Agency/vellum/internal/playback"
)

var ErrCueNotFound = errors.New("sound cue not found")

// Extensions in lookup order.
var Extensions = []string{".mp3", ".ogg", ".wav"}

type Library struct {
	dir string
}

func NewLibrary(dir string) *Library {
	return &Library{dir: dir}
}

func (l *Library) Dir() string { return l.dir }

// Resolve returns the file for cue. Cue names that could escape the sound
// directory are rejected.
func (l *Library) Resolve(cue string) (string, error) {
	cue = strings.TrimSpace(cue)
	if cue == "" || cue == "." || cue == ".." || strings.ContainsAny(cue, `/\`) {
		return "", fmt.Errorf("%w: invalid name %q", ErrCueNotFound, cue)
	}
	for _, ext := range Extensions {
		path := filepath.Join(l.dir, cue+ext)
		info, err := os.Stat(path)
		if err == nil && info.Mode().IsRegular() {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrCueNotFound, cue)
}

// URL returns the path under which the HTTP server serves the cue file.
func (l *Library) URL(cue string) (string, error) {
	path, err := l.Resolve(cue)
	if err != nil {
		return "", err
	}
	return "/sounds/" + filepath.Base(path), nil
}

// Player is a playback.View that plays cues. With no command configured it
// only resolves and logs them.
type Player struct {
	playback.BaseView

	lib     *Library
	command []string
	ctx     context.Context
	logger  *slog.Logger
}

// NewPlayer splits command on whitespace; the cue path is appended as the
// last argument. ctx bounds spawned players.
func NewPlayer(ctx context.Context, lib *Library, command string, logger *slog.Logger) *Player {
	return &Player{
		lib:     lib,
		command: strings.Fields(command),
		ctx:     ctx,
		logger:  logger,
	}
}

func (p *Player) PlayCue(cue string) {
	path, err := p.lib.Resolve(cue)
	if err != nil {
		p.logger.Warn("sound cue unavailable", "cue", cue, "error", err)
		return
	}
	if len(p.command) == 0 {
		p.logger.Debug("sound cue", "cue", cue, "path", path)
		return
	}

	args := append(append([]string{}, p.command[1:]...), path)
	cmd := exec.CommandContext(p.ctx, p.command[0], args...)
	if err := cmd.Start(); err != nil {
		p.logger.Warn("start audio player", "cue", cue, "error", err)
		return
	}
	go func() {
		if err := cmd.Wait(); err != nil && p.ctx.Err() == nil {
			p.logger.Warn("audio player exited", "cue", cue, "error", err)
		}
	}()
}
