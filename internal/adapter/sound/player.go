// Package sound plays the local alert by shelling out to a command-line
// audio player.
package sound

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// ErrNoPlayer is returned by Play when no audio player could be found.
var ErrNoPlayer = errors.New("no audio player found")

// candidates are tried in order when no player is configured.
var candidates = []string{
	"mplayer", "afplay", "mpg123", "mpg321", "play", "omxplayer", "aplay", "cmdmp3", "cvlc",
}

// playerArgs holds extra flags for players that otherwise keep running.
var playerArgs = map[string][]string{
	"cvlc":      {"--play-and-exit"},
	"mplayer":   {"-really-quiet"},
	"mpg123":    {"-q"},
	"aplay":     {"-q"},
	"omxplayer": {"-o", "local"},
}

// Player implements relay.AlertPlayer.
type Player struct {
	command string
	file    string
	logger  *slog.Logger
}

// NewPlayer creates a Player for file. When command is empty the first
// candidate found on PATH is used.
func NewPlayer(command, file string, logger *slog.Logger) *Player {
	if command == "" {
		command = detect(exec.LookPath)
	}
	if command == "" {
		logger.Warn("no audio player found on PATH, beeps will fail", "candidates", candidates)
	} else {
		logger.Info("audio player selected", "player", command, "file", file)
	}
	return &Player{command: command, file: file, logger: logger}
}

// Command returns the player executable, or "" when none was found.
func (p *Player) Command() string {
	return p.command
}

// Play runs the player on the alert file and waits for it to exit.
func (p *Player) Play(ctx context.Context) error {
	if p.command == "" {
		return ErrNoPlayer
	}

	args := append(append([]string(nil), playerArgs[baseName(p.command)]...), p.file)
	cmd := exec.CommandContext(ctx, p.command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("play %s with %s: %w: %s", p.file, p.command, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

func detect(lookPath func(string) (string, error)) string {
	for _, name := range candidates {
		if path, err := lookPath(name); err == nil {
			return path
		}
	}
	return ""
}

func baseName(command string) string {
	if i := strings.LastIndexAny(command, `/\`); i >= 0 {
		return command[i+1:]
	}
	return command
}
