package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"promoter/pkg/cmdutil"
)

// CommandNotifier runs shell-quoted commands with the event in PROMOTER_*
// environment variables
type CommandNotifier struct {
	commands [][]string
	timeout  time.Duration
	dir      string
	logger   *slog.Logger
}

// NewCommandNotifier parses the configured commands
func NewCommandNotifier(commands []string, timeout time.Duration, dir string, logger *slog.Logger) (*CommandNotifier, error) {
	parsed := make([][]string, 0, len(commands))
	for i, cmd := range commands {
		parts, err := cmdutil.ParseCommandString(cmd)
		if err != nil {
			return nil, fmt.Errorf("notify command %d: %w", i, err)
		}
		parsed = append(parsed, parts)
	}
	return &CommandNotifier{commands: parsed, timeout: timeout, dir: dir, logger: logger}, nil
}

func (n *CommandNotifier) Name() string { return "command" }

// Notify runs every command, continuing past failures
func (n *CommandNotifier) Notify(ctx context.Context, e Event) error {
	env := cmdutil.EnvFromMap(e.Env())

	var errs []error
	for _, parts := range n.commands {
		cmdStr := cmdutil.FormatCommand(parts)
		result, err := cmdutil.Run(ctx, cmdutil.ExecOptions{
			Dir:     n.dir,
			Timeout: n.timeout,
			Env:     env,
		}, parts)

		if result != nil {
			n.logger.Debug("notify command finished",
				"command", cmdStr,
				"exit_code", result.ExitCode,
				"duration_ms", result.Duration.Milliseconds(),
				"output", string(result.Output),
			)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", cmdStr, err))
		}
	}
	return errors.Join(errs...)
}
