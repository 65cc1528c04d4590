package cmdutil

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
)

// ExecOptions configures command execution.
type ExecOptions struct {
	// Dir is the working directory for the command.
	Dir string

	// Timeout is the maximum execution time.
	// If zero, no timeout is applied.
	Timeout time.Duration

	// Env is added to the environment of the current process.
	// Each entry should be in the form "KEY=value".
	Env []string
}

// Result contains the result of a command execution.
type Result struct {
	// Output is the combined stdout and stderr.
	Output []byte

	// ExitCode is the exit code of the command.
	ExitCode int

	// Duration is how long the command took to execute.
	Duration time.Duration

	// TimedOut is set when the command was killed by the timeout.
	TimedOut bool
}

// Run executes a command with the given options.
// The command is provided as a slice of arguments (command and its arguments).
// The result is returned even when the command fails.
func Run(ctx context.Context, opts ExecOptions, cmdParts []string) (*Result, error) {
	if len(cmdParts) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	// Apply timeout if specified
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, cmdParts[0], cmdParts[1:]...)
	cmd.Dir = opts.Dir
	if len(opts.Env) > 0 {
		cmd.Env = append(os.Environ(), opts.Env...)
	}

	start := time.Now()
	var result Result
	var err error
	result.Output, err = cmd.CombinedOutput()
	result.Duration = time.Since(start)

	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			result.TimedOut = true
			return &result, fmt.Errorf("command timed out after %s", opts.Timeout)
		}
		return &result, fmt.Errorf("command failed: %w", err)
	}

	return &result, nil
}

// ParseCommandString parses a shell-quoted command string into parts.
// This is useful when commands are stored as strings with proper quoting.
//
// Example:
//
//	"notify.sh --channel \"release builds\"" -> ["notify.sh", "--channel", "release builds"]
func ParseCommandString(cmdStr string) ([]string, error) {
	parts, err := shellquote.Split(cmdStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse command string: %w", err)
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty command string")
	}
	return parts, nil
}

// EnvFromMap renders variables as sorted "KEY=value" entries
func EnvFromMap(vars map[string]string) []string {
	env := make([]string, 0, len(vars))
	for k, v := range vars {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)
	return env
}

// FormatCommand formats command parts into a readable string for logging.
// Example: ["notify.sh", "--channel", "release builds"] -> "notify.sh --channel 'release builds'"
func FormatCommand(cmdParts []string) string {
	if len(cmdParts) == 0 {
		return "<empty command>"
	}

	// Quote arguments that contain spaces or special characters
	quoted := make([]string, len(cmdParts))
	for i, part := range cmdParts {
		if strings.ContainsAny(part, " \t\n\"'") {
			quoted[i] = shellquote.Join(part)
		} else {
			quoted[i] = part
		}
	}

	return strings.Join(quoted, " ")
}

// SanitizeOutput removes sensitive information from command output.
// This is useful for logging command output without exposing secrets.
func SanitizeOutput(output []byte, secrets []string) []byte {
	sanitized := string(output)
	for _, secret := range secrets {
		if secret != "" {
			sanitized = strings.ReplaceAll(sanitized, secret, "***REDACTED***")
		}
	}
	return []byte(sanitized)
}
