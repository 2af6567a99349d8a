package keybase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Command describes one keybase CLI invocation.
type Command struct {
	Args  []string
	Stdin []byte
	Env   []string
}

// Runner executes a keybase command and returns its stdout.
type Runner func(ctx context.Context, binary string, cmd Command) ([]byte, error)

// Client talks to the local keybase service through its CLI.
type Client struct {
	binary string
	home   string
	run    Runner
}

// NewClient returns a client using binary (default "keybase"). A nil runner
// executes the real CLI.
func NewClient(binary, home string, run Runner) *Client {
	if strings.TrimSpace(binary) == "" {
		binary = "keybase"
	}
	if run == nil {
		run = execRunner
	}
	return &Client{binary: binary, home: home, run: run}
}

func (c *Client) args(args ...string) []string {
	if c.home == "" {
		return args
	}
	return append([]string{"--home", c.home}, args...)
}

// Login starts a oneshot session for username with a paper key. The key is
// passed through the environment to keep it off the process list.
func (c *Client) Login(ctx context.Context, username, paperKey string) error {
	_, err := c.run(ctx, c.binary, Command{
		Args: c.args("oneshot", "--username", username),
		Env:  []string{"KEYBASE_PAPERKEY=" + paperKey},
	})
	if err != nil {
		return fmt.Errorf("keybase: oneshot login: %w", err)
	}
	return nil
}

// Send posts body to channel via "chat api".
func (c *Client) Send(ctx context.Context, ch Channel, body string) error {
	req, err := sjson.SetBytes([]byte(`{"method":"send"}`), "params.options.channel", ch)
	if err == nil {
		req, err = sjson.SetBytes(req, "params.options.message.body", body)
	}
	if err != nil {
		return fmt.Errorf("keybase: encode send: %w", err)
	}
	out, err := c.run(ctx, c.binary, Command{Args: c.args("chat", "api"), Stdin: req})
	if err != nil {
		return fmt.Errorf("keybase: chat api: %w", err)
	}
	return apiError(out)
}

// apiError extracts the error member of a chat api response.
func apiError(out []byte) error {
	if !gjson.ValidBytes(out) {
		return fmt.Errorf("keybase: invalid chat api response")
	}
	res := gjson.ParseBytes(out)
	if e := res.Get("error"); e.Exists() {
		msg := e.Get("message").String()
		if msg == "" {
			msg = e.Raw
		}
		return fmt.Errorf("keybase: chat api error %d: %s", e.Get("code").Int(), msg)
	}
	return nil
}

func execRunner(ctx context.Context, binary string, c Command) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, c.Args...)
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	if c.Stdin != nil {
		cmd.Stdin = bytes.NewReader(c.Stdin)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && stderr.Len() > 0 {
			return out, fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
		}
		return out, err
	}
	return out, nil
}
