// Package wallet drives a local grin-wallet: the binary for creating a
// wallet, the owner API for everything else.
package wallet

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"github.com/m3rciful/grinbot/core/logger"
)

const (
	// DefaultOwnerURL is where grin-wallet owner_api listens by default.
	DefaultOwnerURL = "http://127.0.0.1:3420/v2/owner"
	// DefaultBinary is looked up on PATH.
	DefaultBinary = "grin-wallet"

	recoveryPhraseMarker = "Your recovery phrase is:"
	walletDataDir        = "wallet_data"

	minimumConfirmations = 10
	maxOutputs           = 500
	nanoExp              = 9
)

// Options configure a Client.
type Options struct {
	// Dir is the wallet top level directory holding wallet_data and .api_secret.
	Dir      string
	OwnerURL string
	Password string
	Binary   string
	// Timeout bounds each owner API request.
	Timeout time.Duration
}

// Runner executes the wallet binary and returns its standard output.
type Runner func(ctx context.Context, dir, name string, args ...string) ([]byte, error)

// Client implements the engine's wallet collaborator.
type Client struct {
	opts  Options
	owner *ownerClient
	run   Runner
}

// New builds a Client. A nil runner uses os/exec.
func New(opts Options, run Runner) *Client {
	if opts.OwnerURL == "" {
		opts.OwnerURL = DefaultOwnerURL
	}
	if opts.Binary == "" {
		opts.Binary = DefaultBinary
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if run == nil {
		run = execRunner
	}
	return &Client{
		opts: opts,
		owner: &ownerClient{
			endpoint: opts.OwnerURL,
			dir:      opts.Dir,
			http:     newHTTPClient(opts.Timeout),
		},
		run: run,
	}
}

func execRunner(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return out, fmt.Errorf("%w: %s", err, msg)
		}
		return out, err
	}
	return out, nil
}

// Create initializes a new wallet and returns the recovery phrase message.
func (c *Client) Create(ctx context.Context) (string, error) {
	start := time.Now()
	if _, err := os.Stat(filepath.Join(c.opts.Dir, walletDataDir)); err == nil {
		logger.Warn(ctx, "wallet", "wallet.create", slog.String("status", "skip"), slog.String("cause", "exists"))
		return "", ErrWalletExists
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("stat wallet data: %w", err)
	}
	if err := os.MkdirAll(c.opts.Dir, 0o700); err != nil {
		return "", fmt.Errorf("create wallet dir: %w", err)
	}

	out, err := c.run(ctx, c.opts.Dir, c.opts.Binary, "-p", c.opts.Password, "init", "-h")
	if err != nil {
		logger.Error(ctx, "wallet", "wallet.create",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
			slog.Duration("duration", logger.Took(start)),
		)
		return "", ErrCreateWallet
	}
	seed, ok := recoveryPhrase(out)
	if !ok {
		logger.Error(ctx, "wallet", "wallet.create",
			slog.String("status", "fail"),
			slog.String("cause", "no recovery phrase in output"),
		)
		return "", ErrCreateWallet
	}
	logger.Info(ctx, "wallet", "wallet.create", slog.String("status", "ok"), slog.Duration("duration", logger.Took(start)))
	return render(seedTmpl, struct{ Seed string }{seed})
}

// recoveryPhrase finds the phrase printed two lines below the marker.
func recoveryPhrase(out []byte) (string, bool) {
	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		lines = append(lines, strings.TrimRight(sc.Text(), "\r"))
	}
	for i, line := range lines {
		if strings.TrimSpace(line) != recoveryPhraseMarker {
			continue
		}
		if i+2 >= len(lines) {
			return "", false
		}
		seed := strings.TrimSpace(lines[i+2])
		return seed, seed != ""
	}
	return "", false
}

type initTxArgs struct {
	SrcAcctName               string      `json:"src_acct_name"`
	Amount                    string      `json:"amount"`
	MinimumConfirmations      int         `json:"minimum_confirmations"`
	MaxOutputs                int         `json:"max_outputs"`
	NumChangeOutputs          int         `json:"num_change_outputs"`
	SelectionStrategyIsUseAll bool        `json:"selection_strategy_is_use_all"`
	SendArgs                  *initTxSend `json:"send_args,omitempty"`
}

type initTxSend struct {
	Method   string `json:"method"`
	Dest     string `json:"dest"`
	Finalize bool   `json:"finalize"`
	PostTx   bool   `json:"post_tx"`
	Fluff    bool   `json:"fluff"`
}

// ToNanogrin converts whole grin into nanogrin, dropping any fraction below one nanogrin.
func ToNanogrin(amount decimal.Decimal) decimal.Decimal {
	return amount.Shift(nanoExp).Truncate(0)
}

// FromNanogrin converts a nanogrin count into whole grin.
func FromNanogrin(nano decimal.Decimal) decimal.Decimal {
	return nano.Shift(-nanoExp)
}

// Send builds, finalizes and posts a transaction to a listening wallet.
func (c *Client) Send(ctx context.Context, amount decimal.Decimal, destination *url.URL) (string, error) {
	nano := ToNanogrin(amount)
	if !nano.IsPositive() {
		return "", ErrInvalidAmount
	}
	args := initTxArgs{
		SrcAcctName:          "default",
		Amount:               nano.String(),
		MinimumConfirmations: minimumConfirmations,
		MaxOutputs:           maxOutputs,
		NumChangeOutputs:     1,
		SendArgs: &initTxSend{
			Method:   "http",
			Dest:     destination.String(),
			Finalize: true,
			PostTx:   true,
		},
	}

	start := time.Now()
	slate, err := c.owner.call(ctx, opSend, "init_send_tx", map[string]any{"args": args})
	if err != nil {
		logger.Warn(ctx, "wallet", "wallet.send",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
			slog.Duration("duration", logger.Took(start)),
		)
		return "", err
	}
	view := sendView{
		Amount: grin(slate.Get("amount")),
		Fee:    grin(slate.Get("fee")),
		Height: slate.Get("height").String(),
		ID:     slate.Get("id").String(),
	}
	logger.Info(ctx, "wallet", "wallet.send",
		slog.String("status", "ok"),
		slog.String("slate_id", view.ID),
		slog.Duration("duration", logger.Took(start)),
	)
	return render(sendTmpl, view)
}

// Balance refreshes from the node and summarizes the wallet.
func (c *Client) Balance(ctx context.Context) (string, error) {
	start := time.Now()
	res, err := c.owner.call(ctx, opBalance, "retrieve_summary_info", []any{true, minimumConfirmations})
	if err != nil {
		logger.Warn(ctx, "wallet", "wallet.balance",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
			slog.Duration("duration", logger.Took(start)),
		)
		return "", err
	}
	// The result is a [refreshed_from_node, summary] pair.
	summary := res.Get("1")
	if !summary.IsObject() {
		return "", &OperationError{Op: opBalance, Message: "Owner API returned no wallet summary"}
	}
	info := Info{
		Height:               summary.Get("last_confirmed_height").String(),
		MinConfirmations:     summary.Get("minimum_confirmations").String(),
		Total:                grin(summary.Get("total")),
		AwaitingConfirmation: grin(summary.Get("amount_awaiting_confirmation")),
		AwaitingFinalization: grin(summary.Get("amount_awaiting_finalization")),
		Immature:             grin(summary.Get("amount_immature")),
		Locked:               grin(summary.Get("amount_locked")),
		Spendable:            grin(summary.Get("amount_currently_spendable")),
	}
	logger.Debug(ctx, "wallet", "wallet.balance", slog.String("status", "ok"), slog.Duration("duration", logger.Took(start)))
	return render(balanceTmpl, info)
}

// grin formats a nanogrin field, sent as a string or a number, in whole grin.
func grin(v gjson.Result) string {
	if !v.Exists() {
		return "0"
	}
	nano, err := decimal.NewFromString(v.String())
	if err != nil {
		return v.String()
	}
	return FromNanogrin(nano).String()
}
