package wallet

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

const initOutput = `20240101 12:00:00.000 WARN grin_wallet - Using wallet configuration file
Please enter a password for your new wallet
Your recovery phrase is:

fade bright harvest ocean ribbon sugar twelve window amber cloud drum eagle
Please back-up these words in a non-digital format.
Command 'init' completed successfully
`

func walletDir(t *testing.T, secret string) string {
	t.Helper()
	dir := t.TempDir()
	if secret != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, apiSecretFile), []byte(secret+"\n"), 0o600))
	}
	return dir
}

type ownerCall struct {
	user, pass string
	method     string
	body       gjson.Result
}

type recorder struct {
	mu    sync.Mutex
	calls []ownerCall
}

func (r *recorder) all() []ownerCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ownerCall(nil), r.calls...)
}

func ownerServer(t *testing.T, reply string) (*httptest.Server, *recorder) {
	t.Helper()
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		user, pass, _ := r.BasicAuth()
		body := gjson.ParseBytes(raw)
		rec.mu.Lock()
		rec.calls = append(rec.calls, ownerCall{user: user, pass: pass, method: body.Get("method").String(), body: body})
		rec.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func TestCreate(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "alice")
	var gotDir, gotName string
	var gotArgs []string
	c := New(Options{Dir: dir, Password: "pw"}, func(_ context.Context, d, name string, args ...string) ([]byte, error) {
		gotDir, gotName, gotArgs = d, name, args
		return []byte(initOutput), nil
	})

	msg, err := c.Create(context.Background())
	require.NoError(t, err)
	assert.Contains(t, msg, "fade bright harvest ocean ribbon sugar twelve window amber cloud drum eagle")
	assert.Equal(t, dir, gotDir)
	assert.Equal(t, "grin-wallet", gotName)
	assert.Equal(t, []string{"-p", "pw", "init", "-h"}, gotArgs)
	assert.DirExists(t, dir)
}

func TestCreateWalletExists(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, walletDataDir), 0o700))
	called := false
	c := New(Options{Dir: dir}, func(context.Context, string, string, ...string) ([]byte, error) {
		called = true
		return nil, nil
	})

	_, err := c.Create(context.Background())
	assert.ErrorIs(t, err, ErrWalletExists)
	assert.Equal(t, "Wallet exists", err.Error())
	assert.False(t, called)
}

func TestCreateFailures(t *testing.T) {
	failing := New(Options{Dir: t.TempDir()}, func(context.Context, string, string, ...string) ([]byte, error) {
		return nil, errors.New("exit status 1")
	})
	_, err := failing.Create(context.Background())
	assert.ErrorIs(t, err, ErrCreateWallet)

	silent := New(Options{Dir: t.TempDir()}, func(context.Context, string, string, ...string) ([]byte, error) {
		return []byte("something else entirely\n"), nil
	})
	_, err = silent.Create(context.Background())
	assert.ErrorIs(t, err, ErrCreateWallet)
}

func TestRecoveryPhrase(t *testing.T) {
	seed, ok := recoveryPhrase([]byte(strings.ReplaceAll(initOutput, "\n", "\r\n")))
	require.True(t, ok)
	assert.Equal(t, "fade bright harvest ocean ribbon sugar twelve window amber cloud drum eagle", seed)

	_, ok = recoveryPhrase([]byte("Your recovery phrase is:\n"))
	assert.False(t, ok)
}

func TestSend(t *testing.T) {
	srv, rec := ownerServer(t, `{"id":1,"jsonrpc":"2.0","result":{"Ok":{"amount":"1500000000","fee":"8000000","height":"42","id":"0436430c-2b02-624c-2032-570501212b00"}}}`)
	c := New(Options{Dir: walletDir(t, "s3cret"), OwnerURL: srv.URL}, nil)

	dest, err := url.Parse("http://recipient.example.org:3415")
	require.NoError(t, err)
	msg, err := c.Send(context.Background(), decimal.RequireFromString("1.5"), dest)
	require.NoError(t, err)

	assert.Contains(t, msg, "Sent 1.5 grin")
	assert.Contains(t, msg, "Fee: 0.008 grin")
	assert.Contains(t, msg, "Block height: 42")
	assert.Contains(t, msg, "0436430c-2b02-624c-2032-570501212b00")

	calls := rec.all()
	require.Len(t, calls, 1)
	call := calls[0]
	assert.Equal(t, "grin", call.user)
	assert.Equal(t, "s3cret", call.pass)
	assert.Equal(t, "init_send_tx", call.method)
	assert.Equal(t, "2.0", call.body.Get("jsonrpc").String())
	args := call.body.Get("params.args")
	assert.Equal(t, "1500000000", args.Get("amount").String())
	assert.Equal(t, "default", args.Get("src_acct_name").String())
	assert.Equal(t, int64(10), args.Get("minimum_confirmations").Int())
	assert.Equal(t, int64(500), args.Get("max_outputs").Int())
	assert.Equal(t, int64(1), args.Get("num_change_outputs").Int())
	assert.Equal(t, "http", args.Get("send_args.method").String())
	assert.Equal(t, "http://recipient.example.org:3415", args.Get("send_args.dest").String())
	assert.True(t, args.Get("send_args.finalize").Bool())
	assert.True(t, args.Get("send_args.post_tx").Bool())
}

func TestSendWalletError(t *testing.T) {
	srv, _ := ownerServer(t, `{"id":1,"jsonrpc":"2.0","result":{"Err":{"NotEnoughFunds":"Not enough funds"}}}`)
	c := New(Options{Dir: walletDir(t, "s3cret"), OwnerURL: srv.URL}, nil)

	dest, _ := url.Parse("http://r.example.org")
	_, err := c.Send(context.Background(), decimal.NewFromInt(5), dest)
	var opErr *OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "send", opErr.Op)
	assert.Equal(t, "NotEnoughFunds: Not enough funds", opErr.Message)
}

func TestSendRejectsNonPositiveAmount(t *testing.T) {
	c := New(Options{Dir: walletDir(t, "s3cret"), OwnerURL: "http://127.0.0.1:1"}, nil)
	dest, _ := url.Parse("http://r.example.org")
	for _, amount := range []string{"0", "-1", "0.0000000001"} {
		_, err := c.Send(context.Background(), decimal.RequireFromString(amount), dest)
		assert.ErrorIs(t, err, ErrInvalidAmount, amount)
	}
}

func TestAPISecretMissing(t *testing.T) {
	srv, rec := ownerServer(t, `{}`)
	c := New(Options{Dir: walletDir(t, ""), OwnerURL: srv.URL}, nil)

	_, err := c.Balance(context.Background())
	assert.ErrorIs(t, err, ErrAPISecretMissing)
	assert.Equal(t, ".api_secret file does not exist in wallet directory", err.Error())
	assert.Empty(t, rec.all())
}

func TestBalance(t *testing.T) {
	srv, rec := ownerServer(t, `{"id":1,"jsonrpc":"2.0","result":{"Ok":[true,{
		"amount_awaiting_confirmation":"0",
		"amount_awaiting_finalization":"0",
		"amount_currently_spendable":"60000000000",
		"amount_immature":"180000000000",
		"amount_locked":"0",
		"last_confirmed_height":"4",
		"minimum_confirmations":"10",
		"total":"240000000000"}]}}`)
	c := New(Options{Dir: walletDir(t, "s3cret"), OwnerURL: srv.URL}, nil)

	msg, err := c.Balance(context.Background())
	require.NoError(t, err)
	assert.Contains(t, msg, "Total: 240")
	assert.Contains(t, msg, "Immature: 180")
	assert.Contains(t, msg, "Currently spendable: 60")
	assert.Contains(t, msg, "Confirmed height 4")

	calls := rec.all()
	require.Len(t, calls, 1)
	assert.Equal(t, "retrieve_summary_info", calls[0].method)
	assert.Equal(t, `[true,10]`, calls[0].body.Get("params").Raw)
}

func TestOwnerRPCError(t *testing.T) {
	srv, _ := ownerServer(t, `{"id":1,"jsonrpc":"2.0","error":{"code":-32601,"message":"Method not found"}}`)
	c := New(Options{Dir: walletDir(t, "s3cret"), OwnerURL: srv.URL}, nil)

	_, err := c.Balance(context.Background())
	assert.EqualError(t, err, "Method not found")
}

func TestOwnerUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)
	c := New(Options{Dir: walletDir(t, "wrong"), OwnerURL: srv.URL}, nil)

	_, err := c.Balance(context.Background())
	var opErr *OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "balance", opErr.Op)
}

func TestNanogrinConversion(t *testing.T) {
	assert.Equal(t, "1000000", ToNanogrin(decimal.NewFromFloat(0.001)).String())
	assert.Equal(t, "100000000000", ToNanogrin(decimal.NewFromInt(100)).String())
	assert.Equal(t, "0.000000001", FromNanogrin(decimal.NewFromInt(1)).String())
}
