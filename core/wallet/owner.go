package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/tidwall/gjson"

	"github.com/m3rciful/grinbot/core/netutil"
)

const (
	ownerUser       = "grin"
	apiSecretFile   = ".api_secret"
	maxResponseSize = 4 << 20
)

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

// ownerClient speaks JSON-RPC 2.0 to the wallet owner API.
type ownerClient struct {
	endpoint string
	dir      string
	http     *http.Client
	nextID   atomic.Uint64
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return netutil.NewHTTPClient(netutil.ClientOptions{Timeout: timeout, MaxIdleConns: 4})
}

// secret reads the owner API secret. It is read per call so a wallet created
// after startup is picked up.
func (c *ownerClient) secret() (string, error) {
	data, err := os.ReadFile(filepath.Join(c.dir, apiSecretFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrAPISecretMissing
		}
		return "", fmt.Errorf("read api secret: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// call posts one request and returns the "Ok" payload of the result.
func (c *ownerClient) call(ctx context.Context, op, method string, params any) (gjson.Result, error) {
	secret, err := c.secret()
	if err != nil {
		return gjson.Result{}, err
	}

	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: c.nextID.Add(1), Method: method, Params: params})
	if err != nil {
		return gjson.Result{}, fmt.Errorf("encode %s: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(ownerUser, secret)

	resp, err := c.http.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("read %s response: %w", method, err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return gjson.Result{}, &OperationError{Op: op, Message: "Owner API rejected the api secret"}
	}
	if resp.StatusCode != http.StatusOK {
		return gjson.Result{}, &OperationError{Op: op, Message: fmt.Sprintf("Owner API returned HTTP %d", resp.StatusCode)}
	}
	if !gjson.ValidBytes(raw) {
		return gjson.Result{}, &OperationError{Op: op, Message: "Owner API returned malformed JSON"}
	}

	doc := gjson.ParseBytes(raw)
	if msg := doc.Get("error.message"); msg.Exists() {
		return gjson.Result{}, &OperationError{Op: op, Message: msg.String()}
	}
	if e := doc.Get("result.Err"); e.Exists() {
		return gjson.Result{}, &OperationError{Op: op, Message: errorText(e)}
	}
	ok := doc.Get("result.Ok")
	if !ok.Exists() {
		return gjson.Result{}, &OperationError{Op: op, Message: "Owner API returned no result"}
	}
	return ok, nil
}

// errorText flattens the wallet's error enum, which is either a bare string
// or a single-key object such as {"GenericError": "..."}.
func errorText(e gjson.Result) string {
	if e.Type == gjson.String {
		return e.String()
	}
	if e.IsObject() {
		var parts []string
		e.ForEach(func(k, v gjson.Result) bool {
			if v.Type == gjson.String && v.String() != "" {
				parts = append(parts, k.String()+": "+v.String())
			} else {
				parts = append(parts, k.String())
			}
			return true
		})
		return strings.Join(parts, ", ")
	}
	return e.Raw
}
