// Package client is a thin REST client for the node API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/obmonitor/pkg/analyzer"
	"github.com/uhyunpark/obmonitor/pkg/api"
	"github.com/uhyunpark/obmonitor/pkg/app/core/instruction"
	"github.com/uhyunpark/obmonitor/pkg/app/core/record"
	"github.com/uhyunpark/obmonitor/pkg/app/monitor"
	"github.com/uhyunpark/obmonitor/pkg/crypto"
)

// APIError is a non-2xx response
type APIError struct {
	Status int
	api.ErrorResponse
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s (%d): %s", e.ErrorResponse.Error, e.Status, e.Message)
	}
	return fmt.Sprintf("%s (%d)", e.ErrorResponse.Error, e.Status)
}

type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Submit posts a signed envelope. With async the node only queues it and the
// response carries no receipt. A rejected instruction is returned as a
// response, not an error.
func (c *Client) Submit(ctx context.Context, env *instruction.Envelope, async bool) (api.SubmitResponse, error) {
	var out api.SubmitResponse
	body, err := env.Serialize()
	if err != nil {
		return out, err
	}
	path := "/api/v1/instructions"
	if async {
		path += "?async=true"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return out, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err == nil && (out.Receipt != nil || out.Status == "queued") {
		return out, nil
	}
	return out, decodeError(resp.StatusCode, raw)
}

// SignAndSubmit fetches the signer's next nonce, signs ins for acct and
// submits it synchronously.
func (c *Client) SignAndSubmit(ctx context.Context, s *crypto.Signer, acct common.Address, ins instruction.Instruction) (api.SubmitResponse, error) {
	n, err := c.Nonce(ctx, s.Address())
	if err != nil {
		return api.SubmitResponse{}, err
	}
	env, err := instruction.NewEnvelope(s, acct, n+1, ins)
	if err != nil {
		return api.SubmitResponse{}, err
	}
	return c.Submit(ctx, env, false)
}

func (c *Client) Nonce(ctx context.Context, addr common.Address) (uint64, error) {
	var out api.NonceInfo
	err := c.getJSON(ctx, "/api/v1/nonces/"+addr.Hex(), nil, &out)
	return out.Nonce, err
}

func (c *Client) Account(ctx context.Context, addr common.Address) (monitor.AccountInfo, error) {
	var out monitor.AccountInfo
	err := c.getJSON(ctx, "/api/v1/accounts/"+addr.Hex(), nil, &out)
	return out, err
}

func (c *Client) Accounts(ctx context.Context) ([]monitor.AccountInfo, error) {
	var out []monitor.AccountInfo
	err := c.getJSON(ctx, "/api/v1/accounts", nil, &out)
	return out, err
}

func (c *Client) Records(ctx context.Context, addr common.Address, offset, limit uint64) (api.RecordsPage, error) {
	var out api.RecordsPage
	q := url.Values{}
	q.Set("offset", strconv.FormatUint(offset, 10))
	q.Set("limit", strconv.FormatUint(limit, 10))
	err := c.getJSON(ctx, "/api/v1/accounts/"+addr.Hex()+"/records", q, &out)
	return out, err
}

func (c *Client) Recent(ctx context.Context, addr common.Address, n uint64) ([]record.Record, error) {
	var out []record.Record
	q := url.Values{}
	q.Set("n", strconv.FormatUint(n, 10))
	err := c.getJSON(ctx, "/api/v1/accounts/"+addr.Hex()+"/recent", q, &out)
	return out, err
}

func (c *Client) Stats(ctx context.Context, addr common.Address) (analyzer.Report, error) {
	var out analyzer.Report
	err := c.getJSON(ctx, "/api/v1/accounts/"+addr.Hex()+"/stats", nil, &out)
	return out, err
}

// Raw downloads the account region bytes
func (c *Client) Raw(ctx context.Context, addr common.Address) ([]byte, error) {
	resp, err := c.get(ctx, "/api/v1/accounts/"+addr.Hex()+"/raw", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp.StatusCode, raw)
	}
	return raw, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values) (*http.Response, error) {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	return c.http.Do(req)
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, out any) error {
	resp, err := c.get(ctx, path, q)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return decodeError(resp.StatusCode, raw)
	}
	return json.Unmarshal(raw, out)
}

func decodeError(status int, raw []byte) error {
	e := &APIError{Status: status}
	if err := json.Unmarshal(raw, &e.ErrorResponse); err != nil || e.ErrorResponse.Error == "" {
		e.ErrorResponse.Error = http.StatusText(status)
		e.Message = strings.TrimSpace(string(raw))
	}
	return e
}
