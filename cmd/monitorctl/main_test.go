package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cockroachdb/pebble/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/obmonitor/pkg/api"
	"github.com/uhyunpark/obmonitor/pkg/app/monitor"
	"github.com/uhyunpark/obmonitor/pkg/crypto"
	"github.com/uhyunpark/obmonitor/pkg/journal"
	"github.com/uhyunpark/obmonitor/pkg/storage"
)

func startNode(t *testing.T) string {
	t.Helper()
	store, err := storage.Open(storage.Options{DataDir: "db", FS: vfs.NewMem(), Fsync: storage.FsyncNever})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	app, err := monitor.NewApp(store, nil, nil, nil, monitor.DefaultConfig())
	require.NoError(t, err)
	srv := api.NewServer(app, nil, nil)
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		hs.Close()
		_ = srv.Shutdown(context.Background())
	})
	return hs.URL
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRoot()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestKeygen(t *testing.T) {
	out, err := run(t, "keygen", "--label", "spot")
	require.NoError(t, err)
	assert.Contains(t, out, "Private key:")
	assert.Contains(t, out, `(label "spot")`)
}

func TestWorkflow(t *testing.T) {
	url := startNode(t)
	s, err := crypto.GenerateKey()
	require.NoError(t, err)
	key := s.PrivateKeyHex()

	out, err := run(t, "init", "--api", url, "--key", key, "--capacity", "3")
	require.NoError(t, err, out)
	assert.Contains(t, out, "initialize  ok")

	events := [][]string{
		{"--type", "placed", "--market", "SOL/USDC", "--price", "100", "--size", "5", "--direction", "bid", "--timestamp", "1000"},
		{"--type", "order_filled", "--market", "SOL/USDC", "--price", "101", "--size", "5", "--direction", "bid", "--timestamp", "1001"},
		{"--type", "cancelled", "--market", "BTC/USDC", "--price", "50000", "--size", "1", "--direction", "ask", "--timestamp", "1002"},
	}
	for _, ev := range events {
		out, err := run(t, append([]string{"record", "--api", url, "--key", key}, ev...)...)
		require.NoError(t, err, out)
	}

	out, err = run(t, "record", "--api", url, "--key", key, "--market", "SOL/USDC", "--price", "1")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "full")

	out, err = run(t, "account", "--api", url, "--owner", s.Address().Hex())
	require.NoError(t, err)
	assert.Contains(t, out, "Records:   3 (0 free)")

	out, err = run(t, "stats", "--api", url, "--key", key)
	require.NoError(t, err)
	assert.Contains(t, out, "16733")
	assert.Contains(t, out, "BTC/USDC")

	out, err = run(t, "recent", "--api", url, "--key", key, "--n", "1")
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(strings.TrimSpace(out), "\n")+1)
	assert.Contains(t, out, "BTC/USDC")

	db := filepath.Join(t.TempDir(), "export.db")
	out, err = run(t, "export", "--api", url, "--key", key, "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "exported 3 new records")

	j, err := journal.NewSQLite(db)
	require.NoError(t, err)
	defer j.Close()
	recs, err := j.ListEvents(context.Background(), monitor.DeriveAccount(s.Address(), "default"))
	require.NoError(t, err)
	assert.Len(t, recs, 3)
}

func TestRecordRejectsBadInput(t *testing.T) {
	s, err := crypto.GenerateKey()
	require.NoError(t, err)

	_, err = run(t, "record", "--api", "http://127.0.0.1:1", "--key", s.PrivateKeyHex(),
		"--market", "SOL/USDC", "--direction", "sideways")
	assert.Error(t, err)

	_, err = run(t, "record", "--api", "http://127.0.0.1:1", "--key", s.PrivateKeyHex(),
		"--market", strings.Repeat("M", 51))
	assert.Error(t, err)

	_, err = run(t, "account", "--api", "http://127.0.0.1:1", "--account", "nope")
	assert.Error(t, err)
}
