package storage

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/pebble/vfs"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testMetrics struct {
	read         int
	batchCommits int
	batchOps     int
}

func (m *testMetrics) ObserveRead(_ time.Duration, bytes int) { m.read += bytes }
func (m *testMetrics) ObserveBatchCommit(_ time.Duration, numOps int, _ int) {
	m.batchCommits++
	m.batchOps += numOps
}

func newTestStore(t *testing.T) (*PebbleStore, *testMetrics) {
	t.Helper()
	metrics := &testMetrics{}
	s, err := Open(Options{
		DataDir: "db",
		FS:      vfs.NewMem(),
		Fsync:   FsyncNever,
		Metrics: metrics,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, metrics
}

var (
	addrA = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	addrB = common.HexToAddress("0x00000000000000000000000000000000000000bb")
)

func TestOpen_RequiresDataDir(t *testing.T) {
	_, err := Open(Options{FS: vfs.NewMem()})
	assert.Error(t, err)
}

func TestParseFsyncMode(t *testing.T) {
	for in, want := range map[string]FsyncMode{"": FsyncAlways, "always": FsyncAlways, "Interval": FsyncInterval, "never": FsyncNever} {
		got, err := ParseFsyncMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseFsyncMode("sometimes")
	assert.Error(t, err)
}

func TestCommitAndRead(t *testing.T) {
	s, metrics := newTestStore(t)

	_, ok, err := s.GetRegion(addrA)
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := s.GetNonce(addrA)
	require.NoError(t, err)
	assert.Zero(t, n)

	head := Head{Height: 3, StateRoot: common.HexToHash("0x1234"), Time: 1700000000}
	require.NoError(t, s.Commit(&Changeset{
		Regions: map[common.Address][]byte{addrA: []byte("region-a"), addrB: []byte("region-b")},
		Nonces:  map[common.Address]uint64{addrA: 7},
		Head:    &head,
	}))
	assert.Equal(t, 1, metrics.batchCommits)
	assert.Equal(t, 4, metrics.batchOps)

	got, ok, err := s.GetRegion(addrA)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("region-a"), got)
	assert.Positive(t, metrics.read)

	n, err = s.GetNonce(addrA)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), n)

	gotHead, err := s.Head()
	require.NoError(t, err)
	assert.Equal(t, head, gotHead)
}

func TestRegionsInAddressOrder(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.Commit(&Changeset{
		Regions: map[common.Address][]byte{addrB: []byte("b"), addrA: []byte("a")},
	}))

	var seen []common.Address
	require.NoError(t, s.Regions(func(addr common.Address, data []byte) error {
		seen = append(seen, addr)
		return nil
	}))
	assert.Equal(t, []common.Address{addrA, addrB}, seen)
}

func TestSnapshotConsistency(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.Commit(&Changeset{Regions: map[common.Address][]byte{addrA: []byte("old")}}))

	snap := s.NewSnapshot()
	defer snap.Close()

	require.NoError(t, s.Commit(&Changeset{
		Regions: map[common.Address][]byte{addrA: []byte("new"), addrB: []byte("b")},
		Nonces:  map[common.Address]uint64{addrA: 1},
	}))

	old, ok, err := snap.GetRegion(addrA)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("old"), old)

	_, ok, err = snap.GetRegion(addrB)
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := snap.GetNonce(addrA)
	require.NoError(t, err)
	assert.Zero(t, n)

	cur, _, err := s.GetRegion(addrA)
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), cur)
}

func TestFileWAL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batches.wal")
	w, err := NewFileWAL(path)
	require.NoError(t, err)

	require.NoError(t, w.Append(map[string]any{"height": 1}))
	require.NoError(t, w.Append(map[string]any{"height": 2}))
	require.NoError(t, w.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var heights []float64
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var line map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &line))
		heights = append(heights, line["height"].(float64))
	}
	assert.Equal(t, []float64{1, 2}, heights)
	assert.NoError(t, NewNopWAL().Append("ignored"))
}
