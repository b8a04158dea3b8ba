//go:build unix

package local

import (
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zpdzap/sandpit/internal/snapshot"
)

func newRuntime(t *testing.T, ports ...int) *Runtime {
	t.Helper()
	r, err := New(Options{
		WorkDir:      t.TempDir(),
		Ports:        ports,
		Host:         "127.0.0.1",
		KillGrace:    time.Second,
		PollInterval: 10 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestMountAndSync(t *testing.T) {
	r := newRuntime(t)
	ctx := context.Background()

	tree, err := snapshot.BuildTree(snapshot.Snapshot{
		{Path: "package.json", Content: "{}"},
		{Path: "src/index.ts", Content: "1"},
	}, nil)
	require.NoError(t, err)
	require.NoError(t, r.Mount(ctx, tree))

	require.NoError(t, r.WriteFile(ctx, "src/index.ts", []byte("2")))
	data, err := os.ReadFile(filepath.Join(r.Root(), "src", "index.ts"))
	require.NoError(t, err)
	assert.Equal(t, "2", string(data))

	require.NoError(t, r.Remove(ctx, "package.json"))
	_, err = os.Stat(filepath.Join(r.Root(), "package.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestSpawnExitCodeAndOutput(t *testing.T) {
	r := newRuntime(t)

	proc, err := r.Spawn(context.Background(), "sh", "-c", "echo out; echo err >&2; exit 3")
	require.NoError(t, err)

	out, err := io.ReadAll(proc.Output())
	require.NoError(t, err)
	assert.Contains(t, string(out), "out\n")
	assert.Contains(t, string(out), "err\n")

	code, err := proc.Wait()
	require.NoError(t, err)
	assert.Equal(t, 3, code)
}

func TestSpawnRunsInWorkDir(t *testing.T) {
	r := newRuntime(t)
	require.NoError(t, r.WriteFile(context.Background(), "marker.txt", []byte("here")))

	proc, err := r.Spawn(context.Background(), "cat", "marker.txt")
	require.NoError(t, err)
	out, _ := io.ReadAll(proc.Output())
	assert.Equal(t, "here", string(out))
}

func TestKillStopsProcessTree(t *testing.T) {
	r := newRuntime(t)

	proc, err := r.Spawn(context.Background(), "sh", "-c", "sleep 30 & sleep 30; wait")
	require.NoError(t, err)
	go io.Copy(io.Discard, proc.Output())

	start := time.Now()
	proc.Kill()
	code, _ := proc.Wait()
	assert.Less(t, time.Since(start), 3*time.Second)
	assert.Equal(t, 128+15, code)
}

func TestServerReadyOnPortOpen(t *testing.T) {
	probe, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := probe.Addr().(*net.TCPAddr).Port
	probe.Close()

	r := newRuntime(t, port)
	ready := make(chan string, 1)
	unsubscribe := r.OnServerReady(func(p int, url string) {
		select {
		case ready <- url:
		default:
		}
	})
	defer unsubscribe()

	ln, err := net.Listen("tcp", "127.0.0.1:"+strconv.Itoa(port))
	require.NoError(t, err)
	defer ln.Close()

	select {
	case url := <-ready:
		assert.Equal(t, "http://127.0.0.1:"+strconv.Itoa(port), url)
	case <-time.After(3 * time.Second):
		t.Fatal("no server-ready event")
	}
}

func TestClosedRuntimeRejectsCalls(t *testing.T) {
	r := newRuntime(t)
	require.NoError(t, r.Close())
	_, err := r.Spawn(context.Background(), "true")
	assert.Error(t, err)
	assert.Error(t, r.WriteFile(context.Background(), "a", nil))
}
