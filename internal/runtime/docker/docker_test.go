package docker

import (
	"strings"
	"sync/atomic"
	"testing"
	"time"

	shellquote "github.com/kballard/go-shellquote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zpdzap/sandpit/internal/runtime"
)

func TestParsePorts(t *testing.T) {
	out := `5173/tcp -> 0.0.0.0:49321
5173/tcp -> [::]:49321
3000/tcp -> 127.0.0.1:55000
garbage line
`
	assert.Equal(t, map[int]int{5173: 49321, 3000: 55000}, parsePorts(out))
	assert.Empty(t, parsePorts(""))
}

func TestRunArgs(t *testing.T) {
	args := runArgs("sp_abc", "/tmp/work", Options{
		Image:  "node:20-bookworm",
		Ports:  []int{5173},
		Env:    map[string]string{"B": "2", "A": "1"},
		Mounts: []string{"/cache:/root/.npm"},
	})

	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "--name sp_abc")
	assert.Contains(t, joined, "-v /tmp/work:/workspace")
	assert.Contains(t, joined, "-p 0:5173")
	assert.Contains(t, joined, "-e A=1 -e B=2")
	assert.Contains(t, joined, "-v /cache:/root/.npm")
	assert.Equal(t, []string{"node:20-bookworm", "sleep", "infinity"}, args[len(args)-3:])
}

func TestExecArgs(t *testing.T) {
	args := execArgs("sp_abc", "/tmp/sandpit-1.pid", "npm", []string{"run", "dev", "--", "--host", "0.0.0.0"})
	require.Equal(t, []string{"exec", "-w", Workspace, "sp_abc", "setsid", "sh", "-c"}, args[:7])

	words, err := shellquote.Split(args[7])
	require.NoError(t, err)
	assert.Equal(t, []string{"echo", "$$", ">", "/tmp/sandpit-1.pid;", "exec", "npm", "run", "dev", "--", "--host", "0.0.0.0"}, words)
}

func TestContainerName(t *testing.T) {
	name := containerName()
	assert.True(t, strings.HasPrefix(name, "sp"))
	assert.NotEqual(t, name, containerName())
}

func TestReadinessWaitsForContainerListener(t *testing.T) {
	var listening atomic.Bool
	r := &Runtime{
		hostPorts: map[int]int{5173: 49321},
		listening: func(port int) bool { return port == 5173 && listening.Load() },
	}
	w := runtime.NewPortWatcher([]int{5173, 3000}, r.probe, time.Hour)

	var fired []string
	w.OnServerReady(func(port int, url string) { fired = append(fired, url) })

	// The published port accepts through docker-proxy even now; only the
	// in-container check counts.
	w.Reset()
	w.Poll()
	assert.Empty(t, fired)

	listening.Store(true)
	w.Poll()
	w.Poll()
	assert.Equal(t, []string{"http://localhost:49321"}, fired)
}

func TestProbeNeedsPublishedPort(t *testing.T) {
	r := &Runtime{
		hostPorts: map[int]int{},
		listening: func(int) bool { return true },
	}
	_, ok := r.probe(5173)
	assert.False(t, ok)
}

func TestListenArgs(t *testing.T) {
	args := listenArgs("sp_abc", 5173)
	require.Equal(t, []string{"exec", "sp_abc", "sh", "-c"}, args[:4])
	assert.Contains(t, args[4], "/dev/tcp/127.0.0.1/5173")
	assert.Contains(t, args[4], "nc -z 127.0.0.1 5173")
}
