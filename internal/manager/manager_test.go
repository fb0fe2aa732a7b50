package manager

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/fampp/internal/history"
	"github.com/loykin/fampp/internal/pidfile"
	"github.com/loykin/fampp/internal/process"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("unix-only test")
	}
}

func newTestManager(t *testing.T, table process.Table) (*Manager, string) {
	t.Helper()
	root := t.TempDir()
	m := New(Options{
		PIDDir:      filepath.Join(root, "data", "pids"),
		LogDir:      filepath.Join(root, "logs"),
		StopTimeout: time.Second,
		Table:       table,
	})
	return m, root
}

// fakeTable is an in-memory process table.
type fakeTable struct {
	mu     sync.Mutex
	alive  map[int]bool
	starts map[int]int64
	killed []int
}

func newFakeTable() *fakeTable {
	return &fakeTable{alive: map[int]bool{}, starts: map[int]int64{}}
}

func (f *fakeTable) Alive(pid int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alive[pid]
}

func (f *fakeTable) Kill(pid int, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.alive[pid] {
		return process.ErrProcessGone
	}
	f.alive[pid] = false
	f.killed = append(f.killed, pid)
	return nil
}

func (f *fakeTable) StartUnix(pid int) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts[pid]
}

type recSink struct {
	mu     sync.Mutex
	events []history.Event
}

func (r *recSink) Send(_ context.Context, e history.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recSink) types() []history.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []history.EventType
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

// deadPID returns a pid that belonged to a process which has exited and been reaped.
func deadPID(t *testing.T) int {
	t.Helper()
	cmd := exec.Command("/bin/sh", "-c", "exit 0")
	require.NoError(t, cmd.Start())
	pid := cmd.Process.Pid
	require.NoError(t, cmd.Wait())
	return pid
}

func TestStartThenStatusRunning(t *testing.T) {
	requireUnix(t)
	m, root := newTestManager(t, nil)
	ctx := context.Background()

	pid, err := m.Start(ctx, "svc", "sleep", []string{"30"}, StartOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { _, _ = m.Stop(ctx, "svc") })
	assert.Greater(t, pid, 0)

	raw, err := os.ReadFile(filepath.Join(root, "data", "pids", "svc.pid"))
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(pid)+"\n", string(raw), "record holds only the decimal pid")
	parsed, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	require.NoError(t, err)
	assert.Equal(t, pid, parsed)

	sts, err := m.Status(ctx)
	require.NoError(t, err)
	require.Len(t, sts, 1)
	assert.Equal(t, Status{Name: "svc", PID: pid, State: StateRunning, StartedAt: sts[0].StartedAt}, sts[0])
	assert.False(t, sts[0].StartedAt.IsZero())

	_, err = os.Stat(filepath.Join(root, "logs", "svc.log"))
	assert.NoError(t, err, "log stream is created on start")
}

func TestStartAlreadyRunning(t *testing.T) {
	requireUnix(t)
	m, _ := newTestManager(t, nil)
	ctx := context.Background()

	pid, err := m.Start(ctx, "svc", "sleep", []string{"30"}, StartOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { _, _ = m.Stop(ctx, "svc") })

	_, err = m.Start(ctx, "svc", "sleep", []string{"30"}, StartOptions{})
	var are *AlreadyRunningError
	require.True(t, errors.As(err, &are))
	assert.True(t, errors.Is(err, ErrAlreadyRunning))
	assert.Equal(t, pid, are.PID)

	rec, err := m.Records().Read("svc")
	require.NoError(t, err)
	assert.Equal(t, pid, rec.PID, "record must be untouched")
}

func TestStartReapsStaleRecord(t *testing.T) {
	requireUnix(t)
	m, _ := newTestManager(t, nil)
	sink := &recSink{}
	m.SetHistorySinks(sink)
	ctx := context.Background()

	stale := deadPID(t)
	require.NoError(t, m.Records().Write("svc", pidfile.Record{PID: stale}))

	pid, err := m.Start(ctx, "svc", "sleep", []string{"30"}, StartOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { _, _ = m.Stop(ctx, "svc") })
	assert.NotEqual(t, stale, pid)
	assert.Equal(t, []history.EventType{history.EventReap, history.EventStart}, sink.types())
}

func TestStartImmediateCrash(t *testing.T) {
	requireUnix(t)
	m, root := newTestManager(t, nil)
	ctx := context.Background()

	_, err := m.Start(ctx, "bad", "/bin/sh", []string{"-c", "echo cannot bind >&2; exit 1"}, StartOptions{})
	var ice *ImmediateCrashError
	require.True(t, errors.As(err, &ice), "err=%v", err)
	assert.True(t, errors.Is(err, ErrImmediateCrash))
	assert.Equal(t, 1, ice.ExitCode)

	_, statErr := os.Stat(filepath.Join(root, "data", "pids", "bad.pid"))
	assert.True(t, errors.Is(statErr, os.ErrNotExist), "no record after an immediate crash")

	b, err := os.ReadFile(m.LogPath("bad"))
	require.NoError(t, err)
	assert.Contains(t, string(b), "cannot bind")

	sts, err := m.Status(ctx)
	require.NoError(t, err)
	assert.Empty(t, sts)
}

func TestStartMissingBinary(t *testing.T) {
	m, _ := newTestManager(t, nil)
	_, err := m.Start(context.Background(), "ghost", filepath.Join(t.TempDir(), "nope"), nil, StartOptions{})
	require.Error(t, err)
	assert.False(t, m.Records().Exists("ghost"))
}

func TestStopTwice(t *testing.T) {
	requireUnix(t)
	m, root := newTestManager(t, nil)
	ctx := context.Background()

	pid, err := m.Start(ctx, "svc", "sleep", []string{"30"}, StartOptions{})
	require.NoError(t, err)

	res, err := m.Stop(ctx, "svc")
	require.NoError(t, err)
	assert.Equal(t, pid, res.PID)
	assert.Nil(t, res.Warning)
	assert.False(t, process.NewTable().Alive(pid))

	before := listDir(t, filepath.Join(root, "data", "pids"))
	_, err = m.Stop(ctx, "svc")
	var nre *NotRunningError
	require.True(t, errors.As(err, &nre))
	assert.True(t, errors.Is(err, ErrNotRunning))
	assert.Equal(t, before, listDir(t, filepath.Join(root, "data", "pids")), "second stop must not mutate anything")
}

func TestStopExternallyKilled(t *testing.T) {
	requireUnix(t)
	m, _ := newTestManager(t, nil)
	ctx := context.Background()

	pid, err := m.Start(ctx, "mysql", "sleep", []string{"30"}, StartOptions{})
	require.NoError(t, err)
	require.NoError(t, syscall.Kill(pid, syscall.SIGKILL))
	table := process.NewTable()
	require.Eventually(t, func() bool { return !table.Alive(pid) }, 2*time.Second, 10*time.Millisecond)

	res, err := m.Stop(ctx, "mysql")
	require.NoError(t, err)
	require.NotNil(t, res.Warning)
	assert.Equal(t, pid, res.Warning.PID)
	assert.False(t, m.Records().Exists("mysql"))
}

func TestStatusSelfHeals(t *testing.T) {
	requireUnix(t)
	m, _ := newTestManager(t, nil)
	ctx := context.Background()

	dead := deadPID(t)
	require.NoError(t, m.Records().Write("php", pidfile.Record{PID: dead}))
	require.NoError(t, os.WriteFile(m.Records().Path("junk"), []byte("not a pid"), 0o600))

	sts, err := m.Status(ctx)
	require.NoError(t, err)
	require.Len(t, sts, 2)
	assert.Equal(t, "junk", sts[0].Name)
	assert.Equal(t, StateCrashed, sts[0].State)
	assert.Equal(t, Status{Name: "php", PID: dead, State: StateCrashed}, sts[1])

	assert.False(t, m.Records().Exists("php"))
	assert.False(t, m.Records().Exists("junk"))

	sts, err = m.Status(ctx)
	require.NoError(t, err)
	assert.Empty(t, sts)
}

func TestStatusSortedAndLookup(t *testing.T) {
	table := newFakeTable()
	table.alive[101] = true
	table.alive[102] = true
	m, _ := newTestManager(t, table)
	require.NoError(t, m.Records().Write("php", pidfile.Record{PID: 101}))
	require.NoError(t, m.Records().Write("mysql", pidfile.Record{PID: 102}))

	sts, err := m.Status(context.Background())
	require.NoError(t, err)
	require.Len(t, sts, 2)
	assert.Equal(t, "mysql", sts[0].Name)
	assert.Equal(t, "php", sts[1].Name)

	st, err := m.Lookup(context.Background(), "php")
	require.NoError(t, err)
	assert.Equal(t, StateRunning, st.State)

	st, err = m.Lookup(context.Background(), "adminer")
	require.NoError(t, err)
	assert.Equal(t, StateStopped, st.State)
}

func TestPIDReuseCountsAsDead(t *testing.T) {
	table := newFakeTable()
	table.alive[500] = true
	table.starts[500] = 2_000_000_000
	m, _ := newTestManager(t, table)
	require.NoError(t, m.Records().Write("php", pidfile.Record{PID: 500, StartUnix: 1_700_000_000}))

	res, err := m.Stop(context.Background(), "php")
	require.NoError(t, err)
	require.NotNil(t, res.Warning)
	assert.Empty(t, table.killed, "a reused pid must never be killed")
	assert.False(t, m.Records().Exists("php"))
}

func TestStopUsesTable(t *testing.T) {
	table := newFakeTable()
	table.alive[77] = true
	table.starts[77] = 1_700_000_001
	m, _ := newTestManager(t, table)
	sink := &recSink{}
	m.SetHistorySinks(sink)
	require.NoError(t, m.Records().Write("mysql", pidfile.Record{PID: 77, StartUnix: 1_700_000_000}))

	res, err := m.Stop(context.Background(), "mysql")
	require.NoError(t, err)
	assert.Nil(t, res.Warning)
	assert.Equal(t, []int{77}, table.killed)
	assert.Equal(t, []history.EventType{history.EventStop}, sink.types())
}

func TestStopUnreadableRecord(t *testing.T) {
	m, _ := newTestManager(t, newFakeTable())
	require.NoError(t, os.MkdirAll(m.Records().Dir, 0o750))
	require.NoError(t, os.WriteFile(m.Records().Path("php"), []byte("garbage"), 0o600))

	res, err := m.Stop(context.Background(), "php")
	require.NoError(t, err)
	require.NotNil(t, res.Warning)
	assert.False(t, m.Records().Exists("php"))
}

func TestInitOnce(t *testing.T) {
	requireUnix(t)
	m, root := newTestManager(t, nil)
	ctx := context.Background()
	dataDir := filepath.Join(root, "data", "mysql")

	ran, err := m.InitOnce(ctx, "mysql", "/bin/sh", []string{"-c", "touch " + filepath.Join(dataDir, "ibdata1")}, dataDir, StartOptions{})
	require.NoError(t, err)
	assert.True(t, ran)

	ran, err = m.InitOnce(ctx, "mysql", "/bin/sh", []string{"-c", "exit 9"}, dataDir, StartOptions{})
	require.NoError(t, err)
	assert.False(t, ran, "populated data dir skips initialization")
}

func TestInitOnceFailure(t *testing.T) {
	requireUnix(t)
	m, root := newTestManager(t, nil)
	dataDir := filepath.Join(root, "data", "mysql")

	ran, err := m.InitOnce(context.Background(), "mysql", "/bin/sh",
		[]string{"-c", "echo partial > " + filepath.Join(dataDir, "x") + "; echo 'data directory has files' >&2; exit 1"},
		dataDir, StartOptions{})
	assert.True(t, ran)
	var ie *InitError
	require.True(t, errors.As(err, &ie), "err=%v", err)
	assert.Equal(t, 1, ie.ExitCode)
	assert.Contains(t, ie.Stderr, "data directory has files")
	assert.Contains(t, err.Error(), "data directory has files")

	_, statErr := os.Stat(dataDir)
	assert.True(t, errors.Is(statErr, os.ErrNotExist), "failed init must leave an empty slate")
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}
