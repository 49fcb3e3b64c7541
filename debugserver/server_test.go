package debugserver

import (
	"context"
	"fmt"
	"io"
	"net"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberinferno/debugserver/config"
	"github.com/cyberinferno/debugserver/console"
	"github.com/cyberinferno/debugserver/resolver"
)

const (
	waitFor = 2 * time.Second
	tick    = 10 * time.Millisecond
)

type fixture struct {
	srv    *Server
	out    *console.Buffer
	stdin  *io.PipeWriter
	cancel context.CancelFunc
	done   chan error
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Server.GracePeriod = 500 * time.Millisecond
	return cfg
}

func startFixture(t *testing.T, opts Options) *fixture {
	t.Helper()

	pr, pw := io.Pipe()
	out := &console.Buffer{}

	if opts.Config == nil {
		opts.Config = testConfig()
	}
	opts.Console = out
	opts.Input = pr

	f := &fixture{
		srv:   New(opts),
		out:   out,
		stdin: pw,
		done:  make(chan error, 1),
	}

	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel

	go func() { f.done <- f.srv.Run(ctx) }()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "[*] Type 'help' for available commands")
	}, waitFor, tick)

	t.Cleanup(func() {
		cancel()
		_ = pw.Close()
		select {
		case <-f.done:
		case <-time.After(waitFor):
			t.Error("server did not stop")
		}
	})

	return f
}

func (f *fixture) dial(t *testing.T) net.Conn {
	t.Helper()

	conn, err := net.Dial("tcp", f.srv.ListenAddr().String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func (f *fixture) command(t *testing.T, line string) {
	t.Helper()

	_, err := io.WriteString(f.stdin, line+"\n")
	require.NoError(t, err)
}

func (f *fixture) waitClients(t *testing.T, n int) {
	t.Helper()

	require.Eventually(t, func() bool {
		return f.srv.Registry().Snapshot().ClientCount == n
	}, waitFor, tick)
}

func (f *fixture) waitOutput(t *testing.T, substr string) {
	t.Helper()

	require.Eventually(t, func() bool {
		return strings.Contains(f.out.String(), substr)
	}, waitFor, tick, "console never showed %q", substr)
}

func TestServer_Start(t *testing.T) {
	t.Run("prints the startup banners", func(t *testing.T) {
		f := startFixture(t, Options{})

		port := f.srv.ListenAddr().(*net.TCPAddr).Port
		out := f.out.String()
		assert.Contains(t, out, fmt.Sprintf("[*] Debug server started, listening on 127.0.0.1:%d", port))
		assert.Contains(t, out, "[*] Waiting for connections...")

		snap := f.srv.Registry().Snapshot()
		assert.True(t, snap.Running)
		assert.Equal(t, fmt.Sprintf("127.0.0.1:%d", port), snap.Addr)
	})

	t.Run("bind failure runs the stop path", func(t *testing.T) {
		taken, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		defer taken.Close()

		cfg := testConfig()
		cfg.Server.Port = taken.Addr().(*net.TCPAddr).Port

		out := &console.Buffer{}
		srv := New(Options{Config: cfg, Console: out, Input: strings.NewReader("")})

		err = srv.Run(context.Background())
		require.Error(t, err)

		text := out.String()
		assert.Contains(t, text, "[!] Server failed to start")
		assert.Contains(t, text, "[*] Stopping server...")
		assert.True(t, strings.HasSuffix(text, "[*] Server stopped\n"))
		assert.False(t, srv.Registry().Running())
	})
}

func TestServer_SingleClient(t *testing.T) {
	f := startFixture(t, Options{})
	conn := f.dial(t)

	f.waitClients(t, 1)
	f.waitOutput(t, "[+] New connection: "+conn.LocalAddr().String()+" - ")

	_, err := conn.Write([]byte("hello"))
	require.NoError(t, err)

	f.waitOutput(t, "  hello\n")
	assert.Regexp(t, regexp.MustCompile(`\n\[\d{2}:\d{2}:\d{2}\.\d{3}\]:\n  hello\n`), f.out.String())
	assert.NotContains(t, f.out.String(), "from "+conn.LocalAddr().String())

	snap := f.srv.Registry().Snapshot()
	assert.Equal(t, 1, snap.ClientCount)
	assert.Equal(t, 1, snap.TotalClients)
	assert.Equal(t, 1, snap.TotalMessages)
}

func TestServer_TwoClients(t *testing.T) {
	f := startFixture(t, Options{})
	a := f.dial(t)
	b := f.dial(t)
	f.waitClients(t, 2)

	_, err := a.Write([]byte("from a"))
	require.NoError(t, err)
	_, err = b.Write([]byte("from b"))
	require.NoError(t, err)

	f.waitOutput(t, "] from "+a.LocalAddr().String()+":\n  from a\n")
	f.waitOutput(t, "] from "+b.LocalAddr().String()+":\n  from b\n")

	snap := f.srv.Registry().Snapshot()
	assert.Equal(t, 2, snap.TotalClients)
	assert.Equal(t, 2, snap.TotalMessages)
}

func TestServer_BinaryData(t *testing.T) {
	f := startFixture(t, Options{})
	conn := f.dial(t)
	f.waitClients(t, 1)

	_, err := conn.Write([]byte{0xff, 0xfe, 0x00})
	require.NoError(t, err)

	f.waitOutput(t, "  [Undecodable binary data: 3 bytes]\n")
	assert.Equal(t, 1, f.srv.Registry().Snapshot().TotalMessages)

	// the session survives a placeholder
	_, err = conn.Write([]byte("still here"))
	require.NoError(t, err)
	f.waitOutput(t, "  still here\n")
}

func TestServer_SilentDisconnect(t *testing.T) {
	f := startFixture(t, Options{})
	conn := f.dial(t)
	f.waitClients(t, 1)

	peer := conn.LocalAddr().String()
	require.NoError(t, conn.Close())

	f.waitClients(t, 0)
	f.waitOutput(t, fmt.Sprintf("[-] Client %s disconnected\n", peer))

	snap := f.srv.Registry().Snapshot()
	assert.Equal(t, 1, snap.TotalClients)
	assert.Equal(t, 0, snap.TotalMessages)
}

func TestServer_Exit(t *testing.T) {
	for _, cmd := range []string{"exit", "quit", "  EXIT  "} {
		t.Run(strings.TrimSpace(cmd), func(t *testing.T) {
			f := startFixture(t, Options{})
			conn := f.dial(t)
			f.waitClients(t, 1)
			addr := f.srv.ListenAddr().String()

			f.command(t, cmd)

			select {
			case err := <-f.done:
				require.NoError(t, err)
				f.done <- err
			case <-time.After(time.Second + 500*time.Millisecond):
				t.Fatal("Run did not return after exit")
			}

			out := f.out.String()
			assert.Contains(t, out, "[*] Stopping server...")
			assert.True(t, strings.HasSuffix(out, "[*] Server stopped\n"), out)
			assert.NotContains(t, out, "Interrupt received")
			assert.NotContains(t, out, "[-] Client")

			// late traffic never reaches the console
			_, _ = conn.Write([]byte("too late"))
			time.Sleep(50 * time.Millisecond)
			assert.Equal(t, out, f.out.String())

			_, err := net.DialTimeout("tcp", addr, 200*time.Millisecond)
			assert.Error(t, err)

			snap := f.srv.Registry().Snapshot()
			assert.False(t, snap.Running)
			assert.Equal(t, 0, snap.ClientCount)
		})
	}
}

func TestServer_UnknownCommand(t *testing.T) {
	f := startFixture(t, Options{})
	before := f.srv.Registry().Snapshot()

	f.command(t, "foo")
	f.waitOutput(t, "[!] Unknown command: 'foo'. Type 'help' for available commands\n")

	after := f.srv.Registry().Snapshot()
	assert.True(t, after.Running)
	assert.Equal(t, before.ClientCount, after.ClientCount)
	assert.Equal(t, before.TotalClients, after.TotalClients)
	assert.Equal(t, before.TotalMessages, after.TotalMessages)
}

func TestServer_Status(t *testing.T) {
	f := startFixture(t, Options{})
	conn := f.dial(t)
	f.waitClients(t, 1)

	_, err := conn.Write([]byte("ping"))
	require.NoError(t, err)
	f.waitOutput(t, "  ping\n")

	f.command(t, "status")
	f.waitOutput(t, "    Total messages: 1 message(s)\n")

	out := f.out.String()
	assert.Contains(t, out, "    Listen address: "+f.srv.Registry().Snapshot().Addr+"\n")
	assert.Contains(t, out, "    Current connections: 1 client(s)\n")
	assert.Contains(t, out, "    Total connections: 1 client(s)\n")
}

func TestServer_Interrupt(t *testing.T) {
	f := startFixture(t, Options{})

	f.cancel()

	select {
	case err := <-f.done:
		require.NoError(t, err)
		f.done <- err
	case <-time.After(waitFor):
		t.Fatal("Run did not return after cancel")
	}

	out := f.out.String()
	assert.Contains(t, out, "\n[*] Interrupt received\n")
	assert.True(t, strings.HasSuffix(out, "[*] Server stopped\n"))
}

func TestServer_InputClosed(t *testing.T) {
	f := startFixture(t, Options{})

	require.NoError(t, f.stdin.Close())

	// the server keeps accepting without a console
	conn := f.dial(t)
	f.waitClients(t, 1)
	_, err := conn.Write([]byte("after eof"))
	require.NoError(t, err)
	f.waitOutput(t, "  after eof\n")

	select {
	case <-f.done:
		t.Fatal("Run returned after stdin closed")
	default:
	}
}

func TestServer_Resolve(t *testing.T) {
	lookup := func(_ context.Context, host string) ([]string, error) {
		return []string{"localhost."}, nil
	}

	f := startFixture(t, Options{Resolver: resolver.New(lookup, time.Minute, time.Second)})
	conn := f.dial(t)

	f.waitOutput(t, "[+] New connection: "+conn.LocalAddr().String()+" (localhost) - ")
}

func TestServer_StopTwice(t *testing.T) {
	f := startFixture(t, Options{})

	f.srv.Stop()
	f.srv.Stop()

	assert.Equal(t, 1, strings.Count(f.out.String(), "[*] Server stopped"))
	assert.False(t, f.srv.Registry().Running())
}
