package control

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"

	"github.com/kballard/go-shellquote"
)

// StatusSpawnFailed is the disconnect status reported when the
// multiplexer binary cannot be located or fails to start; real exit
// statuses are never negative.
const StatusSpawnFailed = -1

var errNotStarted = errors.New("transport not started")

// Transport owns the control-mode child process and its byte streams.
// It never interprets their content: complete lines go to the onLine
// callback and commands are written verbatim plus a newline.
//
// Disconnect is reported exactly once, either synchronously from a failed
// spawn (with StatusSpawnFailed) or from the process waiter with the exit
// status. The reader observing EOF and the waiter observing exit can
// race; the waiter is the single reporting path.
type Transport struct {
	onLine       func(line string)
	onDisconnect func(status int)

	mu    sync.Mutex
	cmd   *exec.Cmd
	stdin io.WriteCloser

	disconnectOnce sync.Once
	readerDone     chan struct{}
}

// NewTransport creates a transport delivering lines and the disconnect
// signal to the given callbacks. Both run on transport-owned goroutines;
// onLine is always called from a single goroutine, in stream order.
func NewTransport(onLine func(string), onDisconnect func(status int)) *Transport {
	return &Transport{
		onLine:       onLine,
		onDisconnect: onDisconnect,
		readerDone:   make(chan struct{}),
	}
}

// StartLocal spawns the multiplexer in control mode. With a session name
// it attaches to that session, otherwise it creates a new one.
func (t *Transport) StartLocal(sessionName, binaryPath string) error {
	argv := controlModeArgs(binaryPath, sessionName)
	return t.start(argv)
}

// StartRemote spawns the multiplexer on host via a secure-shell client.
// The remote command is quoted into a single argument so the remote shell
// reassembles the exact argument vector.
func (t *Transport) StartRemote(host, sessionName, sshPath string) error {
	remote := shellquote.Join(controlModeArgs("tmux", sessionName)...)
	return t.start([]string{sshPath, host, remote})
}

func controlModeArgs(binaryPath, sessionName string) []string {
	if sessionName != "" {
		return []string{binaryPath, "-CC", "attach-session", "-t", sessionName}
	}
	return []string{binaryPath, "-CC", "new-session"}
}

func (t *Transport) start(argv []string) error {
	cmd := exec.Command(argv[0], argv[1:]...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		t.signalDisconnect(StatusSpawnFailed)
		return fmt.Errorf("create stdout pipe: %w", err)
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		t.signalDisconnect(StatusSpawnFailed)
		return fmt.Errorf("create stdin pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		t.signalDisconnect(StatusSpawnFailed)
		return fmt.Errorf("start %s: %w", argv[0], err)
	}

	t.mu.Lock()
	t.cmd = cmd
	t.stdin = stdin
	t.mu.Unlock()

	go t.readLoop(stdout)
	go t.waitLoop(cmd)
	return nil
}

// Send writes one command line. The caller must not include a trailing
// newline; Send appends exactly one.
func (t *Transport) Send(command string) error {
	t.mu.Lock()
	stdin := t.stdin
	t.mu.Unlock()
	if stdin == nil {
		return errNotStarted
	}
	_, err := io.WriteString(stdin, command+"\n")
	return err
}

// Detach asks the multiplexer to detach this client, which ends the
// process cleanly.
func (t *Transport) Detach() error {
	return t.Send("detach-client")
}

// Terminate kills the child process if it is still running. The waiter
// reports the resulting disconnect.
func (t *Transport) Terminate() {
	t.mu.Lock()
	cmd := t.cmd
	stdin := t.stdin
	t.mu.Unlock()

	if stdin != nil {
		stdin.Close()
	}
	if cmd != nil && cmd.Process != nil {
		cmd.Process.Kill()
	}
}

// readLoop forwards complete lines to onLine. bufio.Scanner strips the
// trailing newline and carriage return, and delivers a non-empty final
// remainder at EOF as its last token.
func (t *Transport) readLoop(r io.Reader) {
	defer close(t.readerDone)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		t.onLine(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		slog.Error("control: transport read error", "error", err)
	}
}

// waitLoop observes process exit and reports the disconnect. It waits
// for the reader first: Wait closes the stdout pipe, and calling it while
// the reader is still draining would truncate the stream.
func (t *Transport) waitLoop(cmd *exec.Cmd) {
	<-t.readerDone
	err := cmd.Wait()

	status := 0
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		status = exitErr.ExitCode()
	} else if err != nil {
		slog.Error("control: wait for multiplexer", "error", err)
		status = StatusSpawnFailed
	}
	t.signalDisconnect(status)
}

func (t *Transport) signalDisconnect(status int) {
	t.disconnectOnce.Do(func() {
		if t.onDisconnect != nil {
			t.onDisconnect(status)
		}
	})
}
