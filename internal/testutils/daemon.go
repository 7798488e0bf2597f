package testutils

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"
)

// Handler answers a command. Returning CloseConnection as status closes the
// connection without replying.
type Handler func(args []string) (status int, body string)

// CloseConnection makes the daemon hang up instead of replying.
const CloseConnection = -1

// Exchange records one command received by the FakeDaemon.
type Exchange struct {
	Conn       int // connection sequence number, starting at 1
	Line       string
	Command    string
	Args       []string
	ReceivedAt time.Time
	RepliedAt  time.Time // when the last part of the reply was written, zero until then
}

// FakeDaemon is a TCP server speaking the management protocol.
// Commands are read by a dedicated goroutine per connection, so ReceivedAt
// reflects when the client wrote them even while a reply is in progress.
type FakeDaemon struct {
	listener net.Listener

	mu        sync.Mutex
	handlers  map[string]Handler
	exchanges []*Exchange
	conns     map[net.Conn]struct{}
	accepted  int
	bodyDelay time.Duration
	banner    string

	wg sync.WaitGroup
}

// NewFakeDaemon starts a daemon on a random local port, stopped at test cleanup.
func NewFakeDaemon(t testing.TB) *FakeDaemon {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to start fake daemon: %v", err)
	}

	d := &FakeDaemon{
		listener: listener,
		handlers: make(map[string]Handler),
		conns:    make(map[net.Conn]struct{}),
	}
	d.Handle("ping", pingHandler)
	d.Reply("status", 200, "Child in state running")

	d.wg.Add(1)
	go d.acceptLoop()

	t.Cleanup(d.Close)
	return d
}

func pingHandler(args []string) (int, string) {
	ts := fmt.Sprint(time.Now().Unix())
	if len(args) > 0 {
		ts = args[0]
	}
	return 200, "PONG " + ts + " 1.0"
}

// Addr returns the "host:port" the daemon listens on.
func (d *FakeDaemon) Addr() string {
	return d.listener.Addr().String()
}

// Handle registers the handler for a command.
func (d *FakeDaemon) Handle(command string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[command] = h
}

// Reply registers a fixed reply for a command.
func (d *FakeDaemon) Reply(command string, status int, body string) {
	d.Handle(command, func([]string) (int, string) { return status, body })
}

// SetBodyDelay delays every reply body after its header line.
func (d *FakeDaemon) SetBodyDelay(delay time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bodyDelay = delay
}

// SetBanner makes the daemon greet new connections with a response.
func (d *FakeDaemon) SetBanner(status int, body string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.banner = Reply(status, body)
}

// Exchanges returns a copy of every command received so far.
func (d *FakeDaemon) Exchanges() []Exchange {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]Exchange, len(d.exchanges))
	for i, ex := range d.exchanges {
		out[i] = *ex
	}
	return out
}

// Count returns how many times command was received.
func (d *FakeDaemon) Count(command string) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := 0
	for _, ex := range d.exchanges {
		if ex.Command == command {
			n++
		}
	}
	return n
}

// Accepted returns the number of connections accepted so far.
func (d *FakeDaemon) Accepted() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.accepted
}

// DropConnections closes every open connection, as a daemon restart would.
func (d *FakeDaemon) DropConnections() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for c := range d.conns {
		c.Close()
	}
}

// Close stops the daemon and waits for its goroutines.
func (d *FakeDaemon) Close() {
	d.listener.Close()
	d.DropConnections()
	d.wg.Wait()
}

func (d *FakeDaemon) acceptLoop() {
	defer d.wg.Done()

	for {
		c, err := d.listener.Accept()
		if err != nil {
			return
		}

		d.mu.Lock()
		d.accepted++
		id := d.accepted
		d.conns[c] = struct{}{}
		d.mu.Unlock()

		d.wg.Add(1)
		go d.serve(id, c)
	}
}

func (d *FakeDaemon) serve(id int, c net.Conn) {
	defer d.wg.Done()
	defer func() {
		d.mu.Lock()
		delete(d.conns, c)
		d.mu.Unlock()
		c.Close()
	}()

	d.mu.Lock()
	banner := d.banner
	d.mu.Unlock()
	if banner != "" {
		if _, err := io.WriteString(c, banner); err != nil {
			return
		}
	}

	done := make(chan struct{})
	defer close(done)

	lines := make(chan *Exchange, 16)
	d.wg.Add(1)
	go d.readLoop(id, c, lines, done)

	for ex := range lines {
		if ex.Command == "quit" {
			io.WriteString(c, Reply(500, "Closing CLI connection"))
			return
		}

		status, body := d.handler(ex.Command)(ex.Args)
		if status == CloseConnection {
			return
		}

		if _, err := fmt.Fprintf(c, "%d %d\n", status, len(body)); err != nil {
			return
		}
		if delay := d.delay(); delay > 0 {
			time.Sleep(delay)
		}

		// Stamped before the write: the client can't send its next command
		// before receiving the body.
		d.mu.Lock()
		ex.RepliedAt = time.Now()
		d.mu.Unlock()

		if _, err := io.WriteString(c, body+"\n"); err != nil {
			return
		}
	}
}

func (d *FakeDaemon) readLoop(id int, c net.Conn, lines chan<- *Exchange, done <-chan struct{}) {
	defer d.wg.Done()
	defer close(lines)

	r := bufio.NewReader(c)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimSuffix(line, "\n")

		command, rest, _ := strings.Cut(line, " ")
		ex := &Exchange{
			Conn:       id,
			Line:       line,
			Command:    command,
			Args:       strings.Fields(rest),
			ReceivedAt: time.Now(),
		}

		d.mu.Lock()
		d.exchanges = append(d.exchanges, ex)
		d.mu.Unlock()

		select {
		case lines <- ex:
		case <-done:
			return
		}
	}
}

func (d *FakeDaemon) handler(command string) Handler {
	d.mu.Lock()
	defer d.mu.Unlock()

	if h, ok := d.handlers[command]; ok {
		return h
	}
	return func([]string) (int, string) {
		return 101, "Unknown request.\nType 'help' for more info."
	}
}

func (d *FakeDaemon) delay() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.bodyDelay
}
