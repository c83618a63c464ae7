package uat978

/*------------------------------------------------------------------
 *
 * Purpose:   	Fan decoded packet lines out to TCP clients.
 *
 * Input:	Decoded lines, usually piped from ec978.
 *
 * Outputs:	The same lines, written to every connected client.
 *
 * Description:	Write-only service.  One readiness loop polls standard
 *		input, the listening socket and every client socket; no
 *		other thread of control exists.  Whatever a client sends
 *		is read and discarded, which is also how disconnects are
 *		noticed.
 *
 *		Clients are only ever sent complete lines.  Input before
 *		the first newline is assumed to be a partial line from
 *		attaching mid-stream and is thrown away.
 *
 *		All sockets are nonblocking.  A client too slow to take
 *		a line loses it; one stuck socket must not stall the
 *		pipeline.
 *
 *---------------------------------------------------------------*/

import (
	"bytes"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"golang.org/x/sys/unix"
)

const DefaultFanoutPort = 3333

// Maximum simultaneous connections allowed.
const maxConnections = 10

// FanoutServer broadcasts input lines to every connected client.
// Strictly single threaded: the clients table is only ever touched
// from the readiness loop.
type FanoutServer struct {
	port      int
	boundPort int // actual port after bind, for port 0
	listenFd  int

	clients []*fanoutClient

	inBuf  []byte // partial input line carried between reads
	synced bool   // set once the first newline has gone by

	droppedTotal int
}

type fanoutClient struct {
	fd      int
	addr    string
	dropped int
}

func NewFanoutServer(port int) *FanoutServer {
	return &FanoutServer{
		port:     port,
		listenFd: -1,
	}
}

// Run binds the listening socket and enters the readiness loop.
// Returns when in hits EOF or on a fatal socket error.
func (s *FanoutServer) Run(in *os.File) error {
	if err := s.listen(); err != nil {
		return err
	}
	return s.serve(in)
}

// listen opens the nonblocking listener.  SO_REUSEADDR spares the
// "cannot bind, waiting" dance after a quick restart.
func (s *FanoutServer) listen() error {
	var fd, err = unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return fmt.Errorf("socket: %w", err)
	}

	if err = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return fmt.Errorf("SO_REUSEADDR: %w", err)
	}

	if err = unix.Bind(fd, &unix.SockaddrInet4{Port: s.port}); err != nil {
		unix.Close(fd)
		return fmt.Errorf("binding port %d: %w", s.port, err)
	}

	if err = unix.Listen(fd, maxConnections); err != nil {
		unix.Close(fd)
		return fmt.Errorf("listen: %w", err)
	}

	if err = unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return fmt.Errorf("setting listener nonblocking: %w", err)
	}

	s.boundPort = s.port
	if sa, saErr := unix.Getsockname(fd); saErr == nil {
		if sa4, ok := sa.(*unix.SockaddrInet4); ok {
			s.boundPort = sa4.Port
		}
	}

	s.listenFd = fd
	return nil
}

// serve is the readiness loop.  Each wake handles, in order: new
// connections, client chatter and disconnects, then fresh input.
// Handling the listener first means a client that finished connecting
// before a line arrived is guaranteed to receive it.
func (s *FanoutServer) serve(in *os.File) error {
	defer s.closeAll()

	var inFd = int(in.Fd())

	log.Info("fan-out server listening", "port", s.boundPort)

	for {
		var pfds = make([]unix.PollFd, 0, 2+len(s.clients))
		pfds = append(pfds, unix.PollFd{Fd: int32(s.listenFd), Events: unix.POLLIN})
		pfds = append(pfds, unix.PollFd{Fd: int32(inFd), Events: unix.POLLIN})
		for _, c := range s.clients {
			pfds = append(pfds, unix.PollFd{Fd: int32(c.fd), Events: unix.POLLIN})
		}

		if _, err := unix.Poll(pfds, -1); err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("poll: %w", err)
		}

		// Clients registered after the poll have no revents entry.
		var polled = len(pfds) - 2

		if pfds[0].Revents != 0 {
			s.acceptClient()
		}

		// Client sockets: drain and discard, drop the dead.
		var alive = s.clients[:0]
		for i, c := range s.clients {
			if i >= polled || pfds[2+i].Revents == 0 || s.drainClient(c) {
				alive = append(alive, c)
			}
		}
		s.clients = alive

		if pfds[1].Revents != 0 {
			var done, err = s.readInput(inFd)
			if err != nil {
				return err
			}
			if done {
				return nil
			}
		}
	}
}

// acceptClient drains the whole accept queue, so every connection that
// completed before this wake is registered before any line goes out.
func (s *FanoutServer) acceptClient() {
	for {
		var fd, sa, err = unix.Accept(s.listenFd)
		if err != nil {
			if err != unix.EAGAIN {
				log.Error("accept", "err", err)
			}
			return
		}

		if len(s.clients) >= maxConnections {
			log.Warn("connection limit reached, refusing client")
			unix.Close(fd)
			continue
		}

		if err = unix.SetNonblock(fd, true); err != nil {
			log.Error("setting client nonblocking", "err", err)
			unix.Close(fd)
			continue
		}

		var c = &fanoutClient{fd: fd, addr: sockaddrString(sa)}
		s.clients = append(s.clients, c)

		log.Info("connection", "addr", c.addr)
	}
}

// drainClient reads and discards whatever the client sent.  Reports
// whether the client is still alive; a zero read or a reset means it
// hung up, and its socket is closed here.
func (s *FanoutServer) drainClient(c *fanoutClient) bool {
	var buf [512]byte

	var n, err = unix.Read(c.fd, buf[:])
	switch {
	case err == unix.EAGAIN:
		return true
	case err == unix.ECONNRESET:
		log.Info("RST disconnect from client", "addr", c.addr, "dropped", c.dropped)
	case err != nil || n == 0:
		log.Info("disconnect from client", "addr", c.addr, "dropped", c.dropped)
	default:
		return true
	}

	unix.Close(c.fd)
	return false
}

// readInput pulls a chunk from standard input and broadcasts every
// complete line it yields.  Reports done on EOF.
func (s *FanoutServer) readInput(inFd int) (bool, error) {
	var buf [4096]byte

	var n, err = unix.Read(inFd, buf[:])
	if err == unix.EAGAIN {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading input: %w", err)
	}
	if n == 0 {
		return true, nil
	}

	s.inBuf = append(s.inBuf, buf[:n]...)

	for {
		var line = s.takeLine()
		if line == nil {
			return false, nil
		}
		s.broadcast(line)
	}
}

// takeLine removes and returns the next complete line (with its
// newline) from the input buffer, or nil if none is buffered yet.
// Everything before the very first newline of the run is discarded:
// it may be the tail of a line that started before we did.
func (s *FanoutServer) takeLine() []byte {
	for {
		var idx = bytes.IndexByte(s.inBuf, '\n')
		if idx < 0 {
			return nil
		}

		var line = append([]byte(nil), s.inBuf[:idx+1]...)
		s.inBuf = append(s.inBuf[:0], s.inBuf[idx+1:]...)

		if !s.synced {
			s.synced = true
			continue
		}
		return line
	}
}

// broadcast writes one line to every client.  Writes are nonblocking;
// a client whose socket buffer is full loses the line rather than
// holding up the loop.  Write failures close the client.
func (s *FanoutServer) broadcast(line []byte) {
	var alive = s.clients[:0]

	for _, c := range s.clients {
		var n, err = unix.Write(c.fd, line)
		switch {
		case err == unix.EAGAIN:
			c.dropped++
			s.droppedTotal++
		case err != nil:
			log.Info("write failed, closing client", "addr", c.addr, "err", err)
			unix.Close(c.fd)
			continue
		case n < len(line):
			// Partial line; the remainder would tear the framing, so
			// count it as dropped and move on.
			c.dropped++
			s.droppedTotal++
		}
		alive = append(alive, c)
	}

	s.clients = alive
}

func (s *FanoutServer) closeAll() {
	for _, c := range s.clients {
		unix.Close(c.fd)
	}
	s.clients = nil

	if s.listenFd >= 0 {
		unix.Close(s.listenFd)
		s.listenFd = -1
	}
}

func sockaddrString(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return fmt.Sprintf("%d.%d.%d.%d:%d", a.Addr[0], a.Addr[1], a.Addr[2], a.Addr[3], a.Port)
	case *unix.SockaddrInet6:
		return fmt.Sprintf("[%x]:%d", a.Addr, a.Port)
	default:
		return "unknown"
	}
}
