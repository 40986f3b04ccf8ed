package scoped

import (
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	sysctl "github.com/lorenzosaino/go-sysctl"

	"github.com/360nosc0pe/scoped/internal/dram"
)

// ChunkSize is the fixed transfer unit of the retrieval protocol: one
// UDP datagram per chunk, raw payload bytes, no header.
const ChunkSize = 1024

// DMAReaderRegs is the DMA reader's register triple {enable, base,
// length}. A 0->1 write of enable rings the doorbell that makes the
// DMASender emit one datagram for the configured window.
type DMAReaderRegs struct {
	mu       sync.Mutex
	base     uint32
	length   uint32
	enable   bool
	doorbell chan struct{}
}

// NewDMAReaderRegs returns registers in the disabled state.
func NewDMAReaderRegs() *DMAReaderRegs {
	return &DMAReaderRegs{doorbell: make(chan struct{}, 1)}
}

// WriteWindow sets the source window for the next send.
func (r *DMAReaderRegs) WriteWindow(base, length uint32) {
	r.mu.Lock()
	r.base, r.length = base, length
	r.mu.Unlock()
}

// WriteEnable writes the enable bit. Only the rising edge triggers a send.
func (r *DMAReaderRegs) WriteEnable(enable bool) {
	r.mu.Lock()
	rising := enable && !r.enable
	r.enable = enable
	r.mu.Unlock()
	if rising {
		select {
		case r.doorbell <- struct{}{}:
		default: // previous doorbell not yet consumed
		}
	}
}

func (r *DMAReaderRegs) window() dram.Region {
	r.mu.Lock()
	defer r.mu.Unlock()
	return dram.Region{Base: r.base, Length: r.length}
}

// DMASender is the device side of the upload protocol: on every doorbell
// it reads the register-selected window out of DRAM and sends it as one
// datagram to the host's data port.
type DMASender struct {
	mem  *dram.Memory
	regs *DMAReaderRegs
	conn *net.UDPConn
}

// NewDMASender dials the host data address, e.g. "192.168.1.100:2000".
func NewDMASender(mem *dram.Memory, regs *DMAReaderRegs, hostAddr string) (*DMASender, error) {
	raddr, err := net.ResolveUDPAddr("udp", hostAddr)
	if err != nil {
		return nil, err
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, err
	}
	return &DMASender{mem: mem, regs: regs, conn: conn}, nil
}

// Run services doorbells until abort closes.
func (s *DMASender) Run(abort <-chan struct{}) {
	for {
		select {
		case <-abort:
			return
		case <-s.regs.doorbell:
			if err := s.sendOne(); err != nil {
				ProblemLogger.Printf("DMA send: %v", err)
			}
		}
	}
}

func (s *DMASender) sendOne() error {
	w := s.regs.window()
	// A window reaching past the end of memory is clamped, as the DMA
	// engine cannot read beyond its port.
	if int(w.End()) > s.mem.Size() {
		w.Length = uint32(s.mem.Size()) - w.Base
	}
	payload, err := s.mem.ReadRegion(w)
	if err != nil {
		return err
	}
	_, err = s.conn.Write(payload)
	return err
}

// Close releases the sender's socket.
func (s *DMASender) Close() error { return s.conn.Close() }

// UploadRegisters is the host's handle on the DMA reader registers. The
// in-process implementation is *DMAReaderRegs; a remote host drives the
// same writes through the RPC server.
type UploadRegisters interface {
	WriteWindow(base, length uint32)
	WriteEnable(enable bool)
}

// UploadClient retrieves a memory region over the chunked UDP protocol:
// for each chunk, program the window, pulse enable, and block on one
// datagram. There are no retries and no sequence numbers. With Timeout
// zero the client reproduces the reference behavior and hangs forever on
// a dropped datagram; a nonzero Timeout turns the loss into an error.
type UploadClient struct {
	regs UploadRegisters
	sock *net.UDPConn

	// Timeout bounds each blocking receive. Zero means wait forever.
	Timeout time.Duration
}

// NewUploadClient binds the local data socket, e.g. "0.0.0.0:2000".
func NewUploadClient(regs UploadRegisters, bindAddr string) (*UploadClient, error) {
	laddr, err := net.ResolveUDPAddr("udp", bindAddr)
	if err != nil {
		return nil, err
	}
	sock, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, err
	}
	checkUDPReceiveBuffer()
	return &UploadClient{regs: regs, sock: sock}, nil
}

// LocalAddr returns the bound address of the data socket.
func (c *UploadClient) LocalAddr() net.Addr { return c.sock.LocalAddr() }

// Retrieve reads length bytes starting at base, one ChunkSize datagram
// at a time, and truncates the result to exactly length.
func (c *UploadClient) Retrieve(base, length uint32) ([]byte, error) {
	data := make([]byte, 0, length)
	buf := make([]byte, ChunkSize)
	var offset uint32
	for offset < length {
		c.regs.WriteEnable(false)
		c.regs.WriteWindow(base+offset, ChunkSize)
		c.regs.WriteEnable(true)

		if c.Timeout > 0 {
			if err := c.sock.SetReadDeadline(time.Now().Add(c.Timeout)); err != nil {
				return nil, err
			}
		}
		n, _, err := c.sock.ReadFromUDP(buf)
		if err != nil {
			return nil, fmt.Errorf("upload: receive at offset %d of %d: %w", offset, length, err)
		}
		data = append(data, buf[:n]...)
		offset += uint32(n)
	}
	return data[:length], nil
}

// Close releases the data socket.
func (c *UploadClient) Close() error { return c.sock.Close() }

// checkUDPReceiveBuffer warns when the kernel receive buffer ceiling is
// small enough that back-to-back chunks could be dropped, since a single
// lost datagram stalls the reference protocol.
func checkUDPReceiveBuffer() {
	val, err := sysctl.Get("net.core.rmem_max")
	if err != nil {
		return
	}
	rmem, err := strconv.Atoi(val)
	if err != nil {
		return
	}
	if rmem < 16*ChunkSize {
		ProblemLogger.Printf("net.core.rmem_max=%d is small; upload datagrams may be dropped", rmem)
	}
}
