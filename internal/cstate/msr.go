package cstate

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// msrHandle is an open file descriptor on /dev/cpu/<n>/msr, read via
// pread so repeated reads at different offsets need no seek+read pair.
type msrHandle struct {
	fd  int
	cpu int
}

func openMSR(cpu int) (*msrHandle, error) {
	path := fmt.Sprintf("/dev/cpu/%d/msr", cpu)
	fd, err := unix.Open(path, unix.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &msrHandle{fd: fd, cpu: cpu}, nil
}

// read performs an 8-byte pread at the given MSR offset.
func (h *msrHandle) read(offset int64) (uint64, error) {
	var buf [8]byte
	n, err := unix.Pread(h.fd, buf[:], offset)
	if err != nil {
		return 0, fmt.Errorf("pread msr 0x%x on cpu%d: %w", offset, h.cpu, err)
	}
	if n != 8 {
		return 0, fmt.Errorf("pread msr 0x%x on cpu%d: short read (%d bytes)", offset, h.cpu, n)
	}
	return uint64(buf[0]) | uint64(buf[1])<<8 | uint64(buf[2])<<16 | uint64(buf[3])<<24 |
		uint64(buf[4])<<32 | uint64(buf[5])<<40 | uint64(buf[6])<<48 | uint64(buf[7])<<56, nil
}

func (h *msrHandle) close() error {
	return unix.Close(h.fd)
}

// ReadMSROnce opens, reads, and closes an MSR handle for a single
// offset. Used by one-off readers outside a Bank's paired
// before/after snapshots, such as the idle tracer's SMI counter.
func ReadMSROnce(cpu int, offset int64) (uint64, error) {
	h, err := openMSR(cpu)
	if err != nil {
		return 0, err
	}
	defer h.close()
	return h.read(offset)
}
