package transport

import (
	"bufio"
	"fmt"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// SerialTransport is the go.bug.st/serial-backed Transport variant.
type SerialTransport struct {
	base
	path string
	baud int
	port serial.Port
}

// NewSerial builds a serial Transport for path at baud. Ident follows
// spec.md §3: "serial:<path>@<baud>".
func NewSerial(path string, baud int) *SerialTransport {
	return &SerialTransport{
		base: newBase(fmt.Sprintf("serial:%s@%d", path, baud)),
		path: path,
		baud: baud,
	}
}

func (t *SerialTransport) Open(cb func(error)) {
	mode := &serial.Mode{
		BaudRate: t.baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(t.path, mode)
	if err != nil {
		cb(fmt.Errorf("open serial %s: %w", t.path, err))
		return
	}
	t.port = port
	go t.pump(bufio.NewScanner(port))
	cb(nil)
}

func (t *SerialTransport) Close() error {
	if t.port == nil {
		return nil
	}
	return t.port.Close()
}

func (t *SerialTransport) Write(data []byte) error {
	if t.port == nil {
		return fmt.Errorf("serial %s: not open", t.path)
	}
	_, err := t.port.Write(t.filtered(data))
	return err
}

// EnumeratePorts lists serial ports available on the host, merging
// go.bug.st/serial/enumerator's detailed listing the way
// Engine.getPorts() needs it (path + manufacturer).
type PortInfo struct {
	Path         string
	Manufacturer string
}

func EnumeratePorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("enumerate serial ports: %w", err)
	}
	out := make([]PortInfo, 0, len(details))
	for _, d := range details {
		manufacturer := ""
		if d.IsUSB {
			manufacturer = d.Product
		}
		out = append(out, PortInfo{Path: d.Name, Manufacturer: manufacturer})
	}
	return out, nil
}
