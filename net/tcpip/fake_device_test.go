// Kestrel kernel
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package tcpip

import "context"

// fakeDevice is an in-memory Device used to exercise Interface without
// any real hardware: Send appends to sent, Receive drains a queue the
// test fills directly.
type fakeDevice struct {
	mac  [6]byte
	sent [][]byte
	rx   [][]byte
}

func newFakeDevice(mac [6]byte) *fakeDevice {
	return &fakeDevice{mac: mac}
}

func (d *fakeDevice) LinkAddress() [6]byte { return d.mac }
func (d *fakeDevice) MTU() int             { return 1500 }

func (d *fakeDevice) Send(frame []byte) error {
	d.sent = append(d.sent, append([]byte(nil), frame...))
	return nil
}

func (d *fakeDevice) Receive() ([]byte, bool) {
	if len(d.rx) == 0 {
		return nil, false
	}
	frame := d.rx[0]
	d.rx = d.rx[1:]
	return frame, true
}

func (d *fakeDevice) queue(frame []byte) {
	d.rx = append(d.rx, frame)
}

func (d *fakeDevice) Poll(ctx context.Context) <-chan struct{} {
	ch := make(chan struct{})
	if len(d.rx) > 0 {
		close(ch)
	}
	return ch
}
