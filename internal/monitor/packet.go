// SPDX-License-Identifier: MIT

// Package monitor publishes playback progress off the real-time thread.
package monitor

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/google/uuid"
)

/*
Progress Packet Structure (BigEndian)

+-----------------------------------------------------------------------------+
| Field             | Data Type      | Size (Bytes) | Description             |
|-------------------|----------------|--------------|-------------------------|
| Sequence Number   | uint32         | 4            | Monotonically increasing|
| Timestamp         | int64          | 8            | Nanoseconds since epoch |
| Session ID        | [16]byte       | 16           | UUID of the session     |
| State             | uint8          | 1            | Player state            |
| Delivered         | int64          | 8            | Frames delivered        |
| Budget            | int64          | 8            | Session frame budget    |
| Callbacks         | uint64         | 8            | Callbacks served        |
| Underruns         | uint64         | 8            | Output under/overflows  |
+-----------------------------------------------------------------------------+
*/

// PacketSize is the length of an encoded Packet.
const PacketSize = 4 + 8 + 16 + 1 + 8 + 8 + 8 + 8

// Packet is one progress snapshot as published to a transport.
type Packet struct {
	Seq       uint32    `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Session   string    `json:"session"`
	State     string    `json:"state"`
	StateCode uint8     `json:"state_code"`
	Delivered int64     `json:"delivered"`
	Budget    int64     `json:"budget"`
	Callbacks uint64    `json:"callbacks"`
	Underruns uint64    `json:"underruns"`
}

// MarshalBinary encodes p in the fixed big-endian layout above.
func (p Packet) MarshalBinary() ([]byte, error) {
	id, err := uuid.Parse(p.Session)
	if err != nil {
		return nil, fmt.Errorf("invalid session id %q: %w", p.Session, err)
	}

	b := make([]byte, 0, PacketSize)
	b = binary.BigEndian.AppendUint32(b, p.Seq)
	b = binary.BigEndian.AppendUint64(b, uint64(p.Timestamp.UnixNano()))
	b = append(b, id[:]...)
	b = append(b, p.StateCode)
	b = binary.BigEndian.AppendUint64(b, uint64(p.Delivered))
	b = binary.BigEndian.AppendUint64(b, uint64(p.Budget))
	b = binary.BigEndian.AppendUint64(b, p.Callbacks)
	b = binary.BigEndian.AppendUint64(b, p.Underruns)
	return b, nil
}

// UnmarshalBinary decodes a packet produced by MarshalBinary. State is
// left empty; only StateCode travels on the wire.
func (p *Packet) UnmarshalBinary(b []byte) error {
	if len(b) != PacketSize {
		return fmt.Errorf("packet is %d bytes, want %d", len(b), PacketSize)
	}
	p.Seq = binary.BigEndian.Uint32(b[0:])
	p.Timestamp = time.Unix(0, int64(binary.BigEndian.Uint64(b[4:])))
	id, err := uuid.FromBytes(b[12:28])
	if err != nil {
		return err
	}
	p.Session = id.String()
	p.StateCode = b[28]
	p.Delivered = int64(binary.BigEndian.Uint64(b[29:]))
	p.Budget = int64(binary.BigEndian.Uint64(b[37:]))
	p.Callbacks = binary.BigEndian.Uint64(b[45:])
	p.Underruns = binary.BigEndian.Uint64(b[53:])
	return nil
}

// Percent returns delivered frames as a percentage of the budget.
func (p Packet) Percent() float64 {
	if p.Budget <= 0 {
		return 0
	}
	return 100 * float64(p.Delivered) / float64(p.Budget)
}

// String formats the packet as a one-line progress report.
func (p Packet) String() string {
	return fmt.Sprintf("#%d %s %s %d/%d frames (%.1f%%) callbacks=%d underruns=%d",
		p.Seq, p.Session, p.State, p.Delivered, p.Budget, p.Percent(), p.Callbacks, p.Underruns)
}
