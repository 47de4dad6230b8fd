// SPDX-License-Identifier: MIT
package udp

import (
	"encoding/binary"
	"fmt"
	"math"

	"ducker/internal/ducking"
)

/*
Status packet (BigEndian), one per publish interval:

+------------------------------------------------------------------------+
| Field           | Data Type | Size (Bytes) | Description                |
|-----------------|-----------|--------------|----------------------------|
| Sequence Number | uint32    | 4            | Monotonically increasing   |
| Timestamp       | int64     | 8            | Tick time, ns since epoch  |
| Phase           | uint8     | 1            | 0 idle .. 3 entering undk  |
| Flags           | uint8     | 1            | enabled|requesting|emitted |
| Volume          | uint8     | 1            | Last emitted route volume  |
| Duck Step       | uint8     | 1            | Next ducking table index   |
| Unduck Step     | uint8     | 1            | Next unducking table index |
| Reserved        | uint8     | 1            | Zero                       |
| Raw Level       | float32   | 4            | Mic level, dB              |
| Gated Level     | float32   | 4            | Gate output, dB            |
+------------------------------------------------------------------------+
*/

// PacketSize is the length of an encoded status packet.
const PacketSize = 26

// Flag bits.
const (
	FlagEnabled uint8 = 1 << iota
	FlagRequesting
	FlagEmitted
)

// Packet is a decoded status datagram.
type Packet struct {
	Sequence   uint32
	Timestamp  int64
	Phase      ducking.Phase
	Flags      uint8
	Volume     uint8
	DuckStep   uint8
	UnduckStep uint8
	RawDB      float32
	GatedDB    float32
}

// EncodeStatus packs s into buf.
func EncodeStatus(buf *[PacketSize]byte, seq uint32, s ducking.Status) {
	var flags uint8
	if s.Enabled {
		flags |= FlagEnabled
	}
	if s.Requesting {
		flags |= FlagRequesting
	}
	if s.Emitted {
		flags |= FlagEmitted
	}

	var ts int64
	if !s.Time.IsZero() {
		ts = s.Time.UnixNano()
	}

	binary.BigEndian.PutUint32(buf[0:4], seq)
	binary.BigEndian.PutUint64(buf[4:12], uint64(ts))
	buf[12] = uint8(s.Phase)
	buf[13] = flags
	buf[14] = s.Volume
	buf[15] = clampStep(s.DuckStep)
	buf[16] = clampStep(s.UnduckStep)
	buf[17] = 0
	binary.BigEndian.PutUint32(buf[18:22], math.Float32bits(float32(s.RawDB)))
	binary.BigEndian.PutUint32(buf[22:26], math.Float32bits(float32(s.GatedDB)))
}

func clampStep(i int) uint8 {
	return uint8(min(max(i, 0), math.MaxUint8))
}

// DecodePacket parses a datagram produced by EncodeStatus.
func DecodePacket(data []byte) (Packet, error) {
	if len(data) != PacketSize {
		return Packet{}, fmt.Errorf("status packet is %d bytes, want %d", len(data), PacketSize)
	}
	return Packet{
		Sequence:   binary.BigEndian.Uint32(data[0:4]),
		Timestamp:  int64(binary.BigEndian.Uint64(data[4:12])),
		Phase:      ducking.Phase(data[12]),
		Flags:      data[13],
		Volume:     data[14],
		DuckStep:   data[15],
		UnduckStep: data[16],
		RawDB:      math.Float32frombits(binary.BigEndian.Uint32(data[18:22])),
		GatedDB:    math.Float32frombits(binary.BigEndian.Uint32(data[22:26])),
	}, nil
}
