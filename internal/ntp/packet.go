package ntp

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// PacketLength is the size of an SNTP packet on the wire. Extensions and
// authenticators are not supported; trailing bytes are ignored on decode.
const PacketLength = 48

var ErrMalformedPacket = fmt.Errorf("malformed packet: shorter than %d bytes", PacketLength)

type Packet struct {
	Leap    byte /* leap indicator */
	Version byte /* version number */
	Mode    Mode /* mode */
	fieldsEncoded
}

// fieldsEncoded holds every field after the header byte in wire order, so
// the whole block encodes and decodes with a single binary.Write/Read.
type fieldsEncoded struct {
	Stratum   byte      /* stratum */
	Poll      int8      /* poll interval */
	Precision int8      /* precision */
	Rootdelay uint32    /* root delay */
	Rootdisp  uint32    /* root dispersion */
	Refid     uint32    /* reference ID */
	Reftime   Timestamp /* reference time */
	Org       Timestamp /* origin timestamp */
	Rec       Timestamp /* receive timestamp */
	Xmt       Timestamp /* transmit timestamp */
}

func Encode(packet Packet) []byte {
	firstByte := (packet.Leap << 6) | (packet.Version << 3) | byte(packet.Mode)

	var buffer bytes.Buffer
	binary.Write(&buffer, binary.BigEndian, firstByte)
	binary.Write(&buffer, binary.BigEndian, &packet.fieldsEncoded)
	return buffer.Bytes()
}

func Decode(encoded []byte) (Packet, error) {
	if len(encoded) < PacketLength {
		return Packet{}, fmt.Errorf("%w: got %d bytes", ErrMalformedPacket, len(encoded))
	}

	reader := bytes.NewReader(encoded)
	firstByte, _ := reader.ReadByte()

	packet := Packet{
		Leap:    (firstByte >> 6) & 0b11,
		Version: (firstByte >> 3) & 0b111,
		Mode:    Mode(firstByte & 0b111),
	}
	if err := binary.Read(reader, binary.BigEndian, &packet.fieldsEncoded); err != nil {
		return Packet{}, fmt.Errorf("%w: %v", ErrMalformedPacket, err)
	}

	return packet, nil
}

// NewClientRequest builds a mode 3 (client) request whose transmit timestamp
// is the local send time. Every other numeric field stays zero.
func NewClientRequest(transmitMs int64) Packet {
	packet := Packet{
		Leap:    0,
		Version: VERSION,
		Mode:    CLIENT,
	}
	packet.Xmt = FromUnixMilli(transmitMs)
	return packet
}
