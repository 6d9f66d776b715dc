package discovery

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// SOOD packet constants.
const (
	soodMagic   = "SOOD"
	soodVersion = 2

	// PacketQuery marks a query packet.
	PacketQuery byte = 'Q'

	// PacketResponse marks a response packet.
	PacketResponse byte = 'R'

	nullValueLen = 0xFFFF
	maxNameLen   = 0xFF
	maxValueLen  = 0xFFFE
)

// Well-known property names.
const (
	PropServiceID      = "service_id"
	PropQueryServiceID = "query_service_id"
	PropTransactionID  = "_tid"
	PropUniqueID       = "unique_id"
	PropName           = "name"
	PropDisplayVersion = "display_version"
	PropHTTPPort       = "http_port"
	PropReplyAddr      = "_replyaddr"
	PropReplyPort      = "_replyport"
)

// Packet errors.
var (
	ErrBadMagic       = errors.New("not a sood packet")
	ErrBadVersion     = errors.New("unsupported sood version")
	ErrShortPacket    = errors.New("sood packet truncated")
	ErrPropertyLength = errors.New("sood property too long")
)

// Property is one name/value pair. Null values have Null set and an empty
// Value.
type Property struct {
	Name  string
	Value string
	Null  bool
}

// Packet is a decoded SOOD datagram.
type Packet struct {
	Type  byte
	Props []Property
}

// Get returns the value of the first property called name. Null and absent
// properties both report ok=false.
func (p *Packet) Get(name string) (string, bool) {
	for _, prop := range p.Props {
		if prop.Name == name {
			if prop.Null {
				return "", false
			}
			return prop.Value, true
		}
	}
	return "", false
}

// Set appends or replaces a property.
func (p *Packet) Set(name, value string) {
	for i := range p.Props {
		if p.Props[i].Name == name {
			p.Props[i] = Property{Name: name, Value: value}
			return
		}
	}
	p.Props = append(p.Props, Property{Name: name, Value: value})
}

// MarshalBinary encodes the packet.
func (p *Packet) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(soodMagic)
	buf.WriteByte(soodVersion)
	buf.WriteByte(p.Type)

	for _, prop := range p.Props {
		if len(prop.Name) == 0 || len(prop.Name) > maxNameLen {
			return nil, fmt.Errorf("%w: name %q", ErrPropertyLength, prop.Name)
		}
		if len(prop.Value) > maxValueLen {
			return nil, fmt.Errorf("%w: value of %q", ErrPropertyLength, prop.Name)
		}
		buf.WriteByte(byte(len(prop.Name)))
		buf.WriteString(prop.Name)

		var l [2]byte
		if prop.Null {
			binary.BigEndian.PutUint16(l[:], nullValueLen)
			buf.Write(l[:])
			continue
		}
		binary.BigEndian.PutUint16(l[:], uint16(len(prop.Value)))
		buf.Write(l[:])
		buf.WriteString(prop.Value)
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes a packet.
func (p *Packet) UnmarshalBinary(data []byte) error {
	if len(data) < len(soodMagic)+2 {
		return ErrShortPacket
	}
	if string(data[:len(soodMagic)]) != soodMagic {
		return ErrBadMagic
	}
	if data[4] != soodVersion {
		return fmt.Errorf("%w: %d", ErrBadVersion, data[4])
	}
	p.Type = data[5]
	p.Props = nil

	rest := data[6:]
	for len(rest) > 0 {
		nameLen := int(rest[0])
		rest = rest[1:]
		if nameLen == 0 || len(rest) < nameLen+2 {
			return ErrShortPacket
		}
		name := string(rest[:nameLen])
		rest = rest[nameLen:]

		valueLen := int(binary.BigEndian.Uint16(rest[:2]))
		rest = rest[2:]
		if valueLen == nullValueLen {
			p.Props = append(p.Props, Property{Name: name, Null: true})
			continue
		}
		if len(rest) < valueLen {
			return ErrShortPacket
		}
		p.Props = append(p.Props, Property{Name: name, Value: string(rest[:valueLen])})
		rest = rest[valueLen:]
	}
	return nil
}

// NewQuery builds a query for serviceID with transaction id tid.
func NewQuery(serviceID, tid string) *Packet {
	return &Packet{
		Type: PacketQuery,
		Props: []Property{
			{Name: PropQueryServiceID, Value: serviceID},
			{Name: PropTransactionID, Value: tid},
		},
	}
}
