package nfc

import (
	"encoding/binary"
	"errors"
)

// TNF values used by the prescription record
const (
	tnfMedia byte = 0x02
	tnfMask  byte = 0x07

	flagMB byte = 0x80
	flagME byte = 0x40
	flagCF byte = 0x20
	flagSR byte = 0x10
	flagIL byte = 0x08

	shortRecordMaxLen = 255
)

var errTruncatedRecord = errors.New("ndef: truncated record data")

// record is a single NDEF record
type record struct {
	tnf     byte
	typ     string
	id      string
	payload []byte
}

// marshal serializes the record as the only record of a message (MB and ME set)
func (r record) marshal() []byte {
	typeBytes := []byte(r.typ)
	idBytes := []byte(r.id)
	payloadLen := len(r.payload)

	flags := (r.tnf & tnfMask) | flagMB | flagME
	if payloadLen <= shortRecordMaxLen {
		flags |= flagSR
	}
	if len(idBytes) > 0 {
		flags |= flagIL
	}

	header := []byte{flags, byte(len(typeBytes))}
	if payloadLen <= shortRecordMaxLen {
		header = append(header, byte(payloadLen))
	} else {
		lenBytes := make([]byte, 4)
		binary.BigEndian.PutUint32(lenBytes, uint32(payloadLen))
		header = append(header, lenBytes...)
	}
	if len(idBytes) > 0 {
		header = append(header, byte(len(idBytes)))
	}

	out := make([]byte, 0, len(header)+len(typeBytes)+len(idBytes)+payloadLen)
	out = append(out, header...)
	out = append(out, typeBytes...)
	out = append(out, idBytes...)
	out = append(out, r.payload...)
	return out
}

// unmarshalRecord parses one NDEF record and returns the number of bytes consumed
func unmarshalRecord(data []byte) (record, int, error) {
	var r record
	if len(data) < 3 {
		return r, 0, errTruncatedRecord
	}

	flags := data[0]
	if flags&flagCF != 0 {
		return r, 0, errors.New("ndef: chunked records not supported")
	}
	r.tnf = flags & tnfMask
	isShort := flags&flagSR != 0
	hasID := flags&flagIL != 0

	typeLen := int(data[1])
	offset := 2

	var payloadLen int
	if isShort {
		payloadLen = int(data[offset])
		offset++
	} else {
		if offset+4 > len(data) {
			return r, 0, errTruncatedRecord
		}
		payloadLen = int(binary.BigEndian.Uint32(data[offset : offset+4]))
		offset += 4
	}

	var idLen int
	if hasID {
		if offset >= len(data) {
			return r, 0, errTruncatedRecord
		}
		idLen = int(data[offset])
		offset++
	}

	if payloadLen < 0 || offset+typeLen+idLen+payloadLen > len(data) {
		return r, 0, errTruncatedRecord
	}

	r.typ = string(data[offset : offset+typeLen])
	offset += typeLen
	r.id = string(data[offset : offset+idLen])
	offset += idLen
	r.payload = make([]byte, payloadLen)
	copy(r.payload, data[offset:offset+payloadLen])
	offset += payloadLen

	return r, offset, nil
}
