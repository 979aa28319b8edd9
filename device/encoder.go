package device

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"time"
)

const deviceFormatVersionCurrent = 1

const (
	flagTrusted byte = 1 << iota
	flagActive
)

// Encode serializes a device into the compact binary record used by [RedisStore].
func Encode(d *Device) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(deviceFormatVersionCurrent)

	for _, field := range []string{
		d.DeviceID,
		d.UserID,
		d.Fingerprint,
		d.Name,
		string(d.Type),
		d.OS,
		d.Browser,
		d.LastIP,
		d.UserAgent,
		d.Language,
	} {
		if err := writeString(&buf, field); err != nil {
			return nil, err
		}
	}

	var flags byte
	if d.Trusted {
		flags |= flagTrusted
	}
	if d.Active {
		flags |= flagActive
	}
	buf.WriteByte(flags)

	if err := binary.Write(&buf, binary.BigEndian, d.FirstSeen.UnixMilli()); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, d.LastSeen.UnixMilli()); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Decode parses a record produced by [Encode].
func Decode(data []byte) (*Device, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != deviceFormatVersionCurrent {
		return nil, errors.New("invalid device version")
	}

	fields := make([]string, 10)
	for i := range fields {
		if fields[i], err = readString(reader); err != nil {
			return nil, err
		}
	}

	flags, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if flags&^(flagTrusted|flagActive) != 0 {
		return nil, errors.New("invalid device flags")
	}

	var firstSeen, lastSeen int64
	if err := binary.Read(reader, binary.BigEndian, &firstSeen); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &lastSeen); err != nil {
		return nil, err
	}
	if reader.Len() != 0 {
		return nil, errors.New("trailing device data")
	}

	return &Device{
		DeviceID:    fields[0],
		UserID:      fields[1],
		Fingerprint: fields[2],
		Name:        fields[3],
		Type:        Type(fields[4]),
		OS:          fields[5],
		Browser:     fields[6],
		LastIP:      fields[7],
		UserAgent:   fields[8],
		Language:    fields[9],
		Trusted:     flags&flagTrusted != 0,
		Active:      flags&flagActive != 0,
		FirstSeen:   time.UnixMilli(firstSeen),
		LastSeen:    time.UnixMilli(lastSeen),
	}, nil
}

func writeString(buf *bytes.Buffer, s string) error {
	if len(s) > math.MaxUint16 {
		return errors.New("device field too long")
	}
	if err := binary.Write(buf, binary.BigEndian, uint16(len(s))); err != nil {
		return err
	}
	buf.WriteString(s)
	return nil
}

func readString(reader *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(reader, binary.BigEndian, &n); err != nil {
		return "", err
	}
	if int(n) > reader.Len() {
		return "", io.ErrUnexpectedEOF
	}
	raw := make([]byte, n)
	if _, err := io.ReadFull(reader, raw); err != nil {
		return "", err
	}
	return string(raw), nil
}
