// Package audioio validates recorded operator voice clips before they are
// base64-encoded for the wire. Clips must be PCM WAV; anything else is
// refused at the console boundary.
package audioio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

const maxChunkSize = 64 * 1024 * 1024

// Info describes a probed WAV clip.
type Info struct {
	SampleRate int
	Channels   int
	BitDepth   int
	DataBytes  int
}

// Duration computes the clip length from the format values.
func (i Info) Duration() time.Duration {
	bytesPerSecond := i.SampleRate * i.Channels * i.BitDepth / 8
	if bytesPerSecond <= 0 {
		return 0
	}
	return time.Duration(float64(i.DataBytes) / float64(bytesPerSecond) * float64(time.Second))
}

// Probe parses the clip's WAV header and returns its format.
func Probe(clip []byte) (Info, error) {
	return readInfo(bytes.NewReader(clip))
}

func readInfo(r io.Reader) (Info, error) {
	header := make([]byte, 12)
	if _, err := io.ReadFull(r, header); err != nil {
		return Info{}, fmt.Errorf("wav: read header: %w", err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return Info{}, errors.New("wav: invalid header")
	}

	var (
		info      Info
		fmtParsed bool
	)

	for {
		chunkHeader := make([]byte, 8)
		if _, err := io.ReadFull(r, chunkHeader); err != nil {
			if fmtParsed && info.DataBytes > 0 {
				break
			}
			return Info{}, fmt.Errorf("wav: read chunk header: %w", err)
		}
		chunkID := string(chunkHeader[0:4])
		chunkSize := binary.LittleEndian.Uint32(chunkHeader[4:8])
		if chunkSize > maxChunkSize {
			return Info{}, fmt.Errorf("wav: chunk %s too large (%d bytes)", strings.TrimSpace(chunkID), chunkSize)
		}

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 {
				return Info{}, errors.New("wav: invalid fmt chunk")
			}
			payload := make([]byte, chunkSize)
			if _, err := io.ReadFull(r, payload); err != nil {
				return Info{}, fmt.Errorf("wav: read fmt chunk: %w", err)
			}
			audioFmt := binary.LittleEndian.Uint16(payload[0:2])
			if audioFmt != 1 { // PCM
				return Info{}, fmt.Errorf("wav: unsupported audio format %d", audioFmt)
			}
			channels := binary.LittleEndian.Uint16(payload[2:4])
			sampleRate := binary.LittleEndian.Uint32(payload[4:8])
			bitDepth := binary.LittleEndian.Uint16(payload[14:16])
			if channels == 0 || sampleRate == 0 || bitDepth == 0 {
				return Info{}, errors.New("wav: invalid format values")
			}
			info.Channels = int(channels)
			info.SampleRate = int(sampleRate)
			info.BitDepth = int(bitDepth)
			fmtParsed = true

		case "data":
			info.DataBytes = int(chunkSize)
			if _, err := io.CopyN(io.Discard, r, int64(chunkSize)); err != nil && !errors.Is(err, io.EOF) {
				return Info{}, fmt.Errorf("wav: read data chunk: %w", err)
			}

		default:
			skip := int64(chunkSize)
			if skip%2 == 1 {
				skip++
			}
			if _, err := io.CopyN(io.Discard, r, skip); err != nil {
				return Info{}, fmt.Errorf("wav: skip chunk %s: %w", strings.TrimSpace(chunkID), err)
			}
		}

		if fmtParsed && info.DataBytes > 0 {
			break
		}
	}

	if !fmtParsed {
		return Info{}, errors.New("wav: fmt chunk missing")
	}
	if info.DataBytes == 0 {
		return Info{}, errors.New("wav: data chunk missing")
	}
	return info, nil
}
