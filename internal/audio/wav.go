// Package audio provides small helpers for building and stripping the
// 44-byte canonical WAV header shared by the ASR upload path and the
// local TTS provider's raw output.
package audio

import (
	"bytes"
	"encoding/binary"
)

// WavHeaderBytes is the length of a canonical PCM WAV header.
const WavHeaderBytes = 44

// NewWavBuffer wraps mono 16-bit PCM in a canonical WAV container.
func NewWavBuffer(pcm []byte, sampleRate int) []byte {
	buf := new(bytes.Buffer)

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1))
	binary.Write(buf, binary.LittleEndian, uint16(1))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate*2))
	binary.Write(buf, binary.LittleEndian, uint16(2))
	binary.Write(buf, binary.LittleEndian, uint16(16))

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}

// StripWavHeader removes a leading 44-byte RIFF header if present, returning
// the raw PCM payload unchanged otherwise.
func StripWavHeader(raw []byte) []byte {
	if len(raw) >= WavHeaderBytes && bytes.Equal(raw[:4], []byte("RIFF")) {
		return raw[WavHeaderBytes:]
	}
	return raw
}

// I16LEToPCM decodes little-endian signed 16-bit PCM bytes into samples.
func I16LEToPCM(raw []byte) []int16 {
	n := len(raw) / 2
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = int16(binary.LittleEndian.Uint16(raw[i*2 : i*2+2]))
	}
	return out
}
