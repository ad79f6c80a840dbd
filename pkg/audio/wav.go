package audio

import (
	"encoding/binary"
	"io"
	"os"
)

// Format describes little-endian PCM samples.
type Format struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

func (f Format) bytesPerFrame() int {
	return f.Channels * f.BitsPerSample / 8
}

// WriteWAV writes pcm as a canonical 44-byte-header RIFF/WAVE stream.
func WriteWAV(w io.Writer, f Format, pcm []byte) error {
	dataLen := uint32(len(pcm))
	header := struct {
		ChunkID       [4]byte
		ChunkSize     uint32
		Format        [4]byte
		Subchunk1ID   [4]byte
		Subchunk1Size uint32
		AudioFormat   uint16
		NumChannels   uint16
		SampleRate    uint32
		ByteRate      uint32
		BlockAlign    uint16
		BitsPerSample uint16
		Subchunk2ID   [4]byte
		Subchunk2Size uint32
	}{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataLen,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   uint16(f.Channels),
		SampleRate:    uint32(f.SampleRate),
		ByteRate:      uint32(f.SampleRate * f.bytesPerFrame()),
		BlockAlign:    uint16(f.bytesPerFrame()),
		BitsPerSample: uint16(f.BitsPerSample),
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataLen,
	}
	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		return err
	}
	_, err := w.Write(pcm)
	return err
}

// SaveWAV writes pcm to path.
func SaveWAV(path string, f Format, pcm []byte) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteWAV(out, f, pcm); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
