package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/youpy/go-wav"
)

const (
	// ContentType tags clips for transport
	ContentType = "audio/wav"

	bitsPerSample  = 16 // Using int16 for samples
	bytesPerSample = bitsPerSample / 8
	wavHeaderSize  = 44
)

// Format describes the PCM layout of captured audio
type Format struct {
	SampleRate int
	Channels   int
}

// BytesPerSecond is the PCM data rate for the format
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * bytesPerSample
}

// Clip is one finalized recording, encoded as a WAV file
type Clip struct {
	Data     []byte
	Format   Format
	Samples  int // frames, not counting channels
	Duration time.Duration
}

// Empty reports whether the clip carries no audio frames. An empty clip still
// holds a valid WAV header.
func (c Clip) Empty() bool {
	return c.Samples == 0
}

// EncodeClip wraps little-endian 16-bit PCM into a WAV clip
func EncodeClip(pcm []byte, format Format) (Clip, error) {
	if format.SampleRate <= 0 {
		return Clip{}, fmt.Errorf("sample rate must be positive, got %d", format.SampleRate)
	}
	if format.Channels <= 0 || format.Channels > 2 {
		return Clip{}, fmt.Errorf("unsupported channel count: %d", format.Channels)
	}

	frameSize := format.Channels * bytesPerSample
	frames := len(pcm) / frameSize
	pcm = pcm[:frames*frameSize] // drop a trailing partial frame

	samples := make([]wav.Sample, frames)
	for i := range samples {
		for ch := 0; ch < format.Channels; ch++ {
			off := (i*format.Channels + ch) * bytesPerSample
			samples[i].Values[ch] = int(int16(binary.LittleEndian.Uint16(pcm[off:])))
		}
	}

	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize+len(pcm)))
	writer := wav.NewWriter(buf, uint32(frames), uint16(format.Channels), uint32(format.SampleRate), bitsPerSample)
	if frames > 0 {
		if err := writer.WriteSamples(samples); err != nil {
			return Clip{}, fmt.Errorf("failed to write WAV samples: %w", err)
		}
	}

	return Clip{
		Data:     buf.Bytes(),
		Format:   format,
		Samples:  frames,
		Duration: time.Duration(frames) * time.Second / time.Duration(format.SampleRate),
	}, nil
}

// PCMFromSamples converts captured int16 samples into little-endian bytes
func PCMFromSamples(in []int16) []byte {
	out := make([]byte, len(in)*bytesPerSample)
	for i, sample := range in {
		binary.LittleEndian.PutUint16(out[i*bytesPerSample:], uint16(sample))
	}
	return out
}

// DecodeClip reads a WAV payload back into interleaved int16 samples
func DecodeClip(data []byte) ([]int16, Format, error) {
	reader := wav.NewReader(bytes.NewReader(data))

	wf, err := reader.Format()
	if err != nil {
		return nil, Format{}, fmt.Errorf("failed to read WAV format: %w", err)
	}
	if wf.AudioFormat != wav.AudioFormatPCM {
		return nil, Format{}, fmt.Errorf("unsupported audio format: %d (only PCM is supported)", wf.AudioFormat)
	}
	if wf.BitsPerSample != bitsPerSample {
		return nil, Format{}, fmt.Errorf("unsupported bit depth: %d (only 16-bit is supported)", wf.BitsPerSample)
	}

	// go-wav samples hold at most two channels
	if wf.NumChannels == 0 || wf.NumChannels > 2 {
		return nil, Format{}, fmt.Errorf("unsupported channel count: %d", wf.NumChannels)
	}

	format := Format{SampleRate: int(wf.SampleRate), Channels: int(wf.NumChannels)}
	out := make([]int16, 0)
	for {
		samples, err := reader.ReadSamples()
		for _, s := range samples {
			for ch := 0; ch < format.Channels; ch++ {
				out = append(out, int16(s.Values[ch]))
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, Format{}, fmt.Errorf("failed to read WAV samples: %w", err)
		}
	}

	return out, format, nil
}
