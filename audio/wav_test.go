package audio

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sineSamples(n, sampleRate int) []int16 {
	samples := make([]int16, n)
	for i := range samples {
		t := float64(i) / float64(sampleRate)
		samples[i] = int16(16383.0 * math.Sin(2*math.Pi*440*t))
	}
	return samples
}

func TestEncodeClip(t *testing.T) {
	format := Format{SampleRate: 8000, Channels: 1}
	samples := sineSamples(800, format.SampleRate)

	clip, err := EncodeClip(PCMFromSamples(samples), format)
	require.NoError(t, err)

	assert.Equal(t, wavHeaderSize+len(samples)*2, len(clip.Data))
	assert.Equal(t, "RIFF", string(clip.Data[0:4]))
	assert.Equal(t, "WAVE", string(clip.Data[8:12]))
	assert.Equal(t, 800, clip.Samples)
	assert.Equal(t, 100*time.Millisecond, clip.Duration)
	assert.False(t, clip.Empty())
}

func TestEncodeClipDecodesBack(t *testing.T) {
	format := Format{SampleRate: 16000, Channels: 1}
	original := []int16{100, -200, 300, -400, 500, math.MaxInt16, math.MinInt16}

	clip, err := EncodeClip(PCMFromSamples(original), format)
	require.NoError(t, err)

	decoded, gotFormat, err := DecodeClip(clip.Data)
	require.NoError(t, err)
	assert.Equal(t, format, gotFormat)
	assert.Equal(t, original, decoded)
}

func TestEncodeClipStereo(t *testing.T) {
	format := Format{SampleRate: 8000, Channels: 2}
	interleaved := []int16{1, -1, 2, -2, 3, -3}

	clip, err := EncodeClip(PCMFromSamples(interleaved), format)
	require.NoError(t, err)
	assert.Equal(t, 3, clip.Samples)

	decoded, _, err := DecodeClip(clip.Data)
	require.NoError(t, err)
	assert.Equal(t, interleaved, decoded)
}

func TestEncodeClipEmpty(t *testing.T) {
	clip, err := EncodeClip([]byte{}, Format{SampleRate: 44100, Channels: 1})
	require.NoError(t, err)

	assert.True(t, clip.Empty())
	assert.Len(t, clip.Data, wavHeaderSize)
	assert.Equal(t, time.Duration(0), clip.Duration)
}

func TestEncodeClipDropsPartialFrame(t *testing.T) {
	clip, err := EncodeClip([]byte{1, 0, 2}, Format{SampleRate: 8000, Channels: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, clip.Samples)
}

func TestEncodeClipRejectsBadFormat(t *testing.T) {
	_, err := EncodeClip(nil, Format{SampleRate: 0, Channels: 1})
	assert.Error(t, err)

	_, err = EncodeClip(nil, Format{SampleRate: 8000, Channels: 6})
	assert.Error(t, err)
}

func TestDecodeClipRejectsGarbage(t *testing.T) {
	_, _, err := DecodeClip([]byte("not a wav file at all"))
	assert.Error(t, err)
}

// pcmWAV builds a 16-bit PCM WAV by hand so any channel count can be written
func pcmWAV(channels uint16, sampleRate uint32, frames int) []byte {
	blockAlign := channels * 2
	dataSize := uint32(frames) * uint32(blockAlign)

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, 36+dataSize)
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, channels)
	binary.Write(&buf, binary.LittleEndian, sampleRate)
	binary.Write(&buf, binary.LittleEndian, sampleRate*uint32(blockAlign))
	binary.Write(&buf, binary.LittleEndian, blockAlign)
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, dataSize)
	buf.Write(make([]byte, dataSize))
	return buf.Bytes()
}

func TestDecodeClipRejectsUnsupportedChannels(t *testing.T) {
	for _, channels := range []uint16{0, 3, 4, 6} {
		data := pcmWAV(channels, 8000, 16)
		assert.NotPanics(t, func() {
			_, _, err := DecodeClip(data)
			assert.ErrorContains(t, err, "unsupported channel count")
		}, "channels=%d", channels)
	}
}

func TestDecodeClipHandBuiltStereo(t *testing.T) {
	samples, format, err := DecodeClip(pcmWAV(2, 8000, 4))
	require.NoError(t, err)
	assert.Equal(t, Format{SampleRate: 8000, Channels: 2}, format)
	assert.Len(t, samples, 8)
}

func TestChunkBufferOrderAndCap(t *testing.T) {
	b := NewChunkBuffer(6)

	require.NoError(t, b.Append([]byte{1, 2}))
	require.NoError(t, b.Append([]byte{3, 4}))
	assert.ErrorIs(t, b.Append([]byte{5, 6, 7}), ErrBufferFull)
	assert.Equal(t, 4, b.Size())
	assert.Equal(t, 2, b.ChunkCount())

	require.NoError(t, b.Append([]byte{5, 6}))
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, b.Flush())
	assert.Equal(t, 0, b.Size())
}

func TestChunkBufferFlushEmpty(t *testing.T) {
	b := NewChunkBuffer(10)
	out := b.Flush()
	assert.NotNil(t, out)
	assert.Empty(t, out)
}
