package audio

import (
	"bytes"
	"encoding/binary"
	"math"
	"time"
)

// DefaultSampleRate for generated tones.
const DefaultSampleRate = 22050

// Tone describes a beep pattern: On of sine at Freq, then Off of silence,
// repeated Repeat times.
type Tone struct {
	Freq       float64
	On         time.Duration
	Off        time.Duration
	Repeat     int
	Volume     float64 // 0..1
	SampleRate int
}

// AlarmTone is the default lockout alarm, about one second long so a
// loop restart is not noticeable.
var AlarmTone = Tone{
	Freq:       880,
	On:         150 * time.Millisecond,
	Off:        100 * time.Millisecond,
	Repeat:     4,
	Volume:     0.6,
	SampleRate: DefaultSampleRate,
}

// Samples renders the tone as mono int16 samples.
func (t Tone) Samples() []int16 {
	rate := t.SampleRate
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	repeat := max(t.Repeat, 1)
	vol := math.Min(math.Max(t.Volume, 0), 1)

	on := int(t.On.Seconds() * float64(rate))
	off := int(t.Off.Seconds() * float64(rate))
	// 5ms fade in and out to avoid clicks
	fade := min(rate/200, on/2)

	out := make([]int16, 0, repeat*(on+off))
	for r := 0; r < repeat; r++ {
		for i := 0; i < on; i++ {
			env := 1.0
			if fade > 0 {
				switch {
				case i < fade:
					env = float64(i) / float64(fade)
				case i >= on-fade:
					env = float64(on-1-i) / float64(fade)
				}
			}
			v := math.Sin(2*math.Pi*t.Freq*float64(i)/float64(rate)) * vol * env
			out = append(out, int16(v*math.MaxInt16))
		}
		for i := 0; i < off; i++ {
			out = append(out, 0)
		}
	}
	return out
}

// WAV renders the tone as a 16-bit mono PCM WAV file.
func (t Tone) WAV() []byte {
	rate := t.SampleRate
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	return EncodeWAV(t.Samples(), rate)
}

// EncodeWAV wraps mono int16 samples in a RIFF/WAVE header.
func EncodeWAV(samples []int16, sampleRate int) []byte {
	pcm := ConvertInt16ToPCM16(samples)

	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))

	const (
		channels      = 1
		bitsPerSample = 16
	)
	blockAlign := channels * bitsPerSample / 8

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}

// ConvertPCM16ToInt16 converts little-endian PCM16 bytes to samples.
func ConvertPCM16ToInt16(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := 0; i < len(samples); i++ {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples
}

// ConvertInt16ToPCM16 converts samples to little-endian PCM16 bytes.
func ConvertInt16ToPCM16(samples []int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(s))
	}
	return data
}
