package audio

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"
)

func TestToneWAVHeader(t *testing.T) {
	wav := AlarmTone.WAV()

	if !bytes.HasPrefix(wav, []byte("RIFF")) || string(wav[8:12]) != "WAVE" {
		t.Fatalf("bad header: %q", wav[:12])
	}
	if got := binary.LittleEndian.Uint32(wav[4:8]); int(got) != len(wav)-8 {
		t.Errorf("riff size = %d, want %d", got, len(wav)-8)
	}
	if rate := binary.LittleEndian.Uint32(wav[24:28]); rate != DefaultSampleRate {
		t.Errorf("sample rate = %d", rate)
	}
	if string(wav[36:40]) != "data" {
		t.Fatalf("missing data chunk")
	}
	if got := binary.LittleEndian.Uint32(wav[40:44]); int(got) != len(wav)-44 {
		t.Errorf("data size = %d, want %d", got, len(wav)-44)
	}
}

func TestToneLength(t *testing.T) {
	tone := Tone{Freq: 440, On: 100 * time.Millisecond, Off: 50 * time.Millisecond, Repeat: 2, Volume: 1, SampleRate: 8000}
	samples := tone.Samples()

	if want := 2 * (800 + 400); len(samples) != want {
		t.Fatalf("samples = %d, want %d", len(samples), want)
	}
	// Fades in from silence.
	if samples[0] != 0 {
		t.Errorf("first sample = %d, want 0", samples[0])
	}
	// Gap is silent.
	for _, s := range samples[800:1200] {
		if s != 0 {
			t.Fatal("gap should be silent")
		}
	}
}

func TestPCMConversion(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768}
	back := ConvertPCM16ToInt16(ConvertInt16ToPCM16(samples))
	for i := range samples {
		if back[i] != samples[i] {
			t.Errorf("sample %d = %d, want %d", i, back[i], samples[i])
		}
	}
}
