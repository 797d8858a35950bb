package wave

import (
	"fmt"
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Encode writes samples as a WAV stream with the given header values.
func Encode(w io.WriteSeeker, samples []int16, f Format) error {
	buffer := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: f.Channels, SampleRate: f.SampleRate},
		SourceBitDepth: f.BitDepth,
		Data:           make([]int, len(samples)),
	}
	for i, s := range samples {
		buffer.Data[i] = int(s)
	}

	enc := wav.NewEncoder(w, f.SampleRate, f.BitDepth, f.Channels, f.AudioFormat)
	if err := enc.Write(buffer); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}

// WriteFile encodes samples into a new WAV file at path.
func WriteFile(path string, samples []int16, f Format) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create wav: %w", err)
	}
	if err := Encode(file, samples, f); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// EngineFormat is the header CheckFormat accepts for sampleRate.
func EngineFormat(sampleRate int) Format {
	return Format{
		SampleRate:  sampleRate,
		BitDepth:    RequiredBitDepth,
		Channels:    RequiredChannels,
		AudioFormat: FormatPCM,
	}
}
