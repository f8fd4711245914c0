package audio

import (
	"bytes"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"

	"github.com/dgnsrekt/readaloud/synth"
)

// decodeToDevicePCM converts an artifact to interleaved stereo 16-bit
// PCM at the device rate.
func decodeToDevicePCM(a *synth.Audio, deviceRate int) ([]byte, error) {
	switch a.Format {
	case synth.FormatPCM16:
		if a.SampleRate != deviceRate {
			return nil, fmt.Errorf("%w: artifact %d Hz, device %d Hz", ErrFormatMismatch, a.SampleRate, deviceRate)
		}
		if a.Channels == 1 {
			return monoToStereo(a.Data), nil
		}
		return a.Data, nil

	case synth.FormatMP3:
		dec, err := mp3.NewDecoder(bytes.NewReader(a.Data))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
		}
		if dec.SampleRate() != deviceRate {
			return nil, fmt.Errorf("%w: mp3 %d Hz, device %d Hz", ErrFormatMismatch, dec.SampleRate(), deviceRate)
		}
		// go-mp3 always yields 16-bit stereo.
		pcm, err := io.ReadAll(dec)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
		}
		return pcm, nil

	default:
		return nil, fmt.Errorf("%w: unsupported format %s", ErrFormatMismatch, a.Format)
	}
}

// monoToStereo duplicates each 16-bit sample into both channels.
func monoToStereo(data []byte) []byte {
	out := make([]byte, 0, len(data)*2)
	for i := 0; i+1 < len(data); i += 2 {
		out = append(out, data[i], data[i+1], data[i], data[i+1])
	}
	return out
}
