package audio

import (
	"errors"
	"testing"
	"time"

	"github.com/dgnsrekt/readaloud/synth"
)

func testAudio() *synth.Audio {
	return &synth.Audio{
		Data:       make([]byte, 64),
		Format:     synth.FormatPCM16,
		SampleRate: 22050,
		Channels:   1,
		Duration:   time.Second,
	}
}

func TestMockPlayerPlaysToCompletion(t *testing.T) {
	p := NewMockPlayer(10 * time.Millisecond)
	a := testAudio()

	if err := p.Play(a); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if err := p.Play(a); !errors.Is(err, ErrAlreadyPlaying) {
		t.Errorf("second Play = %v, want ErrAlreadyPlaying", err)
	}

	select {
	case <-p.Done():
	case <-time.After(time.Second):
		t.Fatal("playback never completed")
	}

	if got := p.Completed(); len(got) != 1 || got[0] != a {
		t.Errorf("Completed = %v", got)
	}
	if err := p.Err(); err != nil {
		t.Errorf("Err = %v", err)
	}
}

func TestMockPlayerPauseResume(t *testing.T) {
	p := NewMockPlayer(40 * time.Millisecond)
	a := testAudio()

	if err := p.Play(a); err != nil {
		t.Fatalf("Play: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if err := p.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}

	// Paused playback must not finish on its own.
	select {
	case <-p.Done():
		t.Fatal("playback finished while paused")
	case <-time.After(80 * time.Millisecond):
	}

	if err := p.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	select {
	case <-p.Done():
	case <-time.After(time.Second):
		t.Fatal("playback never completed after resume")
	}

	// Exactly one playback of the artifact, no duplication.
	if got := p.Completed(); len(got) != 1 {
		t.Errorf("Completed = %d artifacts, want 1", len(got))
	}
	if got := p.Started(); len(got) != 1 {
		t.Errorf("Started = %d artifacts, want 1", len(got))
	}
}

func TestMockPlayerStop(t *testing.T) {
	p := NewMockPlayer(time.Minute)
	if err := p.Play(testAudio()); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	select {
	case <-p.Done():
	default:
		t.Error("Done not closed after Stop")
	}
	if got := p.Completed(); len(got) != 0 {
		t.Errorf("stopped playback counted as completed: %v", got)
	}
}

func TestMockPlayerFailNextPlays(t *testing.T) {
	p := NewMockPlayer(time.Millisecond)
	wantErr := errors.New("device busy")
	p.FailNextPlays(1, wantErr)

	if err := p.Play(testAudio()); !errors.Is(err, wantErr) {
		t.Fatalf("Play = %v, want %v", err, wantErr)
	}
	if err := p.Play(testAudio()); err != nil {
		t.Fatalf("retry Play = %v, want success", err)
	}
}

func TestMonoToStereo(t *testing.T) {
	in := []byte{0x01, 0x02, 0x03, 0x04}
	want := []byte{0x01, 0x02, 0x01, 0x02, 0x03, 0x04, 0x03, 0x04}
	got := monoToStereo(in)
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d = %#x, want %#x", i, got[i], want[i])
		}
	}
}

func TestDecodeRejectsRateMismatch(t *testing.T) {
	a := testAudio()
	if _, err := decodeToDevicePCM(a, 44100); !errors.Is(err, ErrFormatMismatch) {
		t.Errorf("decode = %v, want ErrFormatMismatch", err)
	}
	if _, err := decodeToDevicePCM(a, a.SampleRate); err != nil {
		t.Errorf("decode at matching rate failed: %v", err)
	}
}
