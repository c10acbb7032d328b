package audio

import (
	"math"
	"time"
)

// Tone synthesizes a sine tone with short fades to avoid clicks.
func Tone(freq float64, d time.Duration, gain float64) *Clip {
	n := int(d.Seconds() * SampleRate)
	fade := min(n/2, SampleRate/100)
	samples := make([]float64, n)
	for i := range samples {
		env := 1.0
		if i < fade {
			env = float64(i) / float64(fade)
		} else if n-i <= fade {
			env = float64(n-i) / float64(fade)
		}
		samples[i] = gain * env * math.Sin(2*math.Pi*freq*float64(i)/SampleRate)
	}
	return NewClip(floatToPCM(samples))
}

// Chime is the default wake and pre-announce sound: two rising notes.
func Chime() *Clip {
	a := Tone(880, 120*time.Millisecond, 0.4)
	b := Tone(1320, 160*time.Millisecond, 0.4)
	return &Clip{Chunks: append(append([][]byte{}, a.Chunks...), b.Chunks...)}
}

// Alarm is the default timer-finished sound.
func Alarm() *Clip {
	beep := Tone(1000, 250*time.Millisecond, 0.5)
	return beep.Repeat(3, 4)
}
