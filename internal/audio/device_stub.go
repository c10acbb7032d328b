//go:build !portaudio

package audio

// OpenInput reports ErrNoDevice; build with -tags portaudio for hardware.
func OpenInput() (Input, error) {
	return nil, ErrNoDevice
}

// OpenOutput reports ErrNoDevice; build with -tags portaudio for hardware.
func OpenOutput(*SoftVolume) (Output, error) {
	return nil, ErrNoDevice
}
