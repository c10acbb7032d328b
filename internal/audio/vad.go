package audio

// EnergyVAD flags frames whose RMS level reaches Threshold as speech.
type EnergyVAD struct {
	Threshold float64
}

func NewEnergyVAD(threshold float64) EnergyVAD {
	if threshold <= 0 {
		threshold = 0.02
	}
	return EnergyVAD{Threshold: threshold}
}

func (v EnergyVAD) IsSpeech(frame []byte) bool {
	return RMS(frame) >= v.Threshold
}
