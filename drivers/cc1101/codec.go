package cc1101

import "math"

// CrystalHz is the reference oscillator frequency.
const CrystalHz = 26_000_000

// Tuning range accepted by the synthesizer bands combined.
const (
	MinFrequencyMHz = 300.0
	MaxFrequencyMHz = 928.0
)

// TuningWord converts a carrier frequency in Hz to the 24-bit FREQ2:FREQ1:FREQ0
// value, rounded to the nearest step of CrystalHz/2^16.
func TuningWord(hz float64) uint32 {
	return uint32(math.Round(hz*(1<<16)/CrystalHz)) & 0xFFFFFF
}

// FrequencyFromWord converts a tuning word back to Hz.
func FrequencyFromWord(word uint32) uint32 {
	return uint32((uint64(word&0xFFFFFF) * CrystalHz) >> 16)
}

// StepHz is the synthesizer resolution.
const StepHz = float64(CrystalHz) / (1 << 16)

// RSSIDBm converts a raw RSSI status register value to dBm. The register is
// two's complement in half-dB steps with a fixed 74 dB offset; division
// truncates toward zero.
func RSSIDBm(raw byte) int {
	r := int(raw)
	if r >= 128 {
		return (r-256)/2 - 74
	}
	return r/2 - 74
}
