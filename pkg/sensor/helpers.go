package sensor

// clampRaw bounds a reading to the 12-bit range.
func clampRaw(v int) int {
	if v < 0 {
		return 0
	}
	if v > MaxRaw {
		return MaxRaw
	}
	return v
}

// toTwelveBit maps a single-ended ADS1115 conversion (0..32767) onto the
// 12-bit scale used by the calibration curve. Negative codes are noise
// around ground and read as 0.
func toTwelveBit(raw int16) int {
	if raw < 0 {
		return 0
	}
	return clampRaw(int(raw) >> 3)
}
