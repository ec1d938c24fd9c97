package calibration

import "math"

// Curve is the empirical power-law fit of the force-sensitive resistor:
// force = |R / Divisor| ^ (-1/Exponent), where R is the inferred sensor
// resistance in kΩ behind a voltage divider with a fixed resistor RM.
type Curve struct {
	RM       float64 // divider resistor, Ω
	VIN      float64 // full-scale input voltage, V
	MaxValue int     // full-scale ADC count
	Divisor  float64
	Exponent float64
}

func DefaultCurve() Curve {
	return Curve{
		RM:       1000.0,
		VIN:      2.450,
		MaxValue: 4095,
		Divisor:  153.18,
		Exponent: 0.6991,
	}
}

// Voltage converts a raw ADC count into the divider output voltage.
func (c Curve) Voltage(x int) float64 {
	if c.MaxValue <= 0 {
		return 0
	}
	return float64(x) * c.VIN / float64(c.MaxValue)
}

// Resistance returns the inferred sensor resistance in kΩ for voltage vo.
func (c Curve) Resistance(vo float64) float64 {
	return (c.VIN*c.RM/vo - c.RM) / 1000.0
}

// Force converts a raw sample to force in grams. A zero voltage is zero
// force. At full scale the inferred resistance is exactly zero and the power
// law diverges, so the last finite point of the curve is reported instead.
func (c Curve) Force(x int) float64 {
	if x < 0 {
		x = 0
	}
	if x >= c.MaxValue {
		x = c.MaxValue - 1
	}
	vo := c.Voltage(x)
	if vo == 0 {
		return 0
	}
	r := c.Resistance(vo)
	f := math.Pow(math.Abs(r/c.Divisor), -1/c.Exponent)
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return 0
	}
	return f
}
