package dsp

import "math"

// sineTable holds one period of a full-scale sine in 256 steps plus a guard
// sample so that interpolation at index 255 can read index 256.
var sineTable [257]int16

func init() {
	for i := range sineTable {
		sineTable[i] = int16(math.Round(math.Sin(2*math.Pi*float64(i)/256) * math.MaxInt16))
	}
}
