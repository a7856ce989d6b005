// Package pcm provides helpers for 16-bit linear PCM audio.
//
// The package describes formats by sample rate and channel count and
// converts between interleaved and planar sample layouts and the
// little-endian byte form used on the wire.
//
// Key types and functions:
//   - Format: sample rate and channel count of 16-bit audio
//   - SplitStereo, Interleave: interleaved stereo to planar and back
//   - Encode, Decode: int16 samples to little-endian bytes and back
//
// Example usage:
//
//	format := pcm.L16Stereo48K
//
//	// Bytes in one 10 ms frame
//	n := format.BytesInDuration(10 * time.Millisecond)
//
//	// Split a frame for per-channel encoding
//	pcm.SplitStereo(frame, left, right)
package pcm
