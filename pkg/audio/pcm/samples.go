package pcm

import "encoding/binary"

// SplitStereo de-interleaves src into left and right. It converts
// min(len(src)/2, len(left), len(right)) frames and returns that count.
func SplitStereo(src, left, right []int16) int {
	n := min(len(src)/2, len(left), len(right))
	for i := range n {
		left[i] = src[2*i]
		right[i] = src[2*i+1]
	}
	return n
}

// Interleave writes left and right into dst as interleaved stereo and
// returns the number of frames written.
func Interleave(dst, left, right []int16) int {
	n := min(len(dst)/2, len(left), len(right))
	for i := range n {
		dst[2*i] = left[i]
		dst[2*i+1] = right[i]
	}
	return n
}

// MonoToStereo duplicates every sample of mono into dst as interleaved
// stereo and returns the number of frames written.
func MonoToStereo(dst, mono []int16) int {
	return Interleave(dst, mono, mono)
}

// StereoToMono averages interleaved stereo src into dst and returns the
// number of samples written.
func StereoToMono(dst, src []int16) int {
	n := min(len(src)/2, len(dst))
	for i := range n {
		dst[i] = int16((int32(src[2*i]) + int32(src[2*i+1])) / 2)
	}
	return n
}

// Encode writes samples to dst as little-endian bytes and returns the number
// of bytes written. dst must hold 2*len(samples) bytes.
func Encode(dst []byte, samples []int16) int {
	for i, s := range samples {
		binary.LittleEndian.PutUint16(dst[2*i:], uint16(s))
	}
	return 2 * len(samples)
}

// AppendEncode appends samples as little-endian bytes to dst.
func AppendEncode(dst []byte, samples []int16) []byte {
	for _, s := range samples {
		dst = binary.LittleEndian.AppendUint16(dst, uint16(s))
	}
	return dst
}

// Decode reads little-endian samples from src into dst and returns the
// number of samples decoded. A trailing odd byte is ignored.
func Decode(dst []int16, src []byte) int {
	n := min(len(src)/2, len(dst))
	for i := range n {
		dst[i] = int16(binary.LittleEndian.Uint16(src[2*i:]))
	}
	return n
}
