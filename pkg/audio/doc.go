// Package audio groups the audio helpers shared by the synth and the
// microphone path:
//
//   - pcm: 16-bit sample formats, stereo split and interleave, byte codecs
//   - resampler: sample rate conversion for microphone input
package audio
