// Package resampler converts 16-bit PCM streams between sample rates and
// channel counts.
//
// It is used on the microphone path, where the capture device rarely runs at
// the link rate. Rate conversion uses the pure Go go-audio-resampling
// library; channel conversion averages or duplicates samples.
//
// Example usage:
//
//	r, err := resampler.New(mic, pcm.Format{SampleRate: 44100, Channels: 2}, pcm.L16Mono48K)
//	if err != nil {
//		return err
//	}
//	n, err := r.ReadSamples(block)
package resampler
