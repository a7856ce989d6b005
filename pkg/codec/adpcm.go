package codec

import (
	"encoding/binary"
	"fmt"
)

var adpcmIndexTable = [16]int{
	-1, -1, -1, -1, 2, 4, 6, 8,
	-1, -1, -1, -1, 2, 4, 6, 8,
}

var adpcmStepTable = [89]int32{
	7, 8, 9, 10, 11, 12, 13, 14, 16, 17,
	19, 21, 23, 25, 28, 31, 34, 37, 41, 45,
	50, 55, 60, 66, 73, 80, 88, 97, 107, 118,
	130, 143, 157, 173, 190, 209, 230, 253, 279, 307,
	337, 371, 408, 449, 494, 544, 598, 658, 724, 796,
	876, 963, 1060, 1166, 1282, 1411, 1552, 1707, 1878, 2066,
	2272, 2499, 2749, 3024, 3327, 3660, 4026, 4428, 4871, 5358,
	5894, 6484, 7132, 7845, 8630, 9493, 10442, 11487, 12635, 13899,
	15289, 16818, 18500, 20350, 22385, 24623, 27086, 29794, 32767,
}

// adpcmHeaderSize is the per-frame header: predictor (int16 LE), step
// index, reserved.
const adpcmHeaderSize = 4

// adpcmState is the IMA-ADPCM predictor of one channel.
type adpcmState struct {
	predictor int32
	index     int
}

func adpcmFrameSize(samples int) int {
	return adpcmHeaderSize + (samples+1)/2
}

// step applies one nibble to the predictor.
func (s *adpcmState) step(nibble byte) {
	step := adpcmStepTable[s.index]
	diff := step >> 3
	if nibble&4 != 0 {
		diff += step
	}
	if nibble&2 != 0 {
		diff += step >> 1
	}
	if nibble&1 != 0 {
		diff += step >> 2
	}
	if nibble&8 != 0 {
		s.predictor -= diff
	} else {
		s.predictor += diff
	}
	s.predictor = max(-32768, min(32767, s.predictor))
	s.index = max(0, min(len(adpcmStepTable)-1, s.index+adpcmIndexTable[nibble]))
}

// encode appends one frame to dst. The header records the state before the
// frame, so every frame decodes on its own.
func (s *adpcmState) encode(dst []byte, samples []int16) []byte {
	dst = binary.LittleEndian.AppendUint16(dst, uint16(int16(s.predictor)))
	dst = append(dst, byte(s.index), 0)

	var packed byte
	for i, v := range samples {
		nibble := s.quantize(int32(v))
		s.step(nibble)
		if i%2 == 0 {
			packed = nibble
		} else {
			dst = append(dst, packed|nibble<<4)
		}
	}
	if len(samples)%2 == 1 {
		dst = append(dst, packed)
	}
	return dst
}

func (s *adpcmState) quantize(sample int32) byte {
	diff := sample - s.predictor
	var nibble byte
	if diff < 0 {
		nibble = 8
		diff = -diff
	}
	step := adpcmStepTable[s.index]
	if diff >= step {
		nibble |= 4
		diff -= step
	}
	step >>= 1
	if diff >= step {
		nibble |= 2
		diff -= step
	}
	step >>= 1
	if diff >= step {
		nibble |= 1
	}
	return nibble
}

// adpcmDecode decodes one frame of at most samples samples.
func adpcmDecode(data []byte, samples int) ([]int16, error) {
	if len(data) < adpcmHeaderSize {
		return nil, fmt.Errorf("%w: adpcm frame of %d bytes", ErrInvalidSize, len(data))
	}
	s := adpcmState{
		predictor: int32(int16(binary.LittleEndian.Uint16(data))),
		index:     int(data[2]),
	}
	if s.index >= len(adpcmStepTable) {
		return nil, fmt.Errorf("codec: adpcm step index %d out of range", s.index)
	}
	body := data[adpcmHeaderSize:]
	n := min(2*len(body), samples)
	out := make([]int16, n)
	for i := range n {
		b := body[i/2]
		nibble := b & 0x0f
		if i%2 == 1 {
			nibble = b >> 4
		}
		s.step(nibble)
		out[i] = int16(s.predictor)
	}
	return out, nil
}
