// Package buffer provides the fixed-capacity containers used on the audio
// paths.
//
// The package offers three types, each sized once at construction:
//
//   - FIFO: a slot arena with an explicit claim/lock/free lifecycle. A
//     producer claims a vacant slot, fills it in place and locks it, which
//     makes it visible to the consumer in lock order. The producer never
//     blocks: ClaimEvicting frees the oldest locked slot when the arena is
//     full.
//
//   - Queue: a bounded event queue with a non-blocking TryPut for
//     interrupt-like producers, and context-aware blocking Put and Get.
//
//   - Ring: a history that overwrites the oldest entry when full.
//
// Example usage:
//
//	f := buffer.NewFIFO[Frame](3)
//	idx, slot, evicted, err := f.ClaimEvicting()
//	if err != nil {
//		return err
//	}
//	slot.Len = copy(slot.Data[:], payload)
//	f.Lock(idx)
//
//	// consumer
//	idx, slot, err = f.TakeOldest()
//	...
//	f.Free(idx)
package buffer
