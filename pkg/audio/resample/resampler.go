// ABOUTME: Linear-interpolation sample rate converter
// ABOUTME: Converts whole decoded clips to the engine rate at import time
package resample

// Convert resamples interleaved int32 audio from inRate to outRate using
// linear interpolation. The whole clip is converted in one call; import-time
// conversion means the render path never resamples.
func Convert(input []int32, channels, inRate, outRate int) []int32 {
	if channels <= 0 || inRate <= 0 || outRate <= 0 {
		return nil
	}
	if inRate == outRate || len(input) == 0 {
		out := make([]int32, len(input))
		copy(out, input)
		return out
	}

	inFrames := len(input) / channels
	outFrames := int(float64(inFrames) * float64(outRate) / float64(inRate))
	if outFrames == 0 {
		return nil
	}

	output := make([]int32, outFrames*channels)
	step := float64(inRate) / float64(outRate)

	for i := 0; i < outFrames; i++ {
		pos := float64(i) * step
		idx := int(pos)
		frac := pos - float64(idx)

		// Hold the final frame instead of reading past the clip.
		next := idx + 1
		if next >= inFrames {
			next = inFrames - 1
		}

		for ch := 0; ch < channels; ch++ {
			a := float64(input[idx*channels+ch])
			b := float64(input[next*channels+ch])
			output[i*channels+ch] = int32(a + (b-a)*frac)
		}
	}

	return output
}

// OutputFrames reports how many frames Convert will produce for a clip of
// inFrames at the given rates.
func OutputFrames(inFrames, inRate, outRate int) int {
	if inRate <= 0 || outRate <= 0 {
		return 0
	}
	if inRate == outRate {
		return inFrames
	}
	return int(float64(inFrames) * float64(outRate) / float64(inRate))
}
