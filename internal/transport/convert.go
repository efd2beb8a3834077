// ABOUTME: Conversions between timeline pixels, seconds, and beats
// ABOUTME: All layout math flows through these so tempo changes stay consistent
package transport

// MeasureWidthPx is the fixed on-screen width of one measure.
const MeasureWidthPx = 200.0

// Tempo bounds enforced by the transport. The editor may hold values outside
// this range; playback clamps them here.
const (
	MinTempo = 20.0
	MaxTempo = 300.0
)

// ClampTempo pulls bpm into the playable range.
func ClampTempo(bpm float64) float64 {
	if bpm < MinTempo {
		return MinTempo
	}
	if bpm > MaxTempo {
		return MaxTempo
	}
	return bpm
}

// PixelsToSeconds converts a horizontal timeline offset to seconds at the
// given tempo and meter.
func PixelsToSeconds(x, bpm float64, beatsPerMeasure int) float64 {
	return x / MeasureWidthPx * float64(beatsPerMeasure) * 60 / bpm
}

// SecondsToPixels is the inverse mapping; clip widths come from here.
func SecondsToPixels(sec, bpm float64, beatsPerMeasure int) float64 {
	return sec * (bpm / 60) / float64(beatsPerMeasure) * MeasureWidthPx
}

// BeatsToSeconds converts musical time to clock time.
func BeatsToSeconds(beats, bpm float64) float64 {
	return beats * 60 / bpm
}

// SecondsToBeats converts clock time to musical time.
func SecondsToBeats(sec, bpm float64) float64 {
	return sec * bpm / 60
}
