// ABOUTME: Clock synchronization for the control link with drift compensation
// ABOUTME: Tracks offset and drift so monitor chunk timestamps map onto the local clock
package control

import (
	"log"
	"sync"
	"time"
)

// Quality grades how trustworthy the current offset estimate is.
type Quality int

const (
	QualityGood Quality = iota
	QualityDegraded
	QualityLost
)

func (q Quality) String() string {
	switch q {
	case QualityGood:
		return "good"
	case QualityDegraded:
		return "degraded"
	default:
		return "lost"
	}
}

const (
	// Samples above this RTT are network congestion, not clock data.
	maxSyncRTT = 100000 // μs

	// Samples whose prediction error exceeds this suggest a clock jump.
	maxSyncResidual = 50000 // μs

	degradedRTT   = 50000 // μs
	syncLostAfter = 5 * time.Second
)

// SyncClock estimates the server clock from client/time round trips. It
// tracks both offset and drift, so the estimate stays accurate between
// exchanges even when the two clocks tick at slightly different rates.
type SyncClock struct {
	mu             sync.RWMutex
	offset         int64   // server minus client, microseconds
	drift          float64 // dimensionless, μs per μs
	rtt            int64   // latest round trip, microseconds
	quality        Quality
	lastSync       time.Time
	lastSyncMicros int64 // client micros when offset/drift were last updated
	sampleCount    int
	smoothingRate  float64
}

// NewSyncClock creates a clock estimator with no samples yet.
func NewSyncClock() *SyncClock {
	return &SyncClock{
		smoothingRate: 0.1,
		quality:       QualityLost,
	}
}

// ProcessResponse folds one four-timestamp exchange into the estimate.
// t1 is client transmit, t2 server receive, t3 server transmit, and t4
// client receive; t1/t4 are on the client clock, t2/t3 on the server's.
func (c *SyncClock) ProcessResponse(t1, t2, t3, t4 int64) {
	rtt, measured := calculateOffset(t1, t2, t3, t4)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.rtt = rtt
	c.lastSync = time.Now()

	if rtt > maxSyncRTT {
		log.Printf("[control] discarding sync sample: high RTT %dμs", rtt)
		return
	}

	// First sample: take the offset as-is, no drift estimate yet
	if c.sampleCount == 0 {
		c.offset = measured
		c.lastSyncMicros = t4
		c.sampleCount++
		c.quality = QualityGood
		log.Printf("[control] initial sync: offset=%dμs, rtt=%dμs", c.offset, rtt)
		return
	}

	// Second sample: the change in offset over elapsed time seeds the drift
	if c.sampleCount == 1 {
		dt := float64(t4 - c.lastSyncMicros)
		if dt > 0 {
			c.drift = float64(measured-c.offset) / dt
		}
		c.offset = measured
		c.lastSyncMicros = t4
		c.sampleCount++
		c.quality = QualityGood
		return
	}

	// Later samples: predict from drift, then blend in the residual.
	// This is a Kalman update with a fixed gain.
	dt := float64(t4 - c.lastSyncMicros)
	if dt <= 0 {
		log.Printf("[control] discarding sync sample: non-monotonic time")
		return
	}

	predicted := c.offset + int64(c.drift*dt)
	residual := measured - predicted

	if residual > maxSyncResidual || residual < -maxSyncResidual {
		log.Printf("[control] discarding sync sample: residual %dμs looks like a clock jump", residual)
		return
	}

	c.offset = predicted + int64(c.smoothingRate*float64(residual))
	c.drift = c.drift + c.smoothingRate*float64(residual)/dt
	c.lastSyncMicros = t4
	c.sampleCount++

	if rtt < degradedRTT {
		c.quality = QualityGood
	} else {
		c.quality = QualityDegraded
	}
}

// calculateOffset computes round-trip time and clock offset from one
// exchange. A positive offset means the server clock is ahead.
func calculateOffset(t1, t2, t3, t4 int64) (rtt, offset int64) {
	rtt = (t4 - t1) - (t3 - t2)
	offset = ((t2 - t1) + (t3 - t4)) / 2
	return
}

// Offset returns the current server-minus-client estimate in microseconds.
func (c *SyncClock) Offset() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.offset
}

// Stats returns the offset, latest RTT, and quality.
func (c *SyncClock) Stats() (offset, rtt int64, quality Quality) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.offset, c.rtt, c.quality
}

// CheckQuality downgrades to lost when no sample has arrived recently.
func (c *SyncClock) CheckQuality() Quality {
	c.mu.Lock()
	defer c.mu.Unlock()

	if time.Since(c.lastSync) > syncLostAfter {
		c.quality = QualityLost
	}
	return c.quality
}

// LocalTime converts a server timestamp to the local wall clock.
func (c *SyncClock) LocalTime(serverMicros int64) time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.sampleCount == 0 {
		return time.UnixMicro(serverMicros)
	}

	// Inverse of server = client + offset + drift*(client - lastSync)
	numerator := float64(serverMicros) - float64(c.offset) + c.drift*float64(c.lastSyncMicros)
	clientMicros := int64(numerator / (1.0 + c.drift))
	return time.UnixMicro(clientMicros)
}

// ServerMicros returns the current time mapped onto the server clock.
func (c *SyncClock) ServerMicros() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	clientNow := time.Now().UnixMicro()
	if c.sampleCount == 0 {
		return clientNow
	}

	dt := clientNow - c.lastSyncMicros
	return clientNow + c.offset + int64(c.drift*float64(dt))
}
