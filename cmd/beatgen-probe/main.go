// ABOUTME: Diagnostic tool measuring deferred-callback scheduling accuracy
// ABOUTME: Can also list MIDI output ports and browse for advertised sessions
package main

import (
	"flag"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/pranav100000/beatgen/internal/discovery"
	"github.com/pranav100000/beatgen/internal/midiout"
	"github.com/pranav100000/beatgen/internal/transport"
)

var (
	callbacks = flag.Int("callbacks", 200, "How many deferred callbacks to schedule")
	spread    = flag.Duration("spread", 2*time.Second, "Window the callbacks are spread across")
	listMIDI  = flag.Bool("midi", false, "Also list MIDI output ports")
	browseFor = flag.Duration("browse", 0, "Also browse this long for sessions (0 skips)")
)

func main() {
	flag.Parse()

	log.SetFlags(log.Ltime | log.Lmicroseconds)

	probeScheduler(*callbacks, *spread)

	if *listMIDI {
		listMIDIPorts()
	}
	if *browseFor > 0 {
		browseSessions(*browseFor)
	}
}

// probeScheduler fires a burst of deferred callbacks across the window and
// reports how far past their deadlines they actually ran.
func probeScheduler(n int, window time.Duration) {
	if n < 1 {
		n = 1
	}
	fmt.Printf("=== Scheduler probe: %d callbacks over %s ===\n", n, window)

	sched := transport.NewScheduler()
	defer sched.Stop()

	var (
		mu    sync.Mutex
		errs  []time.Duration
		wg    sync.WaitGroup
		start = time.Now()
	)

	for i := 0; i < n; i++ {
		delay := window * time.Duration(i) / time.Duration(n)
		deadline := start.Add(delay)
		wg.Add(1)
		sched.ScheduleAt(deadline, func() {
			defer wg.Done()
			lateness := time.Since(deadline)
			mu.Lock()
			errs = append(errs, lateness)
			mu.Unlock()
		})
	}

	wg.Wait()

	sort.Slice(errs, func(i, j int) bool { return errs[i] < errs[j] })
	fmt.Printf("lateness p50=%s p90=%s p99=%s max=%s\n",
		percentile(errs, 50), percentile(errs, 90), percentile(errs, 99),
		errs[len(errs)-1])

	fired, canceled, late := sched.GetStats()
	fmt.Printf("fired=%d canceled=%d late(>50ms)=%d\n", fired, canceled, late)
}

func percentile(sorted []time.Duration, p int) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := len(sorted) * p / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func listMIDIPorts() {
	fmt.Println("\n=== MIDI output ports ===")
	ports := midiout.Ports()
	if len(ports) == 0 {
		fmt.Println("(none found)")
	}
	for i, p := range ports {
		fmt.Printf("%2d: %s\n", i, p)
	}
	midiout.CloseDriver()
}

func browseSessions(d time.Duration) {
	fmt.Printf("\n=== Browsing %s for sessions ===\n", discovery.ServiceType)
	disc := discovery.NewManager(discovery.Config{})
	disc.Browse()

	deadline := time.After(d)
	found := 0
	for {
		select {
		case s := <-disc.Sessions():
			found++
			fmt.Printf("%s at %s:%d\n", s.Name, s.Host, s.Port)
		case <-deadline:
			if found == 0 {
				fmt.Println("(none found)")
			}
			disc.Stop()
			return
		}
	}
}
