// ABOUTME: Fixed-capacity ring buffers for metric history sparklines
// ABOUTME: Advanced on a fixed cadence, decoupled from telemetry arrival rate
package dashboard

// HistoryCapacity is the number of samples kept per metric. At the 2s
// sample cadence this is two minutes trailing.
const HistoryCapacity = 60

// Ring is a fixed-capacity sample buffer. The oldest sample is overwritten
// once full; the write index wraps modulo capacity.
type Ring struct {
	samples [HistoryCapacity]float64
	next    int
	count   int
}

// Push appends a sample, overwriting the oldest once at capacity.
func (r *Ring) Push(v float64) {
	r.samples[r.next] = v
	r.next = (r.next + 1) % HistoryCapacity
	if r.count < HistoryCapacity {
		r.count++
	}
}

// Len returns the number of stored samples.
func (r *Ring) Len() int {
	return r.count
}

// Values returns the samples oldest first.
func (r *Ring) Values() []float64 {
	out := make([]float64, 0, r.count)

	start := 0
	if r.count == HistoryCapacity {
		start = r.next
	}
	for i := 0; i < r.count; i++ {
		out = append(out, r.samples[(start+i)%HistoryCapacity])
	}
	return out
}

// History holds the per-metric rings the sparklines render from.
type History struct {
	CPU     Ring
	RAM     Ring
	NetDown Ring
	NetUp   Ring
}

// HistorySnapshot is a copied view safe to hand to the UI.
type HistorySnapshot struct {
	CPU     []float64
	RAM     []float64
	NetDown []float64
	NetUp   []float64
}
