// Package pkg holds small numeric helpers shared by meters.
package pkg

import "math"

// RollingAverage is the mean of the last size values added.
// It is not safe for concurrent use.
type RollingAverage struct {
	window []float64
	next   int
	count  int
	sum    float64
}

func NewRollingAverage(size int) *RollingAverage {
	if size < 1 {
		size = 1
	}
	return &RollingAverage{window: make([]float64, size)}
}

// Add records v and returns the updated mean. NaN values are ignored.
func (r *RollingAverage) Add(v float64) float64 {
	if math.IsNaN(v) {
		return r.Value()
	}

	if r.count == len(r.window) {
		r.sum -= r.window[r.next]
	} else {
		r.count++
	}

	r.window[r.next] = v
	r.sum += v
	r.next = (r.next + 1) % len(r.window)

	return r.Value()
}

// Peek returns the mean Add(v) would return, without recording v.
func (r *RollingAverage) Peek(v float64) float64 {
	if math.IsNaN(v) {
		return r.Value()
	}

	sum, count := r.sum+v, r.count+1
	if r.count == len(r.window) {
		sum -= r.window[r.next]
		count--
	}
	return sum / float64(count)
}

func (r *RollingAverage) Value() float64 {
	if r.count == 0 {
		return 0
	}
	return r.sum / float64(r.count)
}

func (r *RollingAverage) Len() int {
	return r.count
}
