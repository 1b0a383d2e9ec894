package audio

import "math"

// PlaybackNode plays a decoded clip into a stereo bus at an arbitrary
// speed, with optional looping. Sample-rate conversion and the speed
// factor fold into a single fractional position step per bus frame,
// with Catmull-Rom interpolation between source frames.
type PlaybackNode struct {
	clip       *Clip
	startFrame int
	frames     int
	step       float64
	loop       bool
	pos        float64
	done       bool
}

// NewPlaybackNode wires a clip to a bus running at busRate Hz. speed is
// the playback rate multiplier (1.0 = natural).
func NewPlaybackNode(clip *Clip, speed float64, busRate int, loop bool) *PlaybackNode {
	n := &PlaybackNode{
		clip:   clip,
		frames: clip.Frames(),
		step:   speed * float64(clip.Rate) / float64(busRate),
		loop:   loop,
	}
	if n.frames <= 0 || n.step <= 0 {
		n.done = true
	}
	return n
}

// SetRegion restricts playback to a trimmed window of the clip. startMs
// past the clip end leaves an empty region and the node produces nothing.
func (n *PlaybackNode) SetRegion(startMs, durationMs float64) {
	total := n.clip.Frames()
	start := int(startMs * float64(n.clip.Rate) / 1000.0)
	if start < 0 {
		start = 0
	}
	length := total - start
	if durationMs > 0 {
		l := int(durationMs * float64(n.clip.Rate) / 1000.0)
		if l < length {
			length = l
		}
	}
	n.startFrame = start
	n.frames = length
	n.pos = 0
	n.done = length <= 0
}

// Done reports whether a non-looping node has exhausted its region.
func (n *PlaybackNode) Done() bool { return n.done }

// MixInto adds the node's next len(dst)/2 frames into the interleaved
// stereo buffer, scaled by gain. Mono clips feed both channels. Returns
// the number of frames produced, which is short only when a non-looping
// node runs out of material.
func (n *PlaybackNode) MixInto(dst []float32, gain float32) int {
	if n.done {
		return 0
	}
	frames := len(dst) / 2
	for f := 0; f < frames; f++ {
		if n.pos >= float64(n.frames) {
			if !n.loop {
				n.done = true
				return f
			}
			n.pos = math.Mod(n.pos, float64(n.frames))
		}
		idx := int(n.pos)
		frac := float32(n.pos - float64(idx))

		var left, right float32
		if n.clip.Channels == 1 {
			v := n.interp(idx, frac, 0)
			left, right = v, v
		} else {
			left = n.interp(idx, frac, 0)
			right = n.interp(idx, frac, 1)
		}
		dst[2*f] += left * gain
		dst[2*f+1] += right * gain

		n.pos += n.step
	}
	return frames
}

// interp evaluates the Catmull-Rom spline through the four region frames
// around idx for one channel.
func (n *PlaybackNode) interp(idx int, frac float32, ch int) float32 {
	y0 := n.sample(idx-1, ch)
	y1 := n.sample(idx, ch)
	y2 := n.sample(idx+1, ch)
	y3 := n.sample(idx+2, ch)
	return cubicInterpolate(y0, y1, y2, y3, frac)
}

// sample fetches one region frame. Looping nodes wrap around the region,
// non-looping nodes clamp at the edges.
func (n *PlaybackNode) sample(i, ch int) float32 {
	if n.loop {
		i = ((i % n.frames) + n.frames) % n.frames
	} else {
		if i < 0 {
			i = 0
		}
		if i >= n.frames {
			i = n.frames - 1
		}
	}
	if ch >= n.clip.Channels {
		ch = n.clip.Channels - 1
	}
	return n.clip.Data[(n.startFrame+i)*n.clip.Channels+ch]
}

// cubicInterpolate is a Catmull-Rom spline between y1 and y2, using y0
// and y3 as outer support points. mu in [0,1] is the position between
// y1 and y2.
func cubicInterpolate(y0, y1, y2, y3, mu float32) float32 {
	mu2 := mu * mu
	a0 := -0.5*y0 + 1.5*y1 - 1.5*y2 + 0.5*y3
	a1 := y0 - 2.5*y1 + 2.0*y2 - 0.5*y3
	a2 := -0.5*y0 + 0.5*y2
	a3 := y1
	return a0*mu*mu2 + a1*mu2 + a2*mu + a3
}
