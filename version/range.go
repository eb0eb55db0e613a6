package version

// ChannelRange bounds the channels an artifact may publish to. A nil bound
// is open.
type ChannelRange struct {
	Min *Channel
	Max *Channel
}

// InRange reports whether c's track lies within [r.Min.Track, r.Max.Track].
// Channels on the latest track are always members.
func InRange(c Channel, r ChannelRange) bool {
	if c.Track.IsLatest() {
		return true
	}
	if r.Min != nil && c.Track.Compare(r.Min.Track) < 0 {
		return false
	}
	if r.Max != nil && c.Track.Compare(r.Max.Track) > 0 {
		return false
	}
	return true
}

// Contains is InRange with r as receiver.
func (r ChannelRange) Contains(c Channel) bool {
	return InRange(c, r)
}

// ContainsTrack reports whether channels on track t are members of r.
func (r ChannelRange) ContainsTrack(t Track) bool {
	return InRange(NewChannel(t, Edge), r)
}

// Filter returns the channels of cs that are members of r, in order.
func (r ChannelRange) Filter(cs []Channel) []Channel {
	out := make([]Channel, 0, len(cs))
	for _, c := range cs {
		if InRange(c, r) {
			out = append(out, c)
		}
	}
	return out
}

// String renders the range as "[min, max]" with "*" for open bounds.
func (r ChannelRange) String() string {
	lo, hi := "*", "*"
	if r.Min != nil {
		lo = r.Min.Track.String()
	}
	if r.Max != nil {
		hi = r.Max.Track.String()
	}
	return "[" + lo + ", " + hi + "]"
}
