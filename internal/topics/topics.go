// Package topics defines the set of data channels a frontend can subscribe
// to. Frame relaying is gated on the active subscription set: packets for
// unsubscribed topics are dropped before any log entry is built.
package topics

import (
	"encoding/json"
	"fmt"
)

// Topic identifies one subscribable data channel.
type Topic int

const (
	ColorImage Topic = iota
	LeftMono
	RightMono
	DepthImage
	PinholeCamera
	Rectangle
	Rectangles
	ImuData
	PointCloud
)

var topicNames = map[Topic]string{
	ColorImage:    "ColorImage",
	LeftMono:      "LeftMono",
	RightMono:     "RightMono",
	DepthImage:    "DepthImage",
	PinholeCamera: "PinholeCamera",
	Rectangle:     "Rectangle",
	Rectangles:    "Rectangles",
	ImuData:       "ImuData",
	PointCloud:    "PointCloud",
}

var topicsByName = func() map[string]Topic {
	m := make(map[string]Topic, len(topicNames))
	for t, name := range topicNames {
		m[name] = t
	}
	return m
}()

// All returns every defined topic, in declaration order.
func All() []Topic {
	return []Topic{
		ColorImage, LeftMono, RightMono, DepthImage,
		PinholeCamera, Rectangle, Rectangles, ImuData, PointCloud,
	}
}

func (t Topic) String() string {
	if name, ok := topicNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Topic(%d)", int(t))
}

// Parse resolves a topic from its wire name.
func Parse(name string) (Topic, error) {
	t, ok := topicsByName[name]
	if !ok {
		return 0, fmt.Errorf("unknown topic %q", name)
	}
	return t, nil
}

// MarshalJSON encodes the topic as its wire name.
func (t Topic) MarshalJSON() ([]byte, error) {
	name, ok := topicNames[t]
	if !ok {
		return nil, fmt.Errorf("invalid topic %d", int(t))
	}
	return json.Marshal(name)
}

// UnmarshalJSON decodes a topic from its wire name.
func (t *Topic) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := Parse(name)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Set is an immutable-by-convention subscription set. Callers that need a
// consistent view across several membership checks should hold one Set value
// rather than re-reading shared state.
type Set map[Topic]struct{}

// NewSet builds a set from the given topics.
func NewSet(ts ...Topic) Set {
	s := make(Set, len(ts))
	for _, t := range ts {
		s[t] = struct{}{}
	}
	return s
}

// Has reports whether t is in the set.
func (s Set) Has(t Topic) bool {
	_, ok := s[t]
	return ok
}

// Topics returns the members in declaration order.
func (s Set) Topics() []Topic {
	out := make([]Topic, 0, len(s))
	for _, t := range All() {
		if s.Has(t) {
			out = append(out, t)
		}
	}
	return out
}

// Names returns the members' wire names in declaration order.
func (s Set) Names() []string {
	ts := s.Topics()
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.String()
	}
	return out
}

// Clone returns an independent copy of the set.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for t := range s {
		out[t] = struct{}{}
	}
	return out
}
