package hub

import "fmt"

// Delta is one applied mutation. Value is shared between subscribers and
// must be treated as read-only.
type Delta struct {
	Seq   uint64 `json:"seq"`
	Key   Key    `json:"key"`
	Value any    `json:"value"`
}

// Snapshot is a point-in-time copy of the state. Seq is the sequence number
// of the last mutation it reflects.
type Snapshot struct {
	Seq   uint64 `json:"seq"`
	State State  `json:"state"`
}

// Apply folds a delta into the snapshot using the key's policy. Deltas the
// snapshot already reflects are ignored.
func (s *Snapshot) Apply(d Delta) error {
	if d.Seq <= s.Seq {
		return nil
	}
	if d.Seq != s.Seq+1 {
		return fmt.Errorf("%w: have %d, got %d", ErrSequenceGap, s.Seq, d.Seq)
	}
	v, err := Normalize(d.Key, d.Value)
	if err != nil {
		return err
	}
	s.State.apply(d.Key, v)
	s.Seq = d.Seq
	return nil
}
