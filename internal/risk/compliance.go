package risk

import (
	"fmt"
	"sort"

	"github.com/CosmoTheDev/vtyscan-agent/models"
)

// ChannelRange is the contiguous channel span expected on one
// slot/adapter async bank.
type ChannelRange struct {
	Slot    int
	Adapter int
	First   int
	Last    int
}

type bankKey struct {
	slot, adapter int
}

// ValidateChannelCompliance compares the async line population against
// the expected ranges: channels that should exist but do not, channels
// outside the expected span, channels defined more than once, and
// rotary groups that cannot form a single hunt group. Banks absent from
// the expected list are not evaluated; the policy names the hardware
// each deployment owns. The returned order is deterministic.
func ValidateChannelCompliance(blocks []models.LineBlock, expected []ChannelRange) []string {
	violations := []string{}

	seen := map[bankKey]map[int]int{}
	for _, b := range blocks {
		if !b.ID.Triple {
			continue
		}
		k := bankKey{b.ID.Slot, b.ID.Adapter}
		if seen[k] == nil {
			seen[k] = map[int]int{}
		}
		seen[k][b.ID.Channel]++
	}

	ranges := append([]ChannelRange(nil), expected...)
	sort.Slice(ranges, func(i, j int) bool {
		if ranges[i].Slot != ranges[j].Slot {
			return ranges[i].Slot < ranges[j].Slot
		}
		return ranges[i].Adapter < ranges[j].Adapter
	})

	for _, r := range ranges {
		chans := seen[bankKey{r.Slot, r.Adapter}]
		for c := r.First; c <= r.Last; c++ {
			if chans[c] == 0 {
				violations = append(violations, fmt.Sprintf("slot %d/%d: missing channel %d", r.Slot, r.Adapter, c))
			}
		}
		var got []int
		for c := range chans {
			got = append(got, c)
		}
		sort.Ints(got)
		for _, c := range got {
			if c < r.First || c > r.Last {
				violations = append(violations, fmt.Sprintf("slot %d/%d: unexpected channel %d", r.Slot, r.Adapter, c))
			}
			if chans[c] > 1 {
				violations = append(violations, fmt.Sprintf("slot %d/%d: duplicate channel %d (%d blocks)", r.Slot, r.Adapter, c, chans[c]))
			}
		}
	}

	violations = append(violations, rotaryCollisions(blocks)...)
	return violations
}

// rotaryCollisions verifies every rotary group could be one hunt
// group: all members async triples on a single slot/adapter, channels
// forming one contiguous run.
func rotaryCollisions(blocks []models.LineBlock) []string {
	groups := map[int][]models.LineID{}
	for _, b := range blocks {
		if b.Rotary > 0 {
			groups[b.Rotary] = append(groups[b.Rotary], b.ID)
		}
	}
	var values []int
	for v := range groups {
		values = append(values, v)
	}
	sort.Ints(values)

	violations := []string{}
	for _, v := range values {
		members := groups[v]
		bank := bankKey{-1, -1}
		var channels []int
		clean := true
		for _, id := range members {
			if !id.Triple {
				violations = append(violations, fmt.Sprintf("rotary %d: includes non-async line %s", v, id))
				clean = false
				continue
			}
			k := bankKey{id.Slot, id.Adapter}
			if bank.slot == -1 {
				bank = k
			} else if bank != k {
				violations = append(violations, fmt.Sprintf("rotary %d: spans multiple banks (%d/%d and %d/%d)", v, bank.slot, bank.adapter, id.Slot, id.Adapter))
				clean = false
				break
			}
			channels = append(channels, id.Channel)
		}
		if !clean || len(channels) == 0 {
			continue
		}
		sort.Ints(channels)
		for i := 1; i < len(channels); i++ {
			if channels[i] == channels[i-1] {
				continue // duplicate channels reported separately
			}
			if channels[i] != channels[i-1]+1 {
				violations = append(violations, fmt.Sprintf("rotary %d: channels not contiguous on slot %d/%d", v, bank.slot, bank.adapter))
				break
			}
		}
	}
	return violations
}
