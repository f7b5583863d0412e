package status

// Tier is a club loyalty level unlocked by status points.
type Tier string

const (
	TierCadet     Tier = "cadet"
	TierResident  Tier = "resident"
	TierHeadliner Tier = "headliner"
	TierSuperfan  Tier = "superfan"
)

// Tiers lists every tier in ascending threshold order.
var Tiers = []Tier{TierCadet, TierResident, TierHeadliner, TierSuperfan}

var thresholds = map[Tier]int64{
	TierCadet:     0,
	TierResident:  500,
	TierHeadliner: 1500,
	TierSuperfan:  4000,
}

// TierFor returns the highest tier whose threshold does not exceed statusPoints.
func TierFor(statusPoints int64) Tier {
	tier := TierCadet
	for _, t := range Tiers {
		if statusPoints >= thresholds[t] {
			tier = t
		}
	}
	return tier
}

// Threshold returns the status points required to hold the given tier.
func Threshold(t Tier) int64 {
	return thresholds[t]
}

// NextTier returns the tier above t. The second value is false when t is
// already the highest tier.
func NextTier(t Tier) (Tier, bool) {
	idx := t.Index()
	if idx < 0 || idx+1 >= len(Tiers) {
		return "", false
	}
	return Tiers[idx+1], true
}

// Progress reports how far statusPoints have advanced from the given tier's
// threshold toward the next one, as a percentage in [0,100]. The highest tier
// always reports 100.
func Progress(statusPoints int64, tier Tier) int {
	next, ok := NextTier(tier)
	if !ok {
		return 100
	}
	span := thresholds[next] - thresholds[tier]
	advanced := statusPoints - thresholds[tier]
	if advanced <= 0 {
		return 0
	}
	pct := int(advanced * 100 / span)
	if pct > 100 {
		pct = 100
	}
	return pct
}

// PointsToNext returns how many more status points reach the next tier,
// or zero at the highest tier.
func PointsToNext(statusPoints int64) int64 {
	next, ok := NextTier(TierFor(statusPoints))
	if !ok {
		return 0
	}
	return thresholds[next] - statusPoints
}

// Index returns the tier's position in ascending order, or -1 for an
// unrecognized tier.
func (t Tier) Index() int {
	for i, cur := range Tiers {
		if cur == t {
			return i
		}
	}
	return -1
}

// Valid reports whether t is a recognized tier.
func (t Tier) Valid() bool {
	return t.Index() >= 0
}

// AtLeast reports whether t meets or exceeds the required tier.
func (t Tier) AtLeast(required Tier) bool {
	return t.Index() >= required.Index()
}
