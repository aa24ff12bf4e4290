// Copyright (c) 2025 Arcade Live Inc. All Rights Reserved.
// This is licensed software from Arcade Live Inc, for limitations
// and restrictions contact your company contract manager.

package rating

// Tier is the display rank derived from conservative mmr.
type Tier string

const (
	TierBronze   Tier = "Bronze"
	TierSilver   Tier = "Silver"
	TierGold     Tier = "Gold"
	TierPlatinum Tier = "Platinum"
	TierDiamond  Tier = "Diamond"
	TierMaster   Tier = "Master"
	TierChampion Tier = "Champion"
)

// tierThresholds maps each tier to its inclusive lower mmr bound, ascending.
var tierThresholds = []struct {
	floor float64
	tier  Tier
}{
	{3000, TierChampion},
	{2500, TierMaster},
	{2000, TierDiamond},
	{1500, TierPlatinum},
	{1000, TierGold},
	{500, TierSilver},
	{0, TierBronze},
}

// TierFor maps a conservative mmr onto exactly one rank tier.
// The mapping is non-decreasing in mmr.
func TierFor(mmr float64) Tier {
	for _, t := range tierThresholds {
		if mmr >= t.floor {
			return t.tier
		}
	}
	return TierBronze
}
