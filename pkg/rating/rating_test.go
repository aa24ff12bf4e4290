// Copyright (c) 2025 Arcade Live Inc. All Rights Reserved.
// This is licensed software from Arcade Live Inc, for limitations
// and restrictions contact your company contract manager.

package rating

import (
	"fmt"
	"testing"
	"time"

	"github.com/onsi/gomega"

	"github.com/arcadelive/realtime-core/pkg/testsetup"
)

func TestApplyMatchResult_WinnerDeltaFloor(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)

	// performance*0.3 below the floor, delta comes out as 0.5
	updated := ApplyMatchResult(Default(), true, 1.0)
	g.Expect(updated.Mu).To(gomega.BeNumerically("~", 25.5, 1e-9))
	g.Expect(updated.Sigma).To(gomega.BeNumerically("~", 8.233, 1e-9))

	// performance*0.3 above the floor
	updated = ApplyMatchResult(Default(), true, 3.0)
	g.Expect(updated.Mu).To(gomega.BeNumerically("~", 25.9, 1e-9))
}

func TestApplyMatchResult_LoserDeltaCeiling(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)

	updated := ApplyMatchResult(Default(), false, 1.0)
	g.Expect(updated.Mu).To(gomega.BeNumerically("~", 24.5, 1e-9))
	g.Expect(updated.Sigma).To(gomega.BeNumerically("~", 8.283, 1e-9))

	updated = ApplyMatchResult(Default(), false, 4.0)
	g.Expect(updated.Mu).To(gomega.BeNumerically("~", 24.2, 1e-9))
}

func TestApplyMatchResult_Clamps(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)

	updated := ApplyMatchResult(Rating{Mu: 0.2, Sigma: 0.52}, false, 1.0)
	g.Expect(updated.Mu).To(gomega.Equal(0.0))
	g.Expect(updated.Sigma).To(gomega.Equal(MinSigma))
}

func TestApplyMatchResult_InvariantsHoldOverLongSequences(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)

	r := Default()
	for i := 0; i < 500; i++ {
		r = ApplyMatchResult(r, i%3 == 0, float64(i%7))
		g.Expect(r.Mu).To(gomega.BeNumerically(">=", 0.0))
		g.Expect(r.Sigma).To(gomega.BeNumerically(">=", MinSigma))
	}
}

func TestConservativeMMR(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)

	g.Expect(Rating{Mu: 1525, Sigma: 8.333}.ConservativeMMR()).
		To(gomega.BeNumerically("~", 1500.001, 1e-9))

	// floored at zero when three sigmas exceed mu
	g.Expect(Rating{Mu: 10, Sigma: 8.333}.ConservativeMMR()).To(gomega.Equal(0.0))
}

func TestTierFor_Boundaries(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)

	cases := []struct {
		mmr  float64
		tier Tier
	}{
		{0, TierBronze},
		{499.9, TierBronze},
		{500, TierSilver},
		{999.9, TierSilver},
		{1000, TierGold},
		{1500, TierPlatinum},
		{2000, TierDiamond},
		{2500, TierMaster},
		{3000, TierChampion},
		{9999, TierChampion},
	}
	for _, c := range cases {
		g.Expect(TierFor(c.mmr)).To(gomega.Equal(c.tier), "mmr %v", c.mmr)
	}
}

func TestTierFor_NonDecreasingInMMR(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)

	order := map[Tier]int{
		TierBronze: 0, TierSilver: 1, TierGold: 2, TierPlatinum: 3,
		TierDiamond: 4, TierMaster: 5, TierChampion: 6,
	}
	previous := -1
	for mmr := 0.0; mmr <= 3500; mmr += 25 {
		rank := order[TierFor(mmr)]
		g.Expect(rank).To(gomega.BeNumerically(">=", previous), "mmr %v", mmr)
		previous = rank
	}
}

func TestSmurfProbability(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)

	overperforming := []MatchRecord{
		{Won: true, Performance: 3.0},
		{Won: true, Performance: 2.5},
		{Won: true, Performance: 2.8},
	}

	// fresh low-bracket account performing far above it
	g.Expect(SmurfProbability(Default(), overperforming)).To(gomega.Equal(0.8))

	// no history at all is not suspicious
	g.Expect(SmurfProbability(Default(), nil)).To(gomega.Equal(0.0))

	// established account above the midpoint scales linearly
	veteran := Rating{Mu: 2425, Sigma: 8.333}
	history := make([]MatchRecord, 10)
	g.Expect(SmurfProbability(veteran, history)).To(gomega.BeNumerically("~", 0.3, 0.001))
}

func TestConsecutiveLosses(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)

	history := []MatchRecord{
		{Won: true},
		{Won: false},
		{Won: true},
		{Won: false},
		{Won: false},
	}
	g.Expect(ConsecutiveLosses(history)).To(gomega.Equal(2))
	g.Expect(ConsecutiveLosses(nil)).To(gomega.Equal(0))
	g.Expect(ConsecutiveLosses([]MatchRecord{{Won: true}})).To(gomega.Equal(0))
}

func TestMemoryStore_LoadInitialisesDefault(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	store := NewMemoryStore()

	r, err := store.Load(g.TestScope, "player-1")
	g.Expect(err).ToNot(gomega.HaveOccurred())
	g.Expect(r).To(gomega.Equal(Default()))

	// a saved rating survives reloads
	r.Mu = 30
	g.Expect(store.Save(g.TestScope, "player-1", r)).To(gomega.Succeed())
	reloaded, err := store.Load(g.TestScope, "player-1")
	g.Expect(err).ToNot(gomega.HaveOccurred())
	g.Expect(reloaded.Mu).To(gomega.Equal(30.0))
}

func TestMemoryStore_HistoryRingEvictsOldest(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	store := NewMemoryStore()

	for i := 0; i < HistoryCap+5; i++ {
		rec := MatchRecord{
			MatchID:  fmt.Sprintf("match-%d", i),
			PlayedAt: time.Unix(int64(i), 0),
		}
		g.Expect(store.AppendHistory(g.TestScope, "player-1", rec)).To(gomega.Succeed())
	}

	history, err := store.History(g.TestScope, "player-1")
	g.Expect(err).ToNot(gomega.HaveOccurred())
	g.Expect(history).To(gomega.HaveLen(HistoryCap))
	g.Expect(history[0].MatchID).To(gomega.Equal("match-5"))
	g.Expect(history[len(history)-1].MatchID).To(gomega.Equal(fmt.Sprintf("match-%d", HistoryCap+4)))
}
