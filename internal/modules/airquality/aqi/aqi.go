// Package aqi maps a raw MQ code onto four ordered air-quality tiers.
package aqi

import (
	"fmt"
	"math"

	"streetlight-server/internal/modules/airquality/types"
)

// Tier lower bounds on the raw scale. A tier covers [bound, next bound);
// the top tier is closed at the device maximum.
const (
	ModerateFrom      = 250
	UnhealthyFrom     = 450
	VeryUnhealthyFrom = 650
)

const (
	GoodIndex          = 30
	UnhealthyIndex     = 130
	VeryUnhealthyIndex = 220
)

// ModeratePolicy computes the index inside the Moderate tier.
type ModeratePolicy interface {
	Index(raw int) int
	String() string
}

type fixedModerate struct {
	value int
}

// FixedModerate returns the same index for every Moderate reading.
func FixedModerate(value int) ModeratePolicy {
	return fixedModerate{value: value}
}

func (p fixedModerate) Index(int) int { return p.value }

func (p fixedModerate) String() string { return fmt.Sprintf("fixed(%d)", p.value) }

type linearModerate struct {
	lo   int
	span int
}

// LinearModerate interpolates across [lo, lo+span] over the Moderate raw band.
func LinearModerate(lo, span int) ModeratePolicy {
	return linearModerate{lo: lo, span: span}
}

func (p linearModerate) Index(raw int) int {
	width := float64(UnhealthyFrom - ModerateFrom)
	idx := p.lo + int(math.Floor(float64(raw-ModerateFrom)/width*float64(p.span)))
	return max(p.lo, min(p.lo+p.span, idx))
}

func (p linearModerate) String() string {
	return fmt.Sprintf("linear(%d..%d)", p.lo, p.lo+p.span)
}

// Classifier is safe for concurrent use; it holds no mutable state.
type Classifier struct {
	moderate ModeratePolicy
}

// NewClassifier returns a classifier using policy for the Moderate tier.
// A nil policy falls back to LinearModerate(90, 10).
func NewClassifier(policy ModeratePolicy) *Classifier {
	if policy == nil {
		policy = LinearModerate(90, 10)
	}
	return &Classifier{moderate: policy}
}

// Policy reports the Moderate-tier policy in use.
func (c *Classifier) Policy() ModeratePolicy { return c.moderate }

// Classify returns the tier for raw. Values below zero fall into Good and
// values above the device maximum into VeryUnhealthy; ingest rejects both
// before they get here.
func (c *Classifier) Classify(raw int) types.Classification {
	switch {
	case raw < ModerateFrom:
		return types.Classification{Index: GoodIndex, Category: types.Good}
	case raw < UnhealthyFrom:
		return types.Classification{Index: c.moderate.Index(raw), Category: types.Moderate}
	case raw < VeryUnhealthyFrom:
		return types.Classification{Index: UnhealthyIndex, Category: types.Unhealthy}
	default:
		return types.Classification{Index: VeryUnhealthyIndex, Category: types.VeryUnhealthy}
	}
}
