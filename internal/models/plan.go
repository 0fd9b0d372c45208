package models

import (
	"regexp"
	"strconv"
)

var planLitersPattern = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*l`)

// PlanLiters extracts the daily liter quantity from a free-text plan such as
// "1.5L/day". The first number directly followed by an L wins; anything
// else yields 0.
func PlanLiters(plan string) float64 {
	match := planLitersPattern.FindStringSubmatch(plan)
	if match == nil {
		return 0
	}
	liters, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0
	}
	return liters
}

// EffectiveLiters is the quantity to deliver: the assignment override when
// positive, otherwise the customer's plan quantity.
func EffectiveLiters(override float64, plan string) float64 {
	if override > 0 {
		return override
	}
	return PlanLiters(plan)
}

// EffectiveLiters returns the effective quantity of an assignment, using the plan
// carried on the row when no customer record is at hand.
func (a Assignment) EffectiveLiters(customer *Customer) float64 {
	plan := a.CustomerPlan
	if customer != nil && customer.Plan != "" {
		plan = customer.Plan
	}
	return EffectiveLiters(a.Liters, plan)
}
