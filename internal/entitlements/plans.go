package entitlements

import "github.com/rentwise/portal/internal/models"

// Plan is the display summary of a subscription tier.
type Plan struct {
	Type     models.PlanType `json:"type"`
	Name     string          `json:"name"`
	Features []string        `json:"features"`
}

var freePlan = Plan{Type: models.PlanNone, Name: "Free", Features: []string{}}

var plans = map[models.PlanType]Plan{
	models.PlanClient: {
		Type: models.PlanClient,
		Name: "Client",
		Features: []string{
			"Up to 10 properties",
			"Tenant and lease tracking",
			"Monthly rent reports",
			"Email support",
		},
	},
	models.PlanDiscount: {
		Type: models.PlanDiscount,
		Name: "Discount",
		Features: []string{
			"Up to 3 properties",
			"Tenant and lease tracking",
			"Community support",
		},
	},
	models.PlanEnterprise: {
		Type: models.PlanEnterprise,
		Name: "Enterprise",
		Features: []string{
			"Unlimited properties",
			"Portfolio analytics",
			"Team accounts",
			"Priority support",
			"Dedicated account manager",
		},
	},
}

// PlanSummary returns the summary for the subscription's plan type. Missing
// subscriptions and unknown plan types map to the Free plan.
func PlanSummary(sub *models.Subscription) Plan {
	if sub == nil {
		return clonePlan(freePlan)
	}
	p, ok := plans[sub.PlanType]
	if !ok {
		return clonePlan(freePlan)
	}
	return clonePlan(p)
}

// Plans lists every paid plan followed by Free, in pricing page order.
func Plans() []Plan {
	order := []models.PlanType{models.PlanDiscount, models.PlanClient, models.PlanEnterprise}
	out := make([]Plan, 0, len(order)+1)
	out = append(out, clonePlan(freePlan))
	for _, t := range order {
		out = append(out, clonePlan(plans[t]))
	}
	return out
}

func clonePlan(p Plan) Plan {
	f := make([]string, len(p.Features))
	copy(f, p.Features)
	p.Features = f
	return p
}
