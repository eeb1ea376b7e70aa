package profile

import (
	"encoding/json"
	"time"
)

// PaymentStatus describes the billing state of a plan.
type PaymentStatus string

const (
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusOverdue PaymentStatus = "overdue"
)

// Plan describes the subscription tier attached to a profile.
//
// Historically the hosted backend stored either a bare plan-name string or
// the full structured object, so UnmarshalJSON accepts both forms.
// Marshalling always emits the structured form.
type Plan struct {
	Name            string        `json:"name"`
	ImpressionLimit int           `json:"impressionLimit"`
	PaymentStatus   PaymentStatus `json:"paymentStatus,omitempty"`
	RenewalDate     *time.Time    `json:"renewalDate,omitempty"`
}

// UnmarshalJSON decodes either a plan-name string or a structured plan
// object. A bare name is resolved to its quota through the default catalog.
func (p *Plan) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*p = DefaultCatalog.Plan(name)
		return nil
	}

	type plain Plan
	var full plain
	if err := json.Unmarshal(data, &full); err != nil {
		return err
	}
	*p = Plan(full)
	if p.ImpressionLimit == 0 {
		p.ImpressionLimit = DefaultCatalog.Quota(p.Name)
	}
	return nil
}

// Catalog maps plan names to their monthly impression quotas. Lookup
// through the catalog is the single source of truth for quotas; the
// built-in tier table only backs names the catalog does not know.
type Catalog struct {
	quotas map[string]int
}

const (
	// DefaultPlanName is assigned when a profile is auto-provisioned.
	DefaultPlanName = "Starter"
	// DefaultImpressionLimit backs any plan the catalog cannot resolve.
	DefaultImpressionLimit = 16500
)

// DefaultCatalog carries the compiled-in tiers. Deployments that load
// tiers from the backend replace it via NewCatalog.
var DefaultCatalog = NewCatalog(map[string]int{
	"Starter": 16500,
	"Growth":  46500,
	"Impact":  96500,
})

// NewCatalog builds a catalog from a name -> quota table.
func NewCatalog(quotas map[string]int) Catalog {
	copied := make(map[string]int, len(quotas))
	for name, quota := range quotas {
		copied[name] = quota
	}
	return Catalog{quotas: copied}
}

// Quota resolves the impression quota for a plan name, falling back to
// DefaultImpressionLimit for unknown names.
func (c Catalog) Quota(name string) int {
	if quota, ok := c.quotas[name]; ok {
		return quota
	}
	return DefaultImpressionLimit
}

// Plan returns a fully populated Plan for the given name.
func (c Catalog) Plan(name string) Plan {
	if name == "" {
		name = DefaultPlanName
	}
	return Plan{
		Name:            name,
		ImpressionLimit: c.Quota(name),
		PaymentStatus:   PaymentStatusPending,
	}
}
