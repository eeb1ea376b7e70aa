package profile

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestPlanUnmarshalBareName(t *testing.T) {
	var plan Plan
	if err := json.Unmarshal([]byte(`"Growth"`), &plan); err != nil {
		t.Fatalf("unmarshal returned error: %v", err)
	}
	if plan.Name != "Growth" {
		t.Fatalf("expected plan name Growth, got %q", plan.Name)
	}
	if plan.ImpressionLimit != 46500 {
		t.Fatalf("expected catalog quota 46500, got %d", plan.ImpressionLimit)
	}
}

func TestPlanUnmarshalStructured(t *testing.T) {
	raw := `{"name":"Impact","impressionLimit":96500,"paymentStatus":"paid","renewalDate":"2026-09-01T00:00:00Z"}`

	var plan Plan
	if err := json.Unmarshal([]byte(raw), &plan); err != nil {
		t.Fatalf("unmarshal returned error: %v", err)
	}
	if plan.Name != "Impact" || plan.ImpressionLimit != 96500 {
		t.Fatalf("unexpected plan: %+v", plan)
	}
	if plan.PaymentStatus != PaymentStatusPaid {
		t.Fatalf("expected paid status, got %q", plan.PaymentStatus)
	}
	if plan.RenewalDate == nil || !plan.RenewalDate.Equal(time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected renewal date: %v", plan.RenewalDate)
	}
}

func TestPlanUnmarshalStructuredWithoutQuota(t *testing.T) {
	var plan Plan
	if err := json.Unmarshal([]byte(`{"name":"Starter"}`), &plan); err != nil {
		t.Fatalf("unmarshal returned error: %v", err)
	}
	if plan.ImpressionLimit != 16500 {
		t.Fatalf("expected catalog quota for missing limit, got %d", plan.ImpressionLimit)
	}
}

func TestCatalogFallbackQuota(t *testing.T) {
	if quota := DefaultCatalog.Quota("NoSuchPlan"); quota != DefaultImpressionLimit {
		t.Fatalf("expected fallback quota %d, got %d", DefaultImpressionLimit, quota)
	}
	if quota := DefaultCatalog.Quota("Starter"); quota != 16500 {
		t.Fatalf("expected starter quota 16500, got %d", quota)
	}
}

func TestNewProfileSeedsDefaults(t *testing.T) {
	id := uuid.New()
	now := time.Now()

	p := New(id, "user@example.com", now)

	if p.ID != id || p.Email != "user@example.com" {
		t.Fatalf("unexpected identity: %+v", p)
	}
	if p.Status != StatusActive {
		t.Fatalf("expected active status, got %q", p.Status)
	}
	if p.Plan == nil || p.Plan.Name != DefaultPlanName || p.Plan.ImpressionLimit != DefaultImpressionLimit {
		t.Fatalf("expected default plan, got %+v", p.Plan)
	}
	if !p.CreatedAt.Equal(now) {
		t.Fatalf("expected createdAt %v, got %v", now, p.CreatedAt)
	}
}
