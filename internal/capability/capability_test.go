package capability

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"cvforge/internal/cv"
	"cvforge/internal/templates"
)

func TestResolve_Tiers(t *testing.T) {
	cases := []struct {
		name        string
		state       SubscriptionState
		wantTier    string
		wantExport  bool
		wantAllowed []string
	}{
		{"free", SubscriptionState{Tier: "free", Status: "active"}, TierFree, false, []string{"minimal"}},
		{"pro", SubscriptionState{Tier: "pro", Status: "active"}, TierPro, true, []string{"minimal", "classic", "modern", "custom"}},
		{"business upper case", SubscriptionState{Tier: " Business ", Status: "ACTIVE"}, TierBusiness, true, []string{"minimal", "classic", "modern", "custom"}},
		{"canceled pro", SubscriptionState{Tier: "pro", Status: "canceled"}, TierFree, false, []string{"minimal"}},
		{"past due business", SubscriptionState{Tier: "business", Status: "past_due"}, TierFree, false, []string{"minimal"}},
		{"unknown tier", SubscriptionState{Tier: "enterprise", Status: "active"}, TierFree, false, []string{"minimal"}},
		{"empty", SubscriptionState{}, TierFree, false, []string{"minimal"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			caps := Resolve(tc.state)
			if caps.Tier != tc.wantTier {
				t.Fatalf("tier = %q, want %q", caps.Tier, tc.wantTier)
			}
			if caps.ExportEnabled != tc.wantExport {
				t.Fatalf("export = %v, want %v", caps.ExportEnabled, tc.wantExport)
			}
			if !reflect.DeepEqual(caps.AllowedTemplateIDs, tc.wantAllowed) {
				t.Fatalf("allowed = %v, want %v", caps.AllowedTemplateIDs, tc.wantAllowed)
			}
		})
	}
}

func TestResolve_Deterministic(t *testing.T) {
	state := SubscriptionState{Tier: "pro", Status: "active"}
	a := Resolve(state)
	b := Resolve(state)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("resolve is not deterministic")
	}

	a.AllowedTemplateIDs[0] = "tampered"
	a.SectionEntryLimits[cv.SectionWork] = 999
	c := Resolve(state)
	if c.AllowedTemplateIDs[0] != templates.BuiltinMinimal || c.SectionEntryLimits[cv.SectionWork] == 999 {
		t.Fatalf("mutating a resolved value leaked into later resolutions")
	}
}

func TestAllows(t *testing.T) {
	free := Resolve(SubscriptionState{Tier: TierFree})
	pro := Resolve(SubscriptionState{Tier: TierPro, Status: StatusActive})
	custom := templates.CustomID("5f0c9a4e-0000-4000-8000-000000000000")

	if !free.Allows("minimal") || free.Allows("classic") || free.Allows(custom) {
		t.Fatalf("free tier allow-list is wrong")
	}
	if !pro.Allows("modern") || !pro.Allows(custom) {
		t.Fatalf("pro tier should allow built-ins and custom templates")
	}
	if pro.Allows("custom") || pro.Allows("custom:") || pro.Allows("unknown") {
		t.Fatalf("family marker and unknown ids must not be renderable")
	}
}

func TestFallbackAndQuota(t *testing.T) {
	free := Resolve(SubscriptionState{Tier: TierFree})
	if free.Fallback() != templates.BuiltinMinimal {
		t.Fatalf("fallback = %q", free.Fallback())
	}
	if free.Quota().Enabled() {
		t.Fatalf("free tier must not allow custom templates")
	}

	pro := Resolve(SubscriptionState{Tier: TierPro})
	q := pro.Quota()
	if q.MaxTemplates != 3 || q.MaxTemplateBytes != 64*1024 || q.MaxTotalBytes != 192*1024 {
		t.Fatalf("unexpected pro quota %+v", q)
	}

	empty := RenderCapabilities{}
	if empty.Fallback() != templates.BuiltinMinimal {
		t.Fatalf("empty capabilities should fall back to minimal")
	}
}

func TestCheckRecord(t *testing.T) {
	free := Resolve(SubscriptionState{Tier: TierFree})

	ok := cv.Record{Summary: "Backend engineer.", Work: make([]cv.WorkEntry, 3)}
	if err := free.CheckRecord(ok); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tooMany := cv.Record{Work: make([]cv.WorkEntry, 4)}
	err := free.CheckRecord(tooMany)
	var le *LimitError
	if !errors.Is(err, ErrLimitExceeded) || !errors.As(err, &le) || le.Section != cv.SectionWork || le.Actual != 4 {
		t.Fatalf("expected work entry limit error, got %v", err)
	}

	wordy := cv.Record{Summary: strings.Repeat("word ", 81)}
	err = free.CheckRecord(wordy)
	if !errors.As(err, &le) || le.Field != cv.FieldSummary || le.Limit != 80 {
		t.Fatalf("expected summary word limit error, got %v", err)
	}
	if !strings.Contains(err.Error(), "word limit reached") {
		t.Fatalf("unexpected message %q", err.Error())
	}

	pro := Resolve(SubscriptionState{Tier: TierPro})
	if err := pro.CheckRecord(wordy); err != nil {
		t.Fatalf("pro tier should accept the longer summary: %v", err)
	}
}
