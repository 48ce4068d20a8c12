package document

import (
	"errors"
	"reflect"
	"testing"

	"cvforge/internal/capability"
	"cvforge/internal/cv"
)

var (
	freeCaps = capability.Resolve(capability.SubscriptionState{Tier: capability.TierFree, Status: capability.StatusActive})
	proCaps  = capability.Resolve(capability.SubscriptionState{Tier: capability.TierPro, Status: capability.StatusActive})
)

func sampleRecord() cv.Record {
	return cv.Record{
		Profile: cv.Profile{
			FullName: "Ada Lovelace",
			Headline: "Analyst",
			Email:    "ada@example.com",
			Location: "London",
			PhotoKey: "user-assets/1/photo.png",
		},
		Summary: "Writes programs for engines that do not exist yet.",
		Work: []cv.WorkEntry{
			{Title: "Engineer", Company: "Old Co", StartDate: "2015-01", EndDate: "2018-06", Description: "Built things."},
			{Title: "Lead", Company: "Now Co", StartDate: "2020-03", Description: "Leads things."},
			{Title: "Senior", Company: "Mid Co", StartDate: "2018-07", EndDate: "2020-02", Description: "Scaled things."},
			{Description: "missing title and company"},
		},
		Education: []cv.EducationEntry{
			{Institution: "Uni A", Degree: "BSc", Field: "Maths", StartDate: "2008", EndDate: "2011"},
			{Institution: "Uni B", Degree: "MSc", StartDate: "2012", EndDate: "2013"},
		},
		Skills:    []cv.Skill{{Name: "Go", Level: "expert"}, {Name: " "}, {Name: "SQL"}},
		Interests: []string{"chess", ""},
		QualificationEquivalence: []cv.Equivalence{
			{Qualification: "Diplom", Country: "DE", Equivalent: "MSc", Authority: "NARIC"},
		},
		ProfileURL: "https://cv.example.com/cv/1",
	}
}

func allSections() []cv.SectionKey {
	return append([]cv.SectionKey(nil), cv.CanonicalOrder...)
}

func TestMap_WorkOnlyScenario(t *testing.T) {
	record := cv.Record{
		Work: []cv.WorkEntry{{Title: "Engineer", Company: "Acme", StartDate: "2021-04", EndDate: "2023-01", Description: "Shipped the billing platform."}},
	}
	cfg := RenderConfig{TemplateID: "minimal", Sections: []cv.SectionKey{cv.SectionWork, cv.SectionSkills}}

	model, err := Map(record, cfg, freeCaps)
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	if got := model.SectionKeys(); !reflect.DeepEqual(got, []cv.SectionKey{cv.SectionWork}) {
		t.Fatalf("sections = %v, want [work]", got)
	}
	work, _ := model.Section(cv.SectionWork)
	kinds := make([]BlockKind, 0, len(work.Blocks))
	for _, b := range work.Blocks {
		kinds = append(kinds, b.Kind)
	}
	want := []BlockKind{KindHeading, KindDateRange, KindParagraph}
	if !reflect.DeepEqual(kinds, want) {
		t.Fatalf("work blocks = %v, want %v", kinds, want)
	}
	if _, ok := model.Section(cv.SectionSkills); ok {
		t.Fatalf("skills section must be omitted when there is no data")
	}
	if _, _, ok := model.Find(KindImage); ok {
		t.Fatalf("photo must not be emitted when includePhoto is false")
	}
}

func TestMap_TemplateNotAllowed(t *testing.T) {
	cfg := RenderConfig{TemplateID: "classic", Sections: allSections()}
	model, err := Map(sampleRecord(), cfg, freeCaps)
	if !errors.Is(err, ErrTemplateNotAllowed) {
		t.Fatalf("expected ErrTemplateNotAllowed, got %v", err)
	}
	if !reflect.DeepEqual(model, Model{}) {
		t.Fatalf("expected zero model on rejection, got %+v", model)
	}

	cfg.TemplateID = freeCaps.Fallback()
	if _, err := Map(sampleRecord(), cfg, freeCaps); err != nil {
		t.Fatalf("fallback retry should succeed: %v", err)
	}
}

func TestMap_Deterministic(t *testing.T) {
	cfg := RenderConfig{TemplateID: "modern", Sections: allSections(), IncludePhoto: true, IncludeLinkBackCode: true}
	a, err := Map(sampleRecord(), cfg, proCaps)
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	for i := 0; i < 20; i++ {
		b, err := Map(sampleRecord(), cfg, proCaps)
		if err != nil {
			t.Fatalf("map: %v", err)
		}
		if !reflect.DeepEqual(a, b) {
			t.Fatalf("map is not deterministic on run %d", i)
		}
	}
}

func TestMap_CanonicalOrderIgnoresRequestOrder(t *testing.T) {
	cfg := RenderConfig{
		TemplateID: "minimal",
		Sections: []cv.SectionKey{
			cv.SectionQualificationEquivalence, cv.SectionSkills, cv.SectionWork,
			cv.SectionSummary, cv.SectionProfile, cv.SectionEducation, cv.SectionInterests, "bogus", cv.SectionWork,
		},
	}
	model, err := Map(sampleRecord(), cfg, freeCaps)
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	want := []cv.SectionKey{
		cv.SectionProfile, cv.SectionSummary, cv.SectionWork, cv.SectionEducation,
		cv.SectionSkills, cv.SectionInterests, cv.SectionQualificationEquivalence,
	}
	if got := model.SectionKeys(); !reflect.DeepEqual(got, want) {
		t.Fatalf("sections = %v, want %v", got, want)
	}
}

func TestMap_WorkOrderingOngoingFirst(t *testing.T) {
	cfg := RenderConfig{TemplateID: "minimal", Sections: []cv.SectionKey{cv.SectionWork, cv.SectionEducation}}
	model, err := Map(sampleRecord(), cfg, freeCaps)
	if err != nil {
		t.Fatalf("map: %v", err)
	}

	work, _ := model.Section(cv.SectionWork)
	var headings []string
	for _, b := range work.Blocks {
		if b.Kind == KindHeading {
			headings = append(headings, b.Text)
		}
	}
	want := []string{"Lead · Now Co", "Senior · Mid Co", "Engineer · Old Co"}
	if !reflect.DeepEqual(headings, want) {
		t.Fatalf("work order = %v, want %v", headings, want)
	}
	if !work.Blocks[1].Ongoing || work.Blocks[1].Kind != KindDateRange {
		t.Fatalf("entry without end date must be marked ongoing")
	}

	edu, _ := model.Section(cv.SectionEducation)
	if edu.Blocks[0].Text != "MSc · Uni B" {
		t.Fatalf("education should be newest first, got %q", edu.Blocks[0].Text)
	}
}

func TestMap_PhotoAndLinkBack(t *testing.T) {
	cfg := RenderConfig{TemplateID: "minimal", Sections: []cv.SectionKey{cv.SectionProfile, cv.SectionSummary}, IncludePhoto: true, IncludeLinkBackCode: true}
	model, err := Map(sampleRecord(), cfg, freeCaps)
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	img, section, ok := model.Find(KindImage)
	if !ok || section != cv.SectionProfile || img.AssetKey != "user-assets/1/photo.png" {
		t.Fatalf("expected photo in profile header, got %+v in %q", img, section)
	}
	link, section, ok := model.Find(KindLinkBack)
	if !ok || section != cv.SectionProfile || link.URL != "https://cv.example.com/cv/1" {
		t.Fatalf("expected link-back in profile header, got %+v in %q", link, section)
	}

	cfg.Sections = []cv.SectionKey{cv.SectionSummary}
	model, err = Map(sampleRecord(), cfg, freeCaps)
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	if _, _, ok := model.Find(KindImage); ok {
		t.Fatalf("photo follows the profile header and must be omitted without it")
	}
	keys := model.SectionKeys()
	if keys[len(keys)-1] != cv.SectionLinkBack {
		t.Fatalf("expected trailing link-back section, got %v", keys)
	}

	cfg.IncludeLinkBackCode = false
	model, _ = Map(sampleRecord(), cfg, freeCaps)
	if _, _, ok := model.Find(KindLinkBack); ok {
		t.Fatalf("link-back must not be emitted when disabled")
	}
}

func TestMap_MalformedDate(t *testing.T) {
	record := cv.Record{Work: []cv.WorkEntry{{Title: "Engineer", StartDate: "last spring"}}}
	cfg := RenderConfig{TemplateID: "minimal", Sections: []cv.SectionKey{cv.SectionWork}}
	_, err := Map(record, cfg, freeCaps)
	if !errors.Is(err, ErrMalformedRecord) {
		t.Fatalf("expected ErrMalformedRecord, got %v", err)
	}
}

func TestMap_DoesNotGateSectionsByPlan(t *testing.T) {
	record := sampleRecord()
	record.Work = append(record.Work,
		cv.WorkEntry{Title: "Intern", Company: "A", StartDate: "2013"},
		cv.WorkEntry{Title: "Intern", Company: "B", StartDate: "2012", EndDate: "2012"},
	)
	cfg := RenderConfig{TemplateID: "minimal", Sections: allSections()}
	model, err := Map(record, cfg, freeCaps)
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	work, _ := model.Section(cv.SectionWork)
	headings := 0
	for _, b := range work.Blocks {
		if b.Kind == KindHeading {
			headings++
		}
	}
	if headings != 5 {
		t.Fatalf("expected all valid work entries even above the plan's entry limit, got %d", headings)
	}
}

func TestModel_RemoveBlocks(t *testing.T) {
	m := Model{Sections: []Section{
		{Key: cv.SectionProfile, Blocks: []Block{{Kind: KindHeading, Text: "A"}, {Kind: KindImage}}},
		{Key: cv.SectionLinkBack, Blocks: []Block{{Kind: KindLinkBack, URL: "u"}}},
	}}
	m.RemoveBlocks(KindLinkBack)
	if got := m.SectionKeys(); !reflect.DeepEqual(got, []cv.SectionKey{cv.SectionProfile}) {
		t.Fatalf("empty sections should be dropped, got %v", got)
	}
	m.RemoveBlocks(KindImage)
	if len(m.Sections[0].Blocks) != 1 {
		t.Fatalf("expected image removed")
	}
}
