package cv

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// SectionKey 标识简历中的一个分区。
type SectionKey string

const (
	SectionProfile                  SectionKey = "profile"
	SectionSummary                  SectionKey = "summary"
	SectionWork                     SectionKey = "work"
	SectionEducation                SectionKey = "education"
	SectionSkills                   SectionKey = "skills"
	SectionProjects                 SectionKey = "projects"
	SectionCertifications           SectionKey = "certifications"
	SectionMemberships              SectionKey = "memberships"
	SectionInterests                SectionKey = "interests"
	SectionQualificationEquivalence SectionKey = "qualification_equivalence"
	// SectionLinkBack 仅在未渲染个人信息头部时承载 link-back 二维码。
	SectionLinkBack SectionKey = "link_back"
)

// CanonicalOrder 是文档中分区的固定顺序。
var CanonicalOrder = []SectionKey{
	SectionProfile,
	SectionSummary,
	SectionWork,
	SectionEducation,
	SectionProjects,
	SectionSkills,
	SectionCertifications,
	SectionMemberships,
	SectionInterests,
	SectionQualificationEquivalence,
}

// Valid reports whether the key names a selectable section.
func (k SectionKey) Valid() bool {
	for _, s := range CanonicalOrder {
		if s == k {
			return true
		}
	}
	return false
}

// FieldKey 标识受字数限制的自由文本字段。
type FieldKey string

const (
	FieldSummary            FieldKey = "summary"
	FieldHeadline           FieldKey = "profile.headline"
	FieldWorkDescription    FieldKey = "work.description"
	FieldEducationDetails   FieldKey = "education.description"
	FieldProjectDescription FieldKey = "projects.description"
)

// ErrInvalidDate is returned when a date field cannot be parsed.
var ErrInvalidDate = errors.New("invalid date")

// Record 是一份只读的结构化简历快照。
type Record struct {
	Profile                  Profile          `json:"profile"`
	Summary                  string           `json:"summary"`
	Work                     []WorkEntry      `json:"work"`
	Education                []EducationEntry `json:"education"`
	Skills                   []Skill          `json:"skills"`
	Projects                 []Project        `json:"projects"`
	Certifications           []Certification  `json:"certifications"`
	Memberships              []Membership     `json:"memberships"`
	Interests                []string         `json:"interests"`
	QualificationEquivalence []Equivalence    `json:"qualification_equivalence"`

	// ProfileURL 由 Provider 填充，是账号在线简历的规范地址。
	ProfileURL string `json:"-"`
}

type Profile struct {
	FullName string `json:"full_name"`
	Headline string `json:"headline"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Location string `json:"location"`
	Website  string `json:"website"`
	PhotoKey string `json:"photo_key"`
}

type WorkEntry struct {
	Title       string   `json:"title"`
	Company     string   `json:"company"`
	Location    string   `json:"location"`
	StartDate   string   `json:"start_date"`
	EndDate     string   `json:"end_date"`
	Description string   `json:"description"`
	Highlights  []string `json:"highlights"`
}

type EducationEntry struct {
	Institution string `json:"institution"`
	Degree      string `json:"degree"`
	Field       string `json:"field"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
	Description string `json:"description"`
}

type Skill struct {
	Name  string `json:"name"`
	Level string `json:"level"`
}

type Project struct {
	Name        string `json:"name"`
	Role        string `json:"role"`
	URL         string `json:"url"`
	Description string `json:"description"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
}

type Certification struct {
	Name     string `json:"name"`
	Issuer   string `json:"issuer"`
	IssuedOn string `json:"issued_on"`
}

type Membership struct {
	Organization string `json:"organization"`
	Role         string `json:"role"`
	Since        string `json:"since"`
}

// Equivalence 描述海外学历/资格的认证等效关系。
type Equivalence struct {
	Qualification string `json:"qualification"`
	Country       string `json:"country"`
	Equivalent    string `json:"equivalent"`
	Authority     string `json:"authority"`
}

var dateLayouts = []string{"2006-01-02", "2006-01", "2006"}

// ParseDate parses the loose date formats accepted from the editors.
// An empty string yields the zero time and no error.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, value)
}

// Validate checks that every date field in the record parses.
func (r Record) Validate() error {
	check := func(section SectionKey, idx int, values ...string) error {
		for _, v := range values {
			if _, err := ParseDate(v); err != nil {
				return fmt.Errorf("%s[%d]: %w", section, idx, err)
			}
		}
		return nil
	}
	for i, w := range r.Work {
		if err := check(SectionWork, i, w.StartDate, w.EndDate); err != nil {
			return err
		}
	}
	for i, e := range r.Education {
		if err := check(SectionEducation, i, e.StartDate, e.EndDate); err != nil {
			return err
		}
	}
	for i, p := range r.Projects {
		if err := check(SectionProjects, i, p.StartDate, p.EndDate); err != nil {
			return err
		}
	}
	for i, c := range r.Certifications {
		if err := check(SectionCertifications, i, c.IssuedOn); err != nil {
			return err
		}
	}
	for i, m := range r.Memberships {
		if err := check(SectionMemberships, i, m.Since); err != nil {
			return err
		}
	}
	return nil
}

// EntryCount returns the number of entries stored for a section.
func (r Record) EntryCount(section SectionKey) int {
	switch section {
	case SectionWork:
		return len(r.Work)
	case SectionEducation:
		return len(r.Education)
	case SectionSkills:
		return len(r.Skills)
	case SectionProjects:
		return len(r.Projects)
	case SectionCertifications:
		return len(r.Certifications)
	case SectionMemberships:
		return len(r.Memberships)
	case SectionInterests:
		return len(r.Interests)
	case SectionQualificationEquivalence:
		return len(r.QualificationEquivalence)
	default:
		return 0
	}
}

// FieldTexts returns every free-text value stored under a field key.
func (r Record) FieldTexts(field FieldKey) []string {
	switch field {
	case FieldSummary:
		return []string{r.Summary}
	case FieldHeadline:
		return []string{r.Profile.Headline}
	case FieldWorkDescription:
		out := make([]string, 0, len(r.Work))
		for _, w := range r.Work {
			out = append(out, w.Description)
		}
		return out
	case FieldEducationDetails:
		out := make([]string, 0, len(r.Education))
		for _, e := range r.Education {
			out = append(out, e.Description)
		}
		return out
	case FieldProjectDescription:
		out := make([]string, 0, len(r.Projects))
		for _, p := range r.Projects {
			out = append(out, p.Description)
		}
		return out
	default:
		return nil
	}
}

// WordCount counts whitespace separated words.
func WordCount(text string) int {
	return len(strings.Fields(text))
}
