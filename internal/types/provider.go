// Package types provides type definitions for structured data used throughout the contract-processor system.
package types

import (
	"encoding/json"
	"strings"
)

// Provider represents a provider record as imported into the record store.
// Numeric attributes are pointers so that an explicit zero is distinguishable
// from a missing value; string attributes treat "" as missing.
type Provider struct {
	ID                    string   `json:"id"`
	EmployeeID            string   `json:"employeeId,omitempty"`
	Name                  string   `json:"name"`
	Credentials           string   `json:"credentials,omitempty"`
	Specialty             string   `json:"specialty,omitempty"`
	Subspecialty          string   `json:"subspecialty,omitempty"`
	PositionTitle         string   `json:"positionTitle,omitempty"`
	Organization          string   `json:"organization,omitempty"`
	StartDate             string   `json:"startDate,omitempty"`
	OriginalAgreementDate string   `json:"originalAgreementDate,omitempty"`
	ContractTerm          string   `json:"contractTerm,omitempty"`
	CompensationModel     string   `json:"compensationModel,omitempty"`
	CompensationYear      string   `json:"compensationYear,omitempty"`
	TemplateTag           string   `json:"templateTag,omitempty"`
	FTE                   *float64 `json:"fte,omitempty"`
	ClinicalFTE           *float64 `json:"clinicalFTE,omitempty"`
	AdministrativeFTE     *float64 `json:"administrativeFTE,omitempty"`
	ResearchFTE           *float64 `json:"researchFTE,omitempty"`
	TeachingFTE           *float64 `json:"teachingFTE,omitempty"`
	MedicalDirectorFTE    *float64 `json:"medicalDirectorFTE,omitempty"`
	BaseSalary            *float64 `json:"baseSalary,omitempty"`
	WRVUTarget            *float64 `json:"wRVUTarget,omitempty"`
	ConversionFactor      *float64 `json:"conversionFactor,omitempty"`
	SigningBonus          *float64 `json:"signingBonus,omitempty"`
	RelocationBonus       *float64 `json:"relocationBonus,omitempty"`
	QualityBonus          *float64 `json:"qualityBonus,omitempty"`
	RetentionBonus        *float64 `json:"retentionBonus,omitempty"`
	CMEAmount             *float64 `json:"cmeAmount,omitempty"`

	// DynamicFields carries ad-hoc imported columns. It may hold a JSON
	// object or a JSON string whose content is an object.
	DynamicFields json.RawMessage `json:"dynamicFields,omitempty"`
}

// Attribute returns the direct attribute with the given JSON name.
// The second return value is false when the attribute is unknown or unset.
func (p *Provider) Attribute(name string) (any, bool) {
	if p == nil {
		return nil, false
	}
	if s, ok := p.stringAttributes()[name]; ok {
		if s == "" {
			return nil, false
		}
		return s, true
	}
	if n, ok := p.numericAttributes()[name]; ok {
		if n == nil {
			return nil, false
		}
		return *n, true
	}
	return nil, false
}

func (p *Provider) stringAttributes() map[string]string {
	return map[string]string{
		"id":                    p.ID,
		"employeeId":            p.EmployeeID,
		"name":                  p.Name,
		"credentials":           p.Credentials,
		"specialty":             p.Specialty,
		"subspecialty":          p.Subspecialty,
		"positionTitle":         p.PositionTitle,
		"organization":          p.Organization,
		"startDate":             p.StartDate,
		"originalAgreementDate": p.OriginalAgreementDate,
		"contractTerm":          p.ContractTerm,
		"compensationModel":     p.CompensationModel,
		"compensationYear":      p.CompensationYear,
		"templateTag":           p.TemplateTag,
	}
}

func (p *Provider) numericAttributes() map[string]*float64 {
	return map[string]*float64{
		"fte":                p.FTE,
		"clinicalFTE":        p.ClinicalFTE,
		"administrativeFTE":  p.AdministrativeFTE,
		"researchFTE":        p.ResearchFTE,
		"teachingFTE":        p.TeachingFTE,
		"medicalDirectorFTE": p.MedicalDirectorFTE,
		"baseSalary":         p.BaseSalary,
		"wRVUTarget":         p.WRVUTarget,
		"conversionFactor":   p.ConversionFactor,
		"signingBonus":       p.SigningBonus,
		"relocationBonus":    p.RelocationBonus,
		"qualityBonus":       p.QualityBonus,
		"retentionBonus":     p.RetentionBonus,
		"cmeAmount":          p.CMEAmount,
	}
}

// DisplayName returns the provider name with credentials appended, e.g. "Jane Doe, MD".
func (p *Provider) DisplayName() string {
	name := strings.TrimSpace(p.Name)
	if p.Credentials == "" {
		return name
	}
	return name + ", " + strings.TrimSpace(p.Credentials)
}

// Float is a convenience for building numeric attributes in literals.
func Float(v float64) *float64 {
	return &v
}
