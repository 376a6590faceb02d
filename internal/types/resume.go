// Package types provides type definitions for the structured documents exchanged between pipeline stages.
package types

// Contact holds the reachable details printed in a résumé header.
type Contact struct {
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Location string `json:"location,omitempty"`
	LinkedIn string `json:"linkedin,omitempty"`
	Website  string `json:"website,omitempty"`
}

// ExperienceEntry is one position in the work history.
type ExperienceEntry struct {
	Title     string   `json:"title"`
	Company   string   `json:"company"`
	Location  string   `json:"location,omitempty"`
	StartDate string   `json:"startDate,omitempty"`
	EndDate   string   `json:"endDate,omitempty"`
	Bullets   []string `json:"bullets"`
}

// EducationEntry is one degree or program.
type EducationEntry struct {
	Institution string `json:"institution"`
	Degree      string `json:"degree,omitempty"`
	Field       string `json:"field,omitempty"`
	Graduation  string `json:"graduation,omitempty"`
}

// ProjectEntry is a side or portfolio project.
type ProjectEntry struct {
	Name         string   `json:"name"`
	Description  string   `json:"description,omitempty"`
	Technologies []string `json:"technologies,omitempty"`
}

// ResumeDocument is the structured résumé used both as the user's master résumé
// and as the output of the rewrite and optimization stages.
type ResumeDocument struct {
	FullName       string            `json:"fullName"`
	Headline       string            `json:"headline,omitempty"`
	Contact        *Contact          `json:"contact,omitempty"`
	Summary        string            `json:"summary"`
	Skills         []string          `json:"skills"`
	Experience     []ExperienceEntry `json:"experience"`
	Projects       []ProjectEntry    `json:"projects,omitempty"`
	Education      []EducationEntry  `json:"education,omitempty"`
	Certifications []string          `json:"certifications,omitempty"`
}
