package types

// JobIdentity names the role and employer a job description targets.
type JobIdentity struct {
	Title   string `json:"title"`
	Company string `json:"company,omitempty"`
}

// JDAnalysis is the output of the job description analysis stage.
type JDAnalysis struct {
	JobIdentity      JobIdentity `json:"jobIdentity"`
	Seniority        string      `json:"seniority,omitempty"`
	RequiredSkills   []string    `json:"requiredSkills"`
	PreferredSkills  []string    `json:"preferredSkills,omitempty"`
	Responsibilities []string    `json:"responsibilities,omitempty"`
	Keywords         []string    `json:"keywords,omitempty"`
}

// MatchResult is the output of the matching stage: how the master résumé
// lines up against the analyzed job description.
type MatchResult struct {
	MatchScore         int      `json:"matchScore"`
	MatchedSkills      []string `json:"matchedSkills"`
	MissingSkills      []string `json:"missingSkills"`
	RelevantExperience []string `json:"relevantExperience,omitempty"`
	Recommendations    []string `json:"recommendations,omitempty"`
}
