package domain

// ModelOption describes one polishing model known to the catalog.
type ModelOption struct {
	ID          string   `json:"id" yaml:"id"`
	FileName    string   `json:"fileName" yaml:"filename"`
	URL         string   `json:"url" yaml:"url"`
	RequiresRLE bool     `json:"requiresRLE" yaml:"requires_rle"`
	AlignParams []string `json:"alignParams,omitempty" yaml:"align_params,omitempty"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Downloaded  bool     `json:"downloaded" yaml:"-"`
	LocalPath   string   `json:"localPath,omitempty" yaml:"-"`
}

// Ref returns the value handed to the consensus caller: the local
// archive when present, the catalog identifier otherwise.
func (m ModelOption) Ref() string {
	if m.LocalPath != "" {
		return m.LocalPath
	}
	return m.ID
}
