package types

// PreferencesResponse is the versioned user preference document. A first-time
// user gets the zero-value defaults, which the UI treats differently from a
// stored document.
type PreferencesResponse struct {
	Version           int64   `json:"version"`
	PreferStableToken bool    `json:"preferStableToken"`
	DefaultModel      string  `json:"defaultModel"`
	FirstTimeUser     bool    `json:"firstTimeUser"`
}

func (r *PreferencesResponse) Validate() error {
	return nil
}

// PutPreferencesPayload replaces the preference document.
type PutPreferencesPayload struct {
	PreferStableToken bool   `json:"preferStableToken"`
	DefaultModel      string `json:"defaultModel"`
}

func (p *PutPreferencesPayload) Validate() error {
	return nil
}
