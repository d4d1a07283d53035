package jam

// Track is the provider-supplied metadata snapshot carried by queue items and
// the session's current-track field. Only display fields are kept; playback
// itself happens in the provider adapters.
type Track struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	CoverURL   string `json:"cover_url"`
	DurationMS int64  `json:"duration_ms"`
}
