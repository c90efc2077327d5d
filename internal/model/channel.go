package model

// Channel is a creator identity resolved from a free-text query, with the
// candidate videos shortlisted for auditing.
type Channel struct {
	Name        string  `json:"name"`
	Handle      string  `json:"handle"`
	Avatar      string  `json:"avatar"`
	Description string  `json:"description"`
	Niche       string  `json:"niche,omitempty"`
	Videos      []Video `json:"recentVideos"`
}

// BareHandle returns the handle without its leading "@".
func (c Channel) BareHandle() string {
	return BareHandle(c.Handle)
}

// Video is a candidate video held in session state.
type Video struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Date            string `json:"date"`
	URL             string `json:"url"`
	ClaimsExtracted bool   `json:"claimsExtracted"`
}

// RecentSearch is the lightweight form of a channel kept in the recent list.
// ID is the channel handle.
type RecentSearch struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

// ToRecentSearch converts a resolved channel into a recent-search entry.
func (c Channel) ToRecentSearch() RecentSearch {
	return RecentSearch{ID: c.Handle, Name: c.Name, Avatar: c.Avatar}
}

// FeaturedChannel is a suggested starting point for a search.
type FeaturedChannel struct {
	Name     string `json:"name"`
	Handle   string `json:"handle"`
	Niche    string `json:"niche"`
	Initials string `json:"avatar"`
}

// FeaturedChannels lists the suggested ingestions shown on the search view.
func FeaturedChannels() []FeaturedChannel {
	return []FeaturedChannel{
		{Name: "Akshat Shrivastava", Handle: "@AkshatZayn", Niche: "Macro Strategy", Initials: "AS"},
		{Name: "CA Rachana Ranade", Handle: "@CARachanaRanade", Niche: "Fundamental Analysis", Initials: "RR"},
		{Name: "Pranjal Kamra", Handle: "@PranjalKamra", Niche: "Personal Finance", Initials: "PK"},
	}
}

// BareHandle strips a leading "@" from a handle.
func BareHandle(handle string) string {
	if len(handle) > 0 && handle[0] == '@' {
		return handle[1:]
	}
	return handle
}

// AtHandle ensures a handle carries a leading "@".
func AtHandle(handle string) string {
	if handle == "" || handle[0] == '@' {
		return handle
	}
	return "@" + handle
}
