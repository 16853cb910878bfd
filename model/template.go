package model

import "time"

// InfoTemplate is a saved set of information-entry form defaults.
type InfoTemplate struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"-"`
	Source       string    `json:"source"`
	InfoSource   string    `json:"infoSource"`
	KeyURL       string    `json:"keyUrl"`
	TemplateName string    `json:"templateName"`
	CreatedAt    time.Time `json:"createdAt"`
}

// TemplateName builds the display name source-infoSource-keyUrl.
func TemplateName(source, infoSource, keyURL string) string {
	return source + "-" + infoSource + "-" + keyURL
}
