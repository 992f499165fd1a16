package kuma

// StatusPage is a public status page. The slug doubles as the server-side
// identifier (status pages have no numeric id in the save API).
type StatusPage struct {
	ID                    *Int          `json:"id,omitempty"`
	Slug                  *string       `json:"slug,omitempty"`
	Title                 *string       `json:"title,omitempty"`
	Description           *string       `json:"description,omitempty"`
	Icon                  *string       `json:"icon,omitempty"`
	Theme                 *string       `json:"theme,omitempty"`
	Published             *Bool         `json:"published,omitempty"`
	ShowTags              *Bool         `json:"showTags,omitempty"`
	DomainNameList        StringList    `json:"domainNameList,omitempty"`
	CustomCSS             *string       `json:"customCSS,omitempty"`
	FooterText            *string       `json:"footerText,omitempty"`
	ShowPoweredBy         *Bool         `json:"showPoweredBy,omitempty"`
	GoogleAnalyticsID     *string       `json:"googleAnalyticsId,omitempty"`
	ShowCertificateExpiry *Bool         `json:"showCertificateExpiry,omitempty"`
	PublicGroupList       []PublicGroup `json:"publicGroupList,omitempty"`

	// MonitorNames is the AutoKuma reference list; resolution replaces it
	// with a single public group holding the referenced monitors.
	MonitorNames StringList `json:"monitor_names,omitempty"`
}

type PublicGroup struct {
	ID          *Int                 `json:"id,omitempty"`
	Name        *string              `json:"name,omitempty"`
	Weight      *Int                 `json:"weight,omitempty"`
	MonitorList []PublicGroupMonitor `json:"monitorList"`
}

type PublicGroupMonitor struct {
	ID     *Int    `json:"id,omitempty"`
	Name   *string `json:"name,omitempty"`
	Weight *Bool   `json:"weight,omitempty"`
}

// StatusPageList is keyed by slug, as the server's statusPageList broadcast is.
type StatusPageList map[string]StatusPage
