package types

// Source identifies the site family a record was extracted from.
type Source string

const (
	SourceSearchEngine Source = "search_engine"
	SourceNetwork      Source = "professional_network"
	SourceWebsite      Source = "company_website"
)

// Company is one extracted business record.
type Company struct {
	Name        string            `json:"name"`
	Domain      string            `json:"domain,omitempty"`
	Website     string            `json:"website,omitempty"`
	Industry    string            `json:"industry,omitempty"`
	Description string            `json:"description,omitempty"`
	Phone       string            `json:"phone,omitempty"`
	Email       string            `json:"email,omitempty"`
	Address     string            `json:"address,omitempty"`
	SocialMedia map[string]string `json:"social_media,omitempty"`
	Source      Source            `json:"source"`
	Extra       map[string]string `json:"extra,omitempty"`
}

// Contact is one extracted person record.
type Contact struct {
	FirstName  string `json:"first_name,omitempty"`
	LastName   string `json:"last_name,omitempty"`
	FullName   string `json:"full_name,omitempty"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
	JobTitle   string `json:"job_title,omitempty"`
	Department string `json:"department,omitempty"`
	Source     Source `json:"source"`
}
