package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Lead is the CRM record the import engine produces. Only the surface the
// engine needs is modeled here: creation, field lookup for duplicate checks,
// and overwrite/merge updates.
type Lead struct {
	ID     primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Fields map[string]string  `json:"fields" bson:"fields"`

	AssignedTo  string             `json:"assigned_to,omitempty" bson:"assigned_to,omitempty"`
	ImportJobID primitive.ObjectID `json:"import_job_id,omitempty" bson:"import_job_id,omitempty"`
	Source      string             `json:"source,omitempty" bson:"source,omitempty"`
	Deleted     bool               `json:"-" bson:"deleted"`

	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// LeadField describes one importable CRM field for mapping and validation.
type LeadField struct {
	Name     string
	Label    string
	Required bool
	// Aliases are alternative header spellings the auto-mapper recognizes.
	Aliases []string
}

// LeadFields is the closed set of target fields a source column can map to.
var LeadFields = []LeadField{
	{Name: "first_name", Label: "First Name", Aliases: []string{"firstname", "first", "given name", "prenom", "prénom"}},
	{Name: "last_name", Label: "Last Name", Aliases: []string{"lastname", "last", "surname", "family name", "nom"}},
	{Name: "email", Label: "Email", Required: true, Aliases: []string{"e-mail", "mail", "email address", "courriel"}},
	{Name: "phone", Label: "Phone", Aliases: []string{"telephone", "téléphone", "phone number", "mobile", "tel"}},
	{Name: "company", Label: "Company", Aliases: []string{"organization", "organisation", "employer", "societe", "société"}},
	{Name: "job_title", Label: "Job Title", Aliases: []string{"title", "position", "role", "fonction"}},
	{Name: "city", Label: "City", Aliases: []string{"town", "ville"}},
	{Name: "country", Label: "Country", Aliases: []string{"pays"}},
	{Name: "source", Label: "Source", Aliases: []string{"lead source", "origin"}},
	{Name: "notes", Label: "Notes", Aliases: []string{"comment", "comments", "remarks"}},
}

// LeadFieldByName returns the field descriptor, or nil for unknown names.
func LeadFieldByName(name string) *LeadField {
	for i := range LeadFields {
		if LeadFields[i].Name == name {
			return &LeadFields[i]
		}
	}
	return nil
}
