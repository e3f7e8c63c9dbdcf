// Package amocrm provides the AmoCRM API data source.
// The CRM itself is an external collaborator: this package only reads
// deal and contact records and never mutates CRM state.
package amocrm

// Deal is an immutable snapshot of an AmoCRM lead ("сделка") as delivered
// by a webhook push or a paginated export. Custom fields arrive in several
// shapes depending on API version and sender; all of them are kept so the
// extractor chain can try each in order.
type Deal struct {
	ID                int64  `json:"id"`
	Name              string `json:"name"`
	Price             int64  `json:"price"`
	StatusID          int64  `json:"status_id"`
	PipelineID        int64  `json:"pipeline_id"`
	CreatedAt         int64  `json:"created_at"`
	UpdatedAt         int64  `json:"updated_at"`
	ClosedAt          int64  `json:"closed_at"`
	ResponsibleUserID int64  `json:"responsible_user_id"`

	// v4 API shape
	CustomFieldsValues []CustomFieldValue `json:"custom_fields_values"`
	// legacy shape used by older webhook senders
	CustomFields []LegacyCustomField `json:"custom_fields"`

	Tags []Tag `json:"tags"`

	// Direct convenience fields some senders attach to the deal itself.
	UTMSource   string `json:"utm_source"`
	UTMMedium   string `json:"utm_medium"`
	UTMCampaign string `json:"utm_campaign"`
	UTMContent  string `json:"utm_content"`
	UTMTerm     string `json:"utm_term"`

	Embedded *DealEmbedded `json:"_embedded"`
}

// CustomFieldValue is the v4 custom-field entry.
type CustomFieldValue struct {
	FieldID   int64        `json:"field_id"`
	FieldName string       `json:"field_name"`
	FieldCode string       `json:"field_code"`
	Values    []FieldValue `json:"values"`
}

// FieldValue wraps a single custom-field value.
type FieldValue struct {
	Value string `json:"value"`
}

// LegacyCustomField is the pre-v4 custom-field entry: name/code with either
// a flat value or a values array.
type LegacyCustomField struct {
	Name   string       `json:"name"`
	Code   string       `json:"code"`
	Value  string       `json:"value"`
	Values []FieldValue `json:"values"`
}

// Tag is a deal tag. Referral links tag deals with a "ref_" prefixed name.
type Tag struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// DealEmbedded carries related entities returned with `with=contacts`.
type DealEmbedded struct {
	Contacts []Contact `json:"contacts"`
}

// Contact is an AmoCRM contact, possibly with its own custom fields
// (phone, email) and linked lead references.
type Contact struct {
	ID                 int64              `json:"id"`
	Name               string             `json:"name"`
	CustomFieldsValues []CustomFieldValue `json:"custom_fields_values"`
	Embedded           *ContactEmbedded   `json:"_embedded"`
}

// ContactEmbedded carries lead references returned with `with=leads`.
type ContactEmbedded struct {
	Leads []LeadRef `json:"leads"`
}

// LeadRef is a bare reference to a deal linked to a contact.
type LeadRef struct {
	ID int64 `json:"id"`
}

// FirstValue returns the first value of the v4 custom field with the given
// numeric ID, or "" when the field is absent or empty.
func (d *Deal) FirstValue(fieldID int64) string {
	if fieldID == 0 {
		return ""
	}
	for _, f := range d.CustomFieldsValues {
		if f.FieldID == fieldID && len(f.Values) > 0 {
			return f.Values[0].Value
		}
	}
	return ""
}

// PrimaryContact returns the first embedded contact, or nil.
func (d *Deal) PrimaryContact() *Contact {
	if d.Embedded == nil || len(d.Embedded.Contacts) == 0 {
		return nil
	}
	return &d.Embedded.Contacts[0]
}

// FieldByCode returns the first value of the contact custom field with the
// given field code (e.g. "PHONE", "EMAIL"), or "".
func (c *Contact) FieldByCode(code string) string {
	for _, f := range c.CustomFieldsValues {
		if f.FieldCode == code && len(f.Values) > 0 {
			return f.Values[0].Value
		}
	}
	return ""
}

// Phone returns the contact's phone value, or "".
func (c *Contact) Phone() string {
	return c.FieldByCode("PHONE")
}

// Email returns the contact's email value, or "".
func (c *Contact) Email() string {
	return c.FieldByCode("EMAIL")
}
