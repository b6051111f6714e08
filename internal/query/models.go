package query

import (
	"fmt"
	"strings"
)

// Account is a stored credential/session record.
type Account struct {
	ID         int64  `json:"id"`
	Username   string `json:"username"`
	UserAgent  string `json:"user_agent"`
	OwnerEmail string `json:"owner_email"`
	Group      string `json:"group"`
	Tag        string `json:"tag"`
	CreatedAt  string `json:"created_at"` // long locale format, e.g. "Kamis, 17 Juli 2025"
	Cookies    string `json:"cookies"`
	Note       string `json:"note"`
}

// Column names a column of the accounts table.
type Column string

const (
	ColumnID         Column = "id"
	ColumnUsername   Column = "username"
	ColumnUserAgent  Column = "user_agent"
	ColumnOwnerEmail Column = "owner_email"
	ColumnGroup      Column = "group_name"
	ColumnTag        Column = "tag_name"
	ColumnCreatedAt  Column = "created_at"
	ColumnCookies    Column = "cookies"
	ColumnNote       Column = "note"
)

// SearchColumns are matched by the free-text search, in this order.
var SearchColumns = []Column{ColumnUsername, ColumnOwnerEmail, ColumnGroup, ColumnTag}

// Field is a bulk-editable account attribute.
type Field string

const (
	FieldGroup Field = "group"
	FieldTag   Field = "tag"
)

// ParseField validates a bulk-editable field name.
func ParseField(s string) (Field, error) {
	switch Field(strings.ToLower(strings.TrimSpace(s))) {
	case FieldGroup:
		return FieldGroup, nil
	case FieldTag:
		return FieldTag, nil
	}
	return "", fmt.Errorf("unknown field %q (want group or tag)", s)
}

// Column returns the table column backing the field.
func (f Field) Column() Column {
	if f == FieldTag {
		return ColumnTag
	}
	return ColumnGroup
}

// Value returns the field's value on a.
func (f Field) Value(a Account) string {
	if f == FieldTag {
		return a.Tag
	}
	return a.Group
}

// Patch describes a single-record edit. Nil fields are left unchanged.
// The owner email is the tenant key and cannot be patched.
type Patch struct {
	Username  *string `json:"username,omitempty"`
	UserAgent *string `json:"user_agent,omitempty"`
	Group     *string `json:"group,omitempty"`
	Tag       *string `json:"tag,omitempty"`
	Note      *string `json:"note,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Username == nil && p.UserAgent == nil && p.Group == nil && p.Tag == nil && p.Note == nil
}

// Apply returns a copy of a with the patch applied.
func (p Patch) Apply(a Account) Account {
	if p.Username != nil {
		a.Username = *p.Username
	}
	if p.UserAgent != nil {
		a.UserAgent = *p.UserAgent
	}
	if p.Group != nil {
		a.Group = *p.Group
	}
	if p.Tag != nil {
		a.Tag = *p.Tag
	}
	if p.Note != nil {
		a.Note = *p.Note
	}
	return a
}

// Assignments returns the column/value pairs the patch sets, in a stable order.
func (p Patch) Assignments() ([]Column, []string) {
	var cols []Column
	var vals []string
	add := func(c Column, v *string) {
		if v != nil {
			cols = append(cols, c)
			vals = append(vals, *v)
		}
	}
	add(ColumnUsername, p.Username)
	add(ColumnUserAgent, p.UserAgent)
	add(ColumnGroup, p.Group)
	add(ColumnTag, p.Tag)
	add(ColumnNote, p.Note)
	return cols, vals
}
