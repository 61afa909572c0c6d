package core

import "strings"

// FieldKey identifies a target field in the member schema.
type FieldKey string

// FieldKind classifies how a target field participates in an import.
type FieldKind int

const (
	FieldOptional FieldKind = iota
	FieldRequired
	FieldSynthetic
)

// FieldType describes the shape of a field's values. It drives normalization
// and the example values in generated templates; it is not validated here.
type FieldType int

const (
	FieldText FieldType = iota
	FieldEnum
	FieldDate
	FieldNumeric
	FieldEmail
	FieldPhone
)

// Target field keys.
const (
	KeyFirstName             FieldKey = "firstName"
	KeyLastName              FieldKey = "lastName"
	KeyFullName              FieldKey = "fullName"
	KeyMiddleName            FieldKey = "middleName"
	KeyEmail                 FieldKey = "email"
	KeyPhone                 FieldKey = "phone"
	KeyAlternatePhone        FieldKey = "alternatePhone"
	KeyDateOfBirth           FieldKey = "dateOfBirth"
	KeyGender                FieldKey = "gender"
	KeyMaritalStatus         FieldKey = "maritalStatus"
	KeyOccupation            FieldKey = "occupation"
	KeyEmployer              FieldKey = "employer"
	KeyAddress               FieldKey = "address"
	KeyCity                  FieldKey = "city"
	KeyState                 FieldKey = "state"
	KeyPostalCode            FieldKey = "postalCode"
	KeyCountry               FieldKey = "country"
	KeyMembershipStatus      FieldKey = "membershipStatus"
	KeyMembershipType        FieldKey = "membershipType"
	KeyMembershipDate        FieldKey = "membershipDate"
	KeyBaptismDate           FieldKey = "baptismDate"
	KeyEmergencyContactName  FieldKey = "emergencyContactName"
	KeyEmergencyContactPhone FieldKey = "emergencyContactPhone"
	KeySpouseName            FieldKey = "spouseName"
	KeyFatherName            FieldKey = "fatherName"
	KeyMotherName            FieldKey = "motherName"
	KeyNumberOfChildren      FieldKey = "numberOfChildren"
	KeyNotes                 FieldKey = "notes"
)

// FieldSpec describes a single target field.
type FieldSpec struct {
	Key        FieldKey  `json:"key"`
	Label      string    `json:"label"`
	Kind       FieldKind `json:"-"`
	Type       FieldType `json:"-"`
	EnumValues []string  `json:"enumValues,omitempty"` // Accepted codes, informational only
	Example    []string  `json:"-"`                    // Two example values for templates
}

// Required reports whether the field must be present on every record.
func (f FieldSpec) Required() bool { return f.Kind == FieldRequired }

// Synthetic reports whether the field expands into other fields.
func (f FieldSpec) Synthetic() bool { return f.Kind == FieldSynthetic }

// Coded reports whether values are stored as upper-cased codes.
func (f FieldSpec) Coded() bool { return f.Type == FieldEnum }

// fieldCatalog is the fixed target schema, in display order.
var fieldCatalog = []FieldSpec{
	{Key: KeyFullName, Label: "Full Name", Kind: FieldSynthetic, Example: []string{"John Michael Doe", "Jane Smith"}},
	{Key: KeyFirstName, Label: "First Name", Kind: FieldRequired, Example: []string{"John", "Jane"}},
	{Key: KeyLastName, Label: "Last Name", Kind: FieldRequired, Example: []string{"Doe", "Smith"}},
	{Key: KeyMiddleName, Label: "Middle Name", Example: []string{"Michael", ""}},
	{Key: KeyEmail, Label: "Email", Type: FieldEmail, Example: []string{"john.doe@example.com", "jane.smith@example.com"}},
	{Key: KeyPhone, Label: "Phone", Type: FieldPhone, Example: []string{"+15550100", "+15550101"}},
	{Key: KeyAlternatePhone, Label: "Alternate Phone", Type: FieldPhone, Example: []string{"", "+15550102"}},
	{Key: KeyDateOfBirth, Label: "Date of Birth", Type: FieldDate, Example: []string{"1985-04-12", "1990-11-30"}},
	{Key: KeyGender, Label: "Gender", Type: FieldEnum, EnumValues: []string{"MALE", "FEMALE"}, Example: []string{"MALE", "FEMALE"}},
	{Key: KeyMaritalStatus, Label: "Marital Status", Type: FieldEnum, EnumValues: []string{"SINGLE", "MARRIED", "DIVORCED", "WIDOWED"}, Example: []string{"MARRIED", "SINGLE"}},
	{Key: KeyOccupation, Label: "Occupation", Example: []string{"Engineer", "Teacher"}},
	{Key: KeyEmployer, Label: "Employer", Example: []string{"Acme Corp", ""}},
	{Key: KeyAddress, Label: "Address", Example: []string{"12 Main Street", "48 Oak Avenue"}},
	{Key: KeyCity, Label: "City", Example: []string{"Springfield", "Riverside"}},
	{Key: KeyState, Label: "State", Example: []string{"IL", "CA"}},
	{Key: KeyPostalCode, Label: "Postal Code", Example: []string{"62701", "92501"}},
	{Key: KeyCountry, Label: "Country", Example: []string{"USA", "USA"}},
	{Key: KeyMembershipStatus, Label: "Membership Status", Type: FieldEnum, EnumValues: []string{"ACTIVE", "INACTIVE", "VISITOR", "TRANSFERRED", "DECEASED"}, Example: []string{"ACTIVE", "VISITOR"}},
	{Key: KeyMembershipType, Label: "Membership Type", Type: FieldEnum, EnumValues: []string{"MEMBER", "ASSOCIATE", "CHILD", "YOUTH", "ADULT"}, Example: []string{"MEMBER", "ASSOCIATE"}},
	{Key: KeyMembershipDate, Label: "Membership Date", Type: FieldDate, Example: []string{"2015-06-07", "2023-01-15"}},
	{Key: KeyBaptismDate, Label: "Baptism Date", Type: FieldDate, Example: []string{"2016-03-27", ""}},
	{Key: KeyEmergencyContactName, Label: "Emergency Contact Name", Example: []string{"Mary Doe", "Tom Smith"}},
	{Key: KeyEmergencyContactPhone, Label: "Emergency Contact Phone", Type: FieldPhone, Example: []string{"+15550103", "+15550104"}},
	{Key: KeySpouseName, Label: "Spouse Name", Example: []string{"Mary Doe", ""}},
	{Key: KeyFatherName, Label: "Father's Name", Example: []string{"Robert Doe", "Paul Smith"}},
	{Key: KeyMotherName, Label: "Mother's Name", Example: []string{"Linda Doe", "Anne Smith"}},
	{Key: KeyNumberOfChildren, Label: "Number of Children", Type: FieldNumeric, Example: []string{"2", "0"}},
	{Key: KeyNotes, Label: "Notes", Example: []string{"Joined through outreach", ""}},
}

var catalogIndex = func() map[FieldKey]FieldSpec {
	idx := make(map[FieldKey]FieldSpec, len(fieldCatalog))
	for _, spec := range fieldCatalog {
		idx[spec.Key] = spec
	}
	return idx
}()

// Catalog returns the target schema in display order.
// The returned slice is a copy and may be modified by the caller.
func Catalog() []FieldSpec {
	out := make([]FieldSpec, len(fieldCatalog))
	copy(out, fieldCatalog)
	return out
}

// LookupField returns the spec for key.
func LookupField(key FieldKey) (FieldSpec, bool) {
	spec, ok := catalogIndex[key]
	return spec, ok
}

// ParseFieldKey resolves a field key case-insensitively.
func ParseFieldKey(s string) (FieldKey, bool) {
	s = strings.TrimSpace(s)
	if spec, ok := catalogIndex[FieldKey(s)]; ok {
		return spec.Key, true
	}
	for _, spec := range fieldCatalog {
		if strings.EqualFold(string(spec.Key), s) {
			return spec.Key, true
		}
	}
	return "", false
}

// RequiredFields returns the keys every record must carry.
func RequiredFields() []FieldKey {
	return []FieldKey{KeyFirstName, KeyLastName}
}

// fieldLabel returns the display label for key, falling back to the key itself.
func fieldLabel(key FieldKey) string {
	if spec, ok := catalogIndex[key]; ok {
		return spec.Label
	}
	return string(key)
}
