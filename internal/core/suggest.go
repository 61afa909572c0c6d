package core

import "strings"

// headerAliases maps normalized header names to target fields. Normalization
// lowercases and strips spaces, underscores, hyphens and dots, so "First Name",
// "first_name" and "FirstName" all resolve to the same entry.
var headerAliases = map[string]FieldKey{
	// Names
	"name":       KeyFullName,
	"fullname":   KeyFullName,
	"membername": KeyFullName,
	"firstname":  KeyFirstName,
	"fname":      KeyFirstName,
	"givenname":  KeyFirstName,
	"forename":   KeyFirstName,
	"lastname":   KeyLastName,
	"lname":      KeyLastName,
	"surname":    KeyLastName,
	"familyname": KeyLastName,
	"middlename": KeyMiddleName,
	"othername":  KeyMiddleName,
	"othernames": KeyMiddleName,

	// Contact
	"email":          KeyEmail,
	"emailaddress":   KeyEmail,
	"mail":           KeyEmail,
	"phone":          KeyPhone,
	"phonenumber":    KeyPhone,
	"mobile":         KeyPhone,
	"mobilenumber":   KeyPhone,
	"telephone":      KeyPhone,
	"alternatephone": KeyAlternatePhone,
	"otherphone":     KeyAlternatePhone,
	"homephone":      KeyAlternatePhone,
	"address":        KeyAddress,
	"streetaddress":  KeyAddress,
	"homeaddress":    KeyAddress,
	"city":           KeyCity,
	"town":           KeyCity,
	"state":          KeyState,
	"region":         KeyState,
	"province":       KeyState,
	"postalcode":     KeyPostalCode,
	"postcode":       KeyPostalCode,
	"zip":            KeyPostalCode,
	"zipcode":        KeyPostalCode,
	"country":        KeyCountry,

	// Demographics
	"dob":           KeyDateOfBirth,
	"dateofbirth":   KeyDateOfBirth,
	"birthdate":     KeyDateOfBirth,
	"birthday":      KeyDateOfBirth,
	"gender":        KeyGender,
	"sex":           KeyGender,
	"maritalstatus": KeyMaritalStatus,
	"marital":       KeyMaritalStatus,
	"occupation":    KeyOccupation,
	"profession":    KeyOccupation,
	"jobtitle":      KeyOccupation,
	"employer":      KeyEmployer,
	"company":       KeyEmployer,
	"workplace":     KeyEmployer,

	// Membership
	"membershipstatus": KeyMembershipStatus,
	"memberstatus":     KeyMembershipStatus,
	"status":           KeyMembershipStatus,
	"membershiptype":   KeyMembershipType,
	"membertype":       KeyMembershipType,
	"membershipdate":   KeyMembershipDate,
	"datejoined":       KeyMembershipDate,
	"joindate":         KeyMembershipDate,
	"membersince":      KeyMembershipDate,
	"baptismdate":      KeyBaptismDate,
	"dateofbaptism":    KeyBaptismDate,
	"baptised":         KeyBaptismDate,
	"baptized":         KeyBaptismDate,

	// Family and emergency contacts
	"emergencycontact":      KeyEmergencyContactName,
	"emergencycontactname":  KeyEmergencyContactName,
	"emergencyphone":        KeyEmergencyContactPhone,
	"emergencycontactphone": KeyEmergencyContactPhone,
	"spouse":                KeySpouseName,
	"spousename":            KeySpouseName,
	"father":                KeyFatherName,
	"fathername":            KeyFatherName,
	"fathersname":           KeyFatherName,
	"mother":                KeyMotherName,
	"mothername":            KeyMotherName,
	"mothersname":           KeyMotherName,
	"children":              KeyNumberOfChildren,
	"numberofchildren":      KeyNumberOfChildren,
	"noofchildren":          KeyNumberOfChildren,
	"notes":                 KeyNotes,
	"comments":              KeyNotes,
	"remarks":               KeyNotes,
}

var aliasReplacer = strings.NewReplacer(" ", "", "_", "", "-", "", ".", "", "'", "")

// normalizeHeader reduces a header to its alias lookup form.
func normalizeHeader(h string) string {
	return aliasReplacer.Replace(strings.ToLower(strings.TrimSpace(h)))
}

// SuggestMapping proposes a mapping for headers from known aliases. Labels
// and keys from the catalog are recognised as well. The first column to claim
// a field keeps it.
func SuggestMapping(headers []string) ColumnMapping {
	m := NewColumnMapping(headers)
	claimed := make(map[FieldKey]bool)

	for _, h := range headers {
		key, ok := suggestField(h)
		if !ok || claimed[key] {
			continue
		}
		claimed[key] = true
		m = m.WithMapping(h, key)
	}
	return m
}

func suggestField(header string) (FieldKey, bool) {
	norm := normalizeHeader(header)
	if norm == "" {
		return "", false
	}
	if key, ok := headerAliases[norm]; ok {
		return key, true
	}
	for _, spec := range fieldCatalog {
		if normalizeHeader(spec.Label) == norm || strings.EqualFold(string(spec.Key), norm) {
			return spec.Key, true
		}
	}
	return "", false
}
