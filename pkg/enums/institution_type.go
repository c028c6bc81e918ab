package enums

import "fmt"

// InstitutionType classifies the healthcare institution behind a member.
type InstitutionType string

const (
	InstitutionPharmacy InstitutionType = "pharmacy"
	InstitutionClinic   InstitutionType = "clinic"
	InstitutionHospital InstitutionType = "hospital"
	InstitutionNGO      InstitutionType = "ngo"
)

var validInstitutionTypes = []InstitutionType{
	InstitutionPharmacy,
	InstitutionClinic,
	InstitutionHospital,
	InstitutionNGO,
}

func (i InstitutionType) String() string {
	return string(i)
}

func (i InstitutionType) IsValid() bool {
	for _, candidate := range validInstitutionTypes {
		if candidate == i {
			return true
		}
	}
	return false
}

func ParseInstitutionType(value string) (InstitutionType, error) {
	for _, candidate := range validInstitutionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid institution type %q", value)
}
