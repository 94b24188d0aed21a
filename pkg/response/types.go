package response

// Typed views of normalized records. Pointer fields are the optionals the
// transforms default to nil; decode a record after transforming it.

// Info is the bookkeeping block shared by most Pure records.
type Info struct {
	CreatedBy             *string          `json:"createdBy"`
	CreatedDate           *string          `json:"createdDate"`
	ModifiedBy            *string          `json:"modifiedBy"`
	ModifiedDate          *string          `json:"modifiedDate"`
	PortalURL             *string          `json:"portalUrl"`
	PreviousUUIDs         []string         `json:"previousUuids"`
	AdditionalExternalIDs []map[string]any `json:"additionalExternalIds"`
}

// Name is a person's name.
type Name struct {
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
}

// Parent references a parent organisational unit.
type Parent struct {
	UUID *string `json:"uuid"`
}

// Person is a persons record.
type Person struct {
	PureID       *int    `json:"pureId"`
	UUID         string  `json:"uuid"`
	ExternalID   *string `json:"externalId"`
	Name         Name    `json:"name"`
	ORCID        *string `json:"orcid"`
	ScopusHIndex *int    `json:"scopusHIndex"`
	Info         Info    `json:"info"`
}

// ExternalPerson is an external-persons record.
type ExternalPerson struct {
	PureID *int   `json:"pureId"`
	UUID   string `json:"uuid"`
	Name   Name   `json:"name"`
	Info   Info   `json:"info"`
}

// OrganisationalUnit is an organisational-units record.
type OrganisationalUnit struct {
	PureID     *int             `json:"pureId"`
	UUID       string           `json:"uuid"`
	ExternalID *string          `json:"externalId"`
	IDs        []map[string]any `json:"ids"`
	Parents    []Parent         `json:"parents"`
	Info       Info             `json:"info"`
}

// ExternalOrganisation is an external-organisations record.
type ExternalOrganisation struct {
	PureID *int   `json:"pureId"`
	UUID   string `json:"uuid"`
	Info   Info   `json:"info"`
}

// ResearchOutput is a research-outputs record. Title and type blocks vary
// between versions and stay untyped.
type ResearchOutput struct {
	PureID               *int             `json:"pureId"`
	UUID                 string           `json:"uuid"`
	Title                any              `json:"title"`
	Type                 map[string]any   `json:"type"`
	ElectronicVersions   []map[string]any `json:"electronicVersions"`
	Volume               *string          `json:"volume"`
	JournalNumber        *string          `json:"journalNumber"`
	Pages                *string          `json:"pages"`
	TotalScopusCitations *int             `json:"totalScopusCitations"`
	Info                 Info             `json:"info"`
}

// Change is one entry of the change feed.
type Change struct {
	UUID             string `json:"uuid"`
	ChangeType       string `json:"changeType"`
	FamilySystemName string `json:"familySystemName"`
	Version          *int   `json:"version"`
}
