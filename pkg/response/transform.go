package response

// TransformFunc adds defaults to a record in place and returns it.
// Implementations must be idempotent.
type TransformFunc func(Record) Record

// Default wraps a record without defaulting any field.
func Default(r Record) Record {
	return r
}

// TransformPerson defaults the optional fields of a persons record.
func TransformPerson(r Record) Record {
	r.SetDefault([]any{}, "info", "previousUuids")
	r.SetDefault(nil, "name", "firstName")
	r.SetDefault(nil, "name", "lastName")
	r.SetDefault(nil, "externalId")
	r.SetDefault(nil, "scopusHIndex")
	r.SetDefault(nil, "orcid")
	return r
}

// TransformExternalPerson defaults the optional fields of an external-persons record.
func TransformExternalPerson(r Record) Record {
	r.SetDefault([]any{}, "info", "previousUuids")
	r.SetDefault(nil, "name", "firstName")
	r.SetDefault(nil, "name", "lastName")
	return r
}

// TransformOrganisationalUnit defaults the optional fields of an
// organisational-units record. A unit without parents, such as the root
// organisation, gets a single parent whose uuid is nil.
func TransformOrganisationalUnit(r Record) Record {
	r.SetDefault([]any{}, "info", "previousUuids")
	r.SetDefault(nil, "externalId")
	r.SetDefault([]any{}, "ids")
	r.SetDefault([]any{map[string]any{"uuid": nil}}, "parents")
	return r
}

// TransformExternalOrganisation defaults the optional fields of an
// external-organisations record.
func TransformExternalOrganisation(r Record) Record {
	r.SetDefault([]any{}, "info", "previousUuids")
	r.SetDefault(nil, "pureId")
	return r
}

// TransformResearchOutput defaults the optional fields of a research-outputs record.
func TransformResearchOutput(r Record) Record {
	r.SetDefault([]any{}, "electronicVersions")
	r.SetDefault([]any{}, "info", "additionalExternalIds")
	r.SetDefault([]any{}, "info", "previousUuids")
	r.SetDefault(nil, "volume")
	r.SetDefault(nil, "journalNumber")
	r.SetDefault(nil, "pages")
	r.SetDefault(nil, "totalScopusCitations")
	return r
}

// TransformChange leaves change records untouched. Their shape depends on the
// family of the changed entity.
func TransformChange(r Record) Record {
	return r
}

// defaultTransforms are registered for every version that exposes the
// collection.
var defaultTransforms = map[string]TransformFunc{
	"persons":                TransformPerson,
	"external-persons":       TransformExternalPerson,
	"organisational-units":   TransformOrganisationalUnit,
	"external-organisations": TransformExternalOrganisation,
	"research-outputs":       TransformResearchOutput,
	"changes":                TransformChange,
}
