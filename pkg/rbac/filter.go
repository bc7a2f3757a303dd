package rbac

// Columns restricted by the scope filter builder
const (
	FieldOrganizationID = "organization_id"
	FieldDepartmentID   = "department_id"
	FieldCreatedBy      = "created_by"
	FieldAssignedTo     = "assigned_to"
)

// Operator compares a column with a bound value
type Operator string

const (
	OpEqual Operator = "="
)

// Match is how the predicates of a Filter combine
type Match string

const (
	MatchAll Match = "all"
	MatchAny Match = "any"
)

// Predicate is one column comparison. Value is always bound as a parameter.
type Predicate struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value"`
}

// Filter is a declarative row restriction. An empty filter means unrestricted.
type Filter struct {
	Match      Match       `json:"match"`
	Predicates []Predicate `json:"predicates"`
}

// IsEmpty reports whether the filter restricts nothing
func (f Filter) IsEmpty() bool {
	return len(f.Predicates) == 0
}

// BuildScopeFilter converts a scope into the row restriction for a user
func BuildScopeFilter(userID, organizationID int64, departmentID *int64, scope Scope) Filter {
	switch scope {
	case ScopeAll:
		return Filter{Match: MatchAll}
	case ScopeOrganization:
		return organizationFilter(organizationID)
	case ScopeDepartment:
		if departmentID == nil {
			return organizationFilter(organizationID)
		}
		return Filter{
			Match: MatchAll,
			Predicates: []Predicate{
				{Field: FieldOrganizationID, Operator: OpEqual, Value: organizationID},
				{Field: FieldDepartmentID, Operator: OpEqual, Value: *departmentID},
			},
		}
	case ScopeOwn:
		return ownFilter(userID)
	default:
		return organizationFilter(organizationID)
	}
}

func organizationFilter(organizationID int64) Filter {
	return Filter{
		Match: MatchAll,
		Predicates: []Predicate{
			{Field: FieldOrganizationID, Operator: OpEqual, Value: organizationID},
		},
	}
}

func ownFilter(userID int64) Filter {
	return Filter{
		Match: MatchAny,
		Predicates: []Predicate{
			{Field: FieldCreatedBy, Operator: OpEqual, Value: userID},
			{Field: FieldAssignedTo, Operator: OpEqual, Value: userID},
		},
	}
}
