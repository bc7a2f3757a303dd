package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildScopeFilter(t *testing.T) {
	dept := int64(30)

	tests := []struct {
		name  string
		scope Scope
		dept  *int64
		want  Filter
	}{
		{
			name:  "all is unrestricted",
			scope: ScopeAll,
			dept:  &dept,
			want:  Filter{Match: MatchAll},
		},
		{
			name:  "organization",
			scope: ScopeOrganization,
			dept:  &dept,
			want: Filter{Match: MatchAll, Predicates: []Predicate{
				{Field: FieldOrganizationID, Operator: OpEqual, Value: int64(20)},
			}},
		},
		{
			name:  "department",
			scope: ScopeDepartment,
			dept:  &dept,
			want: Filter{Match: MatchAll, Predicates: []Predicate{
				{Field: FieldOrganizationID, Operator: OpEqual, Value: int64(20)},
				{Field: FieldDepartmentID, Operator: OpEqual, Value: int64(30)},
			}},
		},
		{
			name:  "department without department degrades to organization",
			scope: ScopeDepartment,
			want: Filter{Match: MatchAll, Predicates: []Predicate{
				{Field: FieldOrganizationID, Operator: OpEqual, Value: int64(20)},
			}},
		},
		{
			name:  "own",
			scope: ScopeOwn,
			dept:  &dept,
			want: Filter{Match: MatchAny, Predicates: []Predicate{
				{Field: FieldCreatedBy, Operator: OpEqual, Value: int64(10)},
				{Field: FieldAssignedTo, Operator: OpEqual, Value: int64(10)},
			}},
		},
		{
			name:  "unknown scope restricts to organization",
			scope: Scope(99),
			want: Filter{Match: MatchAll, Predicates: []Predicate{
				{Field: FieldOrganizationID, Operator: OpEqual, Value: int64(20)},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildScopeFilter(10, 20, tt.dept, tt.scope)
			assert.Equal(t, tt.want, got)
		})
	}
}
