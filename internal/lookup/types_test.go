package lookup_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/rvlookup/internal/lookup"
)

func TestSearchCriteria_Validate(t *testing.T) {
	tests := []struct {
		name     string
		criteria lookup.SearchCriteria
		wantErr  string
	}{
		{name: "complete", criteria: smith},
		{name: "no format checks", criteria: lookup.SearchCriteria{LastName: "x", Last4SSN: "abc", DateOfBirth: "tomorrow"}},
		{name: "all blank", criteria: lookup.SearchCriteria{LastName: " ", Last4SSN: "\t"}, wantErr: "missing lastName, ssn, dob"},
		{name: "dob only", criteria: lookup.SearchCriteria{LastName: "Smith", Last4SSN: "1234"}, wantErr: "missing dob"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.criteria.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, lookup.ErrInvalidCriteria)
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestSearchCriteria_Normalize(t *testing.T) {
	got := lookup.SearchCriteria{LastName: "  Smith\n", Last4SSN: " 1234", DateOfBirth: "01/01/1980 "}.Normalize()
	assert.Equal(t, smith, got)
}
