package condition

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Condition
		wantErr bool
	}{
		{
			name: "single group single metric",
			raw:  `[["m1"]]`,
			want: Condition{{"m1"}},
		},
		{
			name: "or of ands",
			raw:  `[["m1","m2"],["m3"]]`,
			want: Condition{{"m1", "m2"}, {"m3"}},
		},
		{
			name: "trims identifiers",
			raw:  ` [[" m1 "]] `,
			want: Condition{{"m1"}},
		},
		{name: "empty string", raw: "", wantErr: true},
		{name: "not json", raw: "m1 AND m2", wantErr: true},
		{name: "null", raw: "null", wantErr: true},
		{name: "empty outer list", raw: "[]", wantErr: true},
		{name: "empty group", raw: `[["m1"],[]]`, wantErr: true},
		{name: "blank identifier", raw: `[["m1","  "]]`, wantErr: true},
		{name: "flat list", raw: `["m1","m2"]`, wantErr: true},
		{name: "numeric identifiers", raw: `[[1,2]]`, wantErr: true},
		{name: "object", raw: `{"or":[["m1"]]}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrMalformed))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
