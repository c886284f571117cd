package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		name      string
		src       string
		expectErr bool
		expected  cty.Type
	}{
		{name: "string", src: "string", expected: cty.String},
		{name: "number", src: "number", expected: cty.Number},
		{name: "bool", src: "bool", expected: cty.Bool},
		{name: "any", src: "any", expected: cty.DynamicPseudoType},
		{name: "list of numbers", src: "list(number)", expected: cty.List(cty.Number)},
		{name: "nested collections", src: "map(list(set(string)))", expected: cty.Map(cty.List(cty.Set(cty.String)))},
		{name: "optional keeps inner type", src: "optional(string)", expected: cty.String},
		{
			name:     "object",
			src:      "object({ url = string, retries = optional(number) })",
			expected: cty.ObjectWithOptionalAttrs(map[string]cty.Type{"url": cty.String, "retries": cty.Number}, []string{"retries"}),
		},
		{name: "error - unknown keyword", src: "integer", expectErr: true},
		{name: "error - unknown constructor", src: "tuple(string)", expectErr: true},
		{name: "error - two args", src: "map(string, number)", expectErr: true},
		{name: "error - object without literal", src: "object(string)", expectErr: true},
		{name: "error - literal", src: `"string"`, expectErr: true},
		{name: "error - syntax", src: "list(", expectErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			d, err := Parse(tc.src)
			if tc.expectErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tc.expected.Equals(d.Type()), "expected %s, got %s", tc.expected.FriendlyName(), d.Type().FriendlyName())
		})
	}
}

func TestParse_OptionalIsNullable(t *testing.T) {
	d, err := Parse("optional(list(number))")
	require.NoError(t, err)
	assert.True(t, IsOptional(d))

	got, err := d.Convert(nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}
