package products_test

import (
	"reflect"
	"testing"

	"github.com/truleado/truleado-sub002/internal/products"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		name string
		in   []string
		want []string
	}{
		{"plain", []string{"startups", "SaaS"}, []string{"startups", "SaaS"}},
		{"prefixes", []string{"r/startups", "/r/SaaS/", "R/smallbusiness"}, []string{"startups", "SaaS", "smallbusiness"}},
		{"duplicates", []string{"startups", "r/Startups", " startups "}, []string{"startups"}},
		{"blanks", []string{"", "  ", "r/"}, []string{}},
		{"nil", nil, []string{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := products.Normalize(tc.in); !reflect.DeepEqual(got, tc.want) {
				t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
