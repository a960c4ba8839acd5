package adhoc_test

import (
	"reflect"
	"testing"

	"github.com/truleado/truleado-sub002/internal/adhoc"
)

func TestKeywordParser(t *testing.T) {
	cases := []struct {
		query string
		want  adhoc.Parsed
	}{
		{
			"people looking for a CRM in r/startups and r/SaaS",
			adhoc.Parsed{Communities: []string{"startups", "SaaS"}, Terms: []string{"people looking for a CRM in and"}},
		},
		{
			"invoice tool r/smallbusiness, /r/freelance/",
			adhoc.Parsed{Communities: []string{"smallbusiness", "freelance"}, Terms: []string{"invoice tool"}},
		},
		{
			"r/startups R/Startups",
			adhoc.Parsed{Communities: []string{"startups"}},
		},
		{
			"best CRM?",
			adhoc.Parsed{Terms: []string{"best CRM"}},
		},
		{"", adhoc.Parsed{}},
		{" ?! ", adhoc.Parsed{}},
	}
	for _, tc := range cases {
		t.Run(tc.query, func(t *testing.T) {
			got := adhoc.KeywordParser{}.Parse(tc.query)
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("Parse(%q) = %+v, want %+v", tc.query, got, tc.want)
			}
		})
	}
}
