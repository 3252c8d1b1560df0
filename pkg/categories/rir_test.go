package categories

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/sudorandom/flowscope/pkg/utils"
)

func TestRangeToPrefixes(t *testing.T) {
	tests := []struct {
		start string
		count uint32
		want  []string
	}{
		{"1.0.0.0", 256, []string{"1.0.0.0/24"}},
		{"1.0.0.0", 768, []string{"1.0.0.0/23", "1.0.2.0/24"}},
		{"1.0.1.0", 512, []string{"1.0.1.0/24", "1.0.2.0/24"}},
		{"0.0.0.0", 1 << 24, []string{"0.0.0.0/8"}},
		{"10.0.0.5", 1, []string{"10.0.0.5/32"}},
	}
	for _, tt := range tests {
		start, err := utils.ParseIPv4(tt.start)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(tt.want, rangeToPrefixes(start, tt.count)); diff != "" {
			t.Errorf("rangeToPrefixes(%s, %d) (-want +got):\n%s", tt.start, tt.count, diff)
		}
	}
}

func TestParseDelegated(t *testing.T) {
	data := strings.Join([]string{
		"2|ripencc|20240101|1|19830705|20240101|+0100",
		"ripencc|*|ipv4|*|1|summary",
		"ripencc|DE|ipv4|2.16.0.0|512|20100712|allocated",
		"ripencc|DE|ipv6|2001:608::|32|20000426|allocated",
		"ripencc|NL|ipv4|5.101.96.0|2048|20120405|allocated",
		"ripencc||ipv4|5.0.0.0|256||available",
	}, "\n")
	got, err := ParseDelegated(strings.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	want := map[string][]string{
		"country:Germany":     {"2.16.0.0/23"},
		"country:Netherlands": {"5.101.96.0/21"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseDelegated (-want +got):\n%s", diff)
	}
}
