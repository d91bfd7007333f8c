package htmltext

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStrip(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "hello", "hello"},
		{"breaks", "line one<br>line two<br/>line three", "line one\nline two\nline three"},
		{"anchors", `see <a href="https://example.com">this work</a> please`, "see this work please"},
		{"entities", "fish &amp; chips", "fish & chips"},
		{"nested", "<div><p>first</p><p>second</p></div>", "firstsecond"},
		{"blank runs", "a<br><br><br>b", "a\nb"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, Strip(tc.in))
		})
	}
}
