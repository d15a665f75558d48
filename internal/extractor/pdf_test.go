package extractor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTextFromContentStream(t *testing.T) {
	tests := []struct {
		name   string
		stream string
		want   string
	}{
		{
			name:   "Tj with line moves",
			stream: "BT /F1 12 Tf 72 712 Td (Jane Doe) Tj 0 -14 Td (Skills: Go, SQL) Tj ET",
			want:   "Jane Doe\nSkills: Go, SQL",
		},
		{
			name:   "TJ kerning gaps",
			stream: "BT [(Sen) 20 (ior) -300 (Engineer)] TJ ET",
			want:   "Senior Engineer",
		},
		{
			name:   "escapes and nested parens",
			stream: `BT (Go \(golang\) \050v1\051) Tj T* (tab\there) Tj ET`,
			want:   "Go (golang) (v1)\ntab here",
		},
		{
			name:   "quote operator starts a new line",
			stream: "BT (first) Tj (second) ' ET",
			want:   "first\nsecond",
		},
		{
			name:   "hex and utf16 strings",
			stream: "BT <4A616E65> Tj 0 -12 Td <FEFF00E9> Tj ET",
			want:   "Jane\né",
		},
		{
			name:   "graphics only",
			stream: "q 1 0 0 1 0 0 cm /Im0 Do Q",
			want:   "",
		},
		{
			name:   "inline image skipped",
			stream: "BI /W 2 /H 2 ID \x00\x01(Tj)\x02 EI BT (after) Tj ET",
			want:   "after",
		},
		{
			name:   "dictionaries and comments ignored",
			stream: "% comment (no) Tj\n/P <</MCID 0>> BDC BT (marked) Tj ET EMC",
			want:   "marked",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, textFromContentStream([]byte(tt.stream)))
		})
	}
}
