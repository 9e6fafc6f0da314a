package extraction

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLooksLikeMarkup(t *testing.T) {
	tests := map[string]bool{
		"<html><body>x</body></html>": true,
		"line<BR>line":                true,
		"<div>a</div>":                true,
		"<P>para":                     true,
		"<TABLE><tr><td>x</td></tr>":  true,
		"<td>Planta:</td>":            true,
		"Planta: Sur":                 false,
		"a < b and c > d":             false,
		"":                            false,
	}
	for in, want := range tests {
		assert.Equal(t, want, LooksLikeMarkup(in), in)
	}
}

func TestMarkupToText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "breaks and paragraphs",
			in:   "<p>Área: Patio 3</p><br>Operador: Juan Pérez",
			want: "Área: Patio 3\nOperador: Juan Pérez",
		},
		{
			name: "entities and nbsp",
			in:   "<div>Planta:&nbsp;Sur</div><div>Zona: &Aacute;rea&nbsp;1 &amp; 2</div>",
			want: "Planta: Sur\nZona: Área 1 & 2",
		},
		{
			name: "script and style dropped",
			in:   "<html><head><style>p{color:red}</style></head><body><script>var a = 1;</script><p>Lugar: Mina</p></body></html>",
			want: "Lugar: Mina",
		},
		{
			name: "table cells separated",
			in:   "<table><tr><td>Sede:</td><td>Norte</td></tr><tr><td>DNI:</td><td>123</td></tr></table>",
			want: "Sede: Norte\nDNI: 123",
		},
		{
			name: "whitespace and blank lines collapse",
			in:   "<div>  a \t  b  </div>\n\n\n<div>\n  c</div>",
			want: "a b\nc",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MarkupToText(tt.in))
		})
	}
}
