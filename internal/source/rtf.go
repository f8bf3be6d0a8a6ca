package source

import (
	"strconv"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// Destinations whose content is metadata rather than document text.
var rtfSkipDestinations = map[string]bool{
	"fonttbl": true, "colortbl": true, "stylesheet": true, "info": true, "pict": true,
	"object": true, "header": true, "headerl": true, "headerr": true, "footer": true,
	"footerl": true, "footerr": true, "listtable": true, "listoverridetable": true,
	"themedata": true, "colorschememapping": true, "datastore": true, "latentstyles": true,
	"xmlnstbl": true, "rsidtbl": true, "generator": true, "filetbl": true, "revtbl": true,
}

var rtfSymbols = map[string]string{
	"par": "\n", "line": "\n", "sect": "\n\n", "page": "\n\n", "row": "\n", "cell": "\t", "tab": "\t",
	"emdash": "—", "endash": "–", "bullet": "•",
	"lquote": "‘", "rquote": "’", "ldblquote": "“", "rdblquote": "”",
}

type rtfGroup struct {
	skip bool
	uc   int
}

// StripRTF returns the plain text of an RTF document. Codepage bytes are
// decoded as Windows-1252 and \u escapes as Unicode.
func StripRTF(s string) string {
	var b strings.Builder
	stack := []rtfGroup{{uc: 1}}
	fallback := 0

	emit := func(r rune) {
		if fallback > 0 {
			fallback--
			return
		}
		if !stack[len(stack)-1].skip {
			b.WriteRune(r)
		}
	}
	emitString := func(str string) {
		if !stack[len(stack)-1].skip {
			b.WriteString(str)
		}
	}

	for i := 0; i < len(s); {
		switch c := s[i]; c {
		case '{':
			stack = append(stack, stack[len(stack)-1])
			i++
			continue
		case '}':
			if len(stack) > 1 {
				stack = stack[:len(stack)-1]
			}
			fallback = 0
			i++
			continue
		case '\r', '\n':
			i++
			continue
		default:
			if c != '\\' {
				emit(charmap.Windows1252.DecodeByte(c))
				i++
				continue
			}
		}

		i++
		if i >= len(s) {
			break
		}
		n := s[i]
		switch {
		case n == '\\' || n == '{' || n == '}':
			emit(rune(n))
			i++
		case n == '\'':
			if i+2 < len(s) {
				if v, err := strconv.ParseUint(s[i+1:i+3], 16, 8); err == nil {
					emit(charmap.Windows1252.DecodeByte(byte(v)))
				}
			}
			i += 3
		case n == '*':
			stack[len(stack)-1].skip = true
			i++
		case n == '~':
			emit(' ')
			i++
		case isASCIILetter(n):
			j := i
			for j < len(s) && isASCIILetter(s[j]) {
				j++
			}
			word := s[i:j]
			k := j
			if k < len(s) && s[k] == '-' {
				k++
			}
			for k < len(s) && s[k] >= '0' && s[k] <= '9' {
				k++
			}
			param := s[j:k]
			if k < len(s) && s[k] == ' ' {
				k++
			}
			i = k

			switch {
			case rtfSkipDestinations[word]:
				stack[len(stack)-1].skip = true
			case word == "uc":
				if v, err := strconv.Atoi(param); err == nil && v >= 0 {
					stack[len(stack)-1].uc = v
				}
			case word == "u":
				if v, err := strconv.Atoi(param); err == nil {
					if v < 0 {
						v += 65536
					}
					fallback = 0
					emit(rune(v))
					fallback = stack[len(stack)-1].uc
				}
			default:
				if sym, ok := rtfSymbols[word]; ok {
					emitString(sym)
				}
			}
		default:
			// Other control symbols (\-, \_, \|, ...) carry no text.
			i++
		}
	}
	return strings.TrimSpace(b.String())
}

func isASCIILetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
