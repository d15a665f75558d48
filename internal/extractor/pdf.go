package extractor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// extractPDF returns one unit per page. Pages whose content stream cannot be
// read or holds no text (scans, images) yield "".
func extractPDF(ctx context.Context, path string) (units []string, err error) {
	defer func() {
		if p := recover(); p != nil {
			units, err = nil, fmt.Errorf("pdf parser panic: %v", p)
		}
	}()

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	pdfCtx, err := api.ReadValidateAndOptimize(f, model.NewDefaultConfiguration())
	if err != nil {
		return nil, fmt.Errorf("pdfcpu read: %w", err)
	}

	units = make([]string, 0, pdfCtx.PageCount)
	for pageNr := 1; pageNr <= pdfCtx.PageCount; pageNr++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		units = append(units, pageText(pdfCtx, pageNr))
	}
	return units, nil
}

func pageText(pdfCtx *model.Context, pageNr int) string {
	r, err := pdfcpu.ExtractPageContent(pdfCtx, pageNr)
	if err != nil || r == nil {
		return ""
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return ""
	}
	return textFromContentStream(data)
}

// textFromContentStream walks a page content stream and collects the strings
// shown by the text operators (Tj, TJ, ', "). Positioning operators that
// move to a new line produce line breaks.
func textFromContentStream(data []byte) string {
	s := &streamScanner{data: data}
	var out strings.Builder
	var operands []any

	for {
		tok, kind := s.next()
		if kind == tokEOF {
			break
		}
		switch kind {
		case tokString, tokNumber, tokArray:
			operands = append(operands, tok)
			continue
		case tokOther:
			continue
		}

		op := tok.(string)
		switch op {
		case "Tj":
			out.WriteString(lastString(operands))
		case "TJ":
			if len(operands) > 0 {
				if arr, ok := operands[len(operands)-1].([]any); ok {
					out.WriteString(arrayText(arr))
				}
			}
		case "'", "\"":
			out.WriteByte('\n')
			out.WriteString(lastString(operands))
		case "T*", "ET":
			out.WriteByte('\n')
		case "Td", "TD":
			if len(operands) >= 2 {
				if ty, ok := operands[len(operands)-1].(float64); ok && ty != 0 {
					out.WriteByte('\n')
					break
				}
			}
			out.WriteByte(' ')
		case "ID":
			s.skipInlineImage()
		}
		operands = operands[:0]
	}

	return tidyLines(out.String())
}

func lastString(operands []any) string {
	for i := len(operands) - 1; i >= 0; i-- {
		if str, ok := operands[i].(string); ok {
			return str
		}
	}
	return ""
}

// arrayText joins the strings of a TJ array. Large negative kerning
// adjustments are word gaps.
func arrayText(arr []any) string {
	var sb strings.Builder
	for _, el := range arr {
		switch v := el.(type) {
		case string:
			sb.WriteString(v)
		case float64:
			if v <= -200 {
				sb.WriteByte(' ')
			}
		}
	}
	return sb.String()
}

func tidyLines(text string) string {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

type tokKind int

const (
	tokEOF tokKind = iota
	tokString
	tokNumber
	tokArray
	tokOperator
	tokOther
)

type streamScanner struct {
	data []byte
	pos  int
}

func isPDFSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t' || c == '\f' || c == 0
}

func isPDFDelimiter(c byte) bool {
	return bytes.IndexByte([]byte("()<>[]{}/%"), c) >= 0
}

func (s *streamScanner) next() (any, tokKind) {
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		switch {
		case isPDFSpace(c):
			s.pos++
		case c == '%':
			for s.pos < len(s.data) && s.data[s.pos] != '\n' && s.data[s.pos] != '\r' {
				s.pos++
			}
		case c == '(':
			return s.literalString(), tokString
		case c == '<':
			if s.pos+1 < len(s.data) && s.data[s.pos+1] == '<' {
				s.pos += 2
				return nil, tokOther
			}
			return s.hexString(), tokString
		case c == '>':
			s.pos++
			if s.pos < len(s.data) && s.data[s.pos] == '>' {
				s.pos++
			}
			return nil, tokOther
		case c == '[':
			s.pos++
			return s.array(), tokArray
		case c == ']' || c == '{' || c == '}':
			s.pos++
			return nil, tokOther
		case c == '/':
			s.pos++
			s.word()
			return nil, tokOther
		default:
			w := s.word()
			if w == "" {
				s.pos++
				return nil, tokOther
			}
			if f, err := strconv.ParseFloat(w, 64); err == nil {
				return f, tokNumber
			}
			return w, tokOperator
		}
	}
	return nil, tokEOF
}

func (s *streamScanner) word() string {
	start := s.pos
	for s.pos < len(s.data) && !isPDFSpace(s.data[s.pos]) && !isPDFDelimiter(s.data[s.pos]) {
		s.pos++
	}
	return string(s.data[start:s.pos])
}

func (s *streamScanner) array() []any {
	var arr []any
	for s.pos < len(s.data) {
		for s.pos < len(s.data) && isPDFSpace(s.data[s.pos]) {
			s.pos++
		}
		if s.pos < len(s.data) && s.data[s.pos] == ']' {
			s.pos++
			return arr
		}
		tok, kind := s.next()
		switch kind {
		case tokEOF:
			return arr
		case tokString, tokNumber:
			arr = append(arr, tok)
		}
	}
	return arr
}

func (s *streamScanner) literalString() string {
	s.pos++ // (
	var raw []byte
	depth := 1
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		s.pos++
		switch c {
		case '\\':
			if s.pos >= len(s.data) {
				break
			}
			e := s.data[s.pos]
			s.pos++
			switch e {
			case 'n':
				raw = append(raw, '\n')
			case 'r':
				raw = append(raw, '\r')
			case 't':
				raw = append(raw, '\t')
			case 'b':
				raw = append(raw, '\b')
			case 'f':
				raw = append(raw, '\f')
			case '\r', '\n':
				// line continuation
			default:
				if e >= '0' && e <= '7' {
					val := int(e - '0')
					for i := 0; i < 2 && s.pos < len(s.data) && s.data[s.pos] >= '0' && s.data[s.pos] <= '7'; i++ {
						val = val*8 + int(s.data[s.pos]-'0')
						s.pos++
					}
					raw = append(raw, byte(val))
				} else {
					raw = append(raw, e)
				}
			}
		case '(':
			depth++
			raw = append(raw, c)
		case ')':
			depth--
			if depth == 0 {
				return decodePDFText(raw)
			}
			raw = append(raw, c)
		default:
			raw = append(raw, c)
		}
	}
	return decodePDFText(raw)
}

func (s *streamScanner) hexString() string {
	s.pos++ // <
	var digits []byte
	for s.pos < len(s.data) && s.data[s.pos] != '>' {
		if !isPDFSpace(s.data[s.pos]) {
			digits = append(digits, s.data[s.pos])
		}
		s.pos++
	}
	s.pos++ // >
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	raw := make([]byte, 0, len(digits)/2)
	for i := 0; i+1 < len(digits); i += 2 {
		b, err := strconv.ParseUint(string(digits[i:i+2]), 16, 8)
		if err != nil {
			return ""
		}
		raw = append(raw, byte(b))
	}
	return decodePDFText(raw)
}

// skipInlineImage jumps over binary inline image data up to the EI operator.
func (s *streamScanner) skipInlineImage() {
	idx := bytes.Index(s.data[s.pos:], []byte("EI"))
	for idx >= 0 {
		at := s.pos + idx
		before := at == 0 || isPDFSpace(s.data[at-1])
		after := at+2 >= len(s.data) || isPDFSpace(s.data[at+2])
		if before && after {
			s.pos = at + 2
			return
		}
		next := bytes.Index(s.data[at+2:], []byte("EI"))
		if next < 0 {
			break
		}
		idx = at + 2 + next - s.pos
	}
	s.pos = len(s.data)
}

// decodePDFText handles UTF-16BE strings (with BOM); everything else is read
// as single-byte PDFDocEncoding, which matches Latin-1 for printable text.
func decodePDFText(raw []byte) string {
	if len(raw) >= 2 && raw[0] == 0xFE && raw[1] == 0xFF {
		u := make([]uint16, 0, (len(raw)-2)/2)
		for i := 2; i+1 < len(raw); i += 2 {
			u = append(u, uint16(raw[i])<<8|uint16(raw[i+1]))
		}
		return string(utf16.Decode(u))
	}
	runes := make([]rune, len(raw))
	for i, b := range raw {
		runes[i] = rune(b)
	}
	return string(runes)
}
