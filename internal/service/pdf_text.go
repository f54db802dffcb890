package service

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// TextDecoder turns stored document bytes into plain text.
type TextDecoder interface {
	Decode(data []byte) (string, error)
}

var errNotText = errors.New("content is neither PDF nor UTF-8 text")

// DocumentDecoder reads PDF page content streams with pdfcpu and passes
// plain UTF-8 text through unchanged.
type DocumentDecoder struct {
	conf *model.Configuration
}

// NewDocumentDecoder creates a decoder with relaxed PDF validation.
func NewDocumentDecoder() *DocumentDecoder {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &DocumentDecoder{conf: conf}
}

// Decode implements TextDecoder.
func (d *DocumentDecoder) Decode(data []byte) (string, error) {
	if bytes.HasPrefix(bytes.TrimLeft(data, " \t\r\n"), []byte("%PDF-")) {
		return d.decodePDF(data)
	}
	if !utf8.Valid(data) {
		return "", errNotText
	}
	return normalizeText(string(data)), nil
}

func (d *DocumentDecoder) decodePDF(data []byte) (string, error) {
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), d.conf)
	if err != nil {
		return "", fmt.Errorf("read pdf: %w", err)
	}

	var sb strings.Builder
	for page := 1; page <= ctx.PageCount; page++ {
		r, err := pdfcpu.ExtractPageContent(ctx, page)
		if err != nil {
			return "", fmt.Errorf("page %d content: %w", page, err)
		}
		if r == nil {
			continue
		}
		content, err := io.ReadAll(r)
		if err != nil {
			return "", fmt.Errorf("page %d content: %w", page, err)
		}
		sb.WriteString(contentStreamText(content))
		sb.WriteString("\n")
	}
	return normalizeText(sb.String()), nil
}

// contentStreamText collects the string operands of the text showing
// operators (Tj, TJ, ' and ") in a page content stream.
func contentStreamText(content []byte) string {
	var out strings.Builder
	var operands []string
	s := content
	i := 0

	for i < len(s) {
		c := s[i]
		switch {
		case c == '%':
			for i < len(s) && s[i] != '\n' && s[i] != '\r' {
				i++
			}
		case c == '(':
			str, n := readLiteralString(s[i:])
			operands = append(operands, str)
			i += n
		case c == '<' && i+1 < len(s) && s[i+1] == '<':
			i += 2
		case c == '>' && i+1 < len(s) && s[i+1] == '>':
			i += 2
		case c == '<':
			str, n := readHexString(s[i:])
			operands = append(operands, str)
			i += n
		case c == '[':
			str, n := readTextArray(s[i:])
			operands = append(operands, str)
			i += n
		case isRegular(c):
			j := i
			for j < len(s) && isRegular(s[j]) {
				j++
			}
			tok := string(s[i:j])
			i = j

			switch tok {
			case "Tj", "TJ":
				out.WriteString(strings.Join(operands, ""))
			case "'", "\"":
				out.WriteString("\n")
				out.WriteString(strings.Join(operands, ""))
			case "Td", "TD", "T*":
				out.WriteString("\n")
			case "ET":
				out.WriteString("\n")
			case "ID":
				if k := bytes.Index(s[i:], []byte("EI")); k >= 0 {
					i += k + 2
				} else {
					i = len(s)
				}
			}
			if !isNumber(tok) {
				operands = operands[:0]
			}
		default:
			i++
		}
	}
	return out.String()
}

func isRegular(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n', '\f', 0, '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return false
	}
	return true
}

func isNumber(tok string) bool {
	_, err := strconv.ParseFloat(tok, 64)
	return err == nil
}

// readLiteralString parses "(...)" starting at s[0] and returns the decoded
// string and the number of bytes consumed.
func readLiteralString(s []byte) (string, int) {
	var sb strings.Builder
	depth := 0
	i := 0
	for i < len(s) {
		c := s[i]
		switch c {
		case '(':
			if depth > 0 {
				sb.WriteByte(c)
			}
			depth++
		case ')':
			depth--
			if depth == 0 {
				return latin1(sb.String()), i + 1
			}
			sb.WriteByte(c)
		case '\\':
			i++
			if i >= len(s) {
				break
			}
			switch e := s[i]; e {
			case 'n':
				sb.WriteByte('\n')
			case 'r':
				sb.WriteByte('\r')
			case 't':
				sb.WriteByte('\t')
			case 'b', 'f':
			case '\r', '\n':
				if e == '\r' && i+1 < len(s) && s[i+1] == '\n' {
					i++
				}
			default:
				if e >= '0' && e <= '7' {
					j := i
					for j < len(s) && j < i+3 && s[j] >= '0' && s[j] <= '7' {
						j++
					}
					v, _ := strconv.ParseUint(string(s[i:j]), 8, 8)
					sb.WriteByte(byte(v))
					i = j - 1
				} else {
					sb.WriteByte(e)
				}
			}
		default:
			sb.WriteByte(c)
		}
		i++
	}
	return latin1(sb.String()), len(s)
}

func readHexString(s []byte) (string, int) {
	end := bytes.IndexByte(s, '>')
	if end < 0 {
		return "", len(s)
	}
	var digits []byte
	for _, c := range s[1:end] {
		if unicode.Is(unicode.ASCII_Hex_Digit, rune(c)) {
			digits = append(digits, c)
		}
	}
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	buf := make([]byte, 0, len(digits)/2)
	for k := 0; k < len(digits); k += 2 {
		v, _ := strconv.ParseUint(string(digits[k:k+2]), 16, 8)
		buf = append(buf, byte(v))
	}
	return latin1(string(buf)), end + 1
}

// readTextArray parses a TJ array, inserting a space for large negative
// kerning adjustments, which typically separate words.
func readTextArray(s []byte) (string, int) {
	var sb strings.Builder
	i := 1
	for i < len(s) {
		c := s[i]
		switch {
		case c == ']':
			return sb.String(), i + 1
		case c == '(':
			str, n := readLiteralString(s[i:])
			sb.WriteString(str)
			i += n
		case c == '<':
			str, n := readHexString(s[i:])
			sb.WriteString(str)
			i += n
		case c == '-' || c == '.' || (c >= '0' && c <= '9'):
			j := i + 1
			for j < len(s) && (s[j] == '.' || (s[j] >= '0' && s[j] <= '9')) {
				j++
			}
			if v, err := strconv.ParseFloat(string(s[i:j]), 64); err == nil && v < -200 {
				sb.WriteByte(' ')
			}
			i = j
		default:
			i++
		}
	}
	return sb.String(), len(s)
}

// latin1 widens raw string bytes to runes.
func latin1(raw string) string {
	runes := make([]rune, len(raw))
	for i := 0; i < len(raw); i++ {
		runes[i] = rune(raw[i])
	}
	return string(runes)
}

// normalizeText drops control characters and collapses runs of blank space
// while keeping line breaks.
func normalizeText(s string) string {
	var sb strings.Builder
	lastSpace, lastNewline := false, true
	for _, r := range s {
		switch {
		case r == '\n' || r == '\r':
			if !lastNewline {
				sb.WriteByte('\n')
			}
			lastNewline, lastSpace = true, true
		case unicode.IsSpace(r):
			if !lastSpace {
				sb.WriteByte(' ')
			}
			lastSpace = true
		case unicode.IsPrint(r):
			sb.WriteRune(r)
			lastSpace, lastNewline = false, false
		}
	}
	return strings.TrimSpace(sb.String())
}
