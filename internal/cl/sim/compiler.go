package sim

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Param is one declared kernel parameter.
type Param struct {
	Name     string
	Type     string
	Pointer  bool
	ElemSize int
}

// kernelDecl is a kernel entry point found in program source.
type kernelDecl struct {
	name   string
	params []Param
	line   int
}

var kernelPattern = regexp.MustCompile(`(?:__kernel|\bkernel)\s+void\s+([A-Za-z_]\w*)\s*\(`)

var scalarSizes = map[string]int{
	"char": 1, "uchar": 1, "bool": 1,
	"short": 2, "ushort": 2, "half": 2,
	"int": 4, "uint": 4, "float": 4,
	"long": 8, "ulong": 8, "double": 8,
	"size_t": 8,
}

var paramQualifiers = map[string]bool{
	"__global": true, "global": true,
	"__constant": true, "constant": true,
	"__local": true, "local": true,
	"__private": true, "private": true,
	"const": true, "restrict": true, "volatile": true,
	"__read_only": true, "__write_only": true, "unsigned": true,
}

// compile checks source for the structural errors a front end would reject
// and extracts kernel declarations. The returned log uses the usual
// "<source>:line:col: error: msg" shape and is empty on success.
func compile(source string) (map[string]*kernelDecl, string) {
	var diags []string
	report := func(offset int, format string, args ...any) {
		line, col := position(source, offset)
		diags = append(diags, fmt.Sprintf("<source>:%d:%d: error: %s", line, col, fmt.Sprintf(format, args...)))
	}

	stripped, ok := stripComments(source)
	if !ok {
		report(len(source), "unterminated /* comment")
	}
	checkBalance(stripped, report)

	kernels := make(map[string]*kernelDecl)
	for _, m := range kernelPattern.FindAllStringSubmatchIndex(stripped, -1) {
		name := stripped[m[2]:m[3]]
		open := m[1] - 1
		closeIdx := matching(stripped, open, '(', ')')
		if closeIdx < 0 {
			continue // reported by checkBalance
		}
		line, _ := position(source, m[0])
		decl := &kernelDecl{name: name, line: line}

		if rest := strings.TrimSpace(stripped[closeIdx+1:]); !strings.HasPrefix(rest, "{") {
			report(closeIdx+1, "expected function body after kernel declaration '%s'", name)
			continue
		}
		if prev, dup := kernels[name]; dup {
			report(m[2], "redefinition of kernel '%s' (previous definition on line %d)", name, prev.line)
			continue
		}

		paramList := strings.TrimSpace(stripped[open+1 : closeIdx])
		if paramList != "" && paramList != "void" {
			for _, raw := range strings.Split(paramList, ",") {
				p, err := parseParam(raw)
				if err != nil {
					report(open+1, "in kernel '%s': %v", name, err)
					continue
				}
				decl.params = append(decl.params, p)
			}
		}
		kernels[name] = decl
	}

	if len(diags) > 0 {
		return nil, strings.Join(diags, "\n") + "\n" + strconv.Itoa(len(diags)) + " error(s) generated.\n"
	}
	return kernels, ""
}

func parseParam(raw string) (Param, error) {
	text := strings.TrimSpace(raw)
	pointer := strings.Contains(text, "*")
	text = strings.ReplaceAll(text, "*", " ")

	var words []string
	for _, w := range strings.Fields(text) {
		if !paramQualifiers[w] {
			words = append(words, w)
		}
	}
	if len(words) != 2 {
		return Param{}, fmt.Errorf("malformed parameter %q", strings.TrimSpace(raw))
	}

	typ, name := words[0], words[1]
	size, ok := elemSize(typ)
	if !ok {
		return Param{}, fmt.Errorf("unknown type name '%s'", typ)
	}
	return Param{Name: name, Type: typ, Pointer: pointer, ElemSize: size}, nil
}

// elemSize resolves scalar and vector type sizes (float4, int2, ...).
func elemSize(typ string) (int, bool) {
	if size, ok := scalarSizes[typ]; ok {
		return size, true
	}
	i := len(typ)
	for i > 0 && typ[i-1] >= '0' && typ[i-1] <= '9' {
		i--
	}
	base, width := typ[:i], typ[i:]
	size, ok := scalarSizes[base]
	if !ok || width == "" {
		return 0, false
	}
	n, err := strconv.Atoi(width)
	if err != nil {
		return 0, false
	}
	switch n {
	case 2, 4, 8, 16:
		return size * n, true
	case 3:
		return size * 4, true
	}
	return 0, false
}

// stripComments blanks out comments while keeping offsets stable.
func stripComments(src string) (string, bool) {
	out := []byte(src)
	for i := 0; i < len(out); i++ {
		if out[i] != '/' || i+1 >= len(out) {
			continue
		}
		switch out[i+1] {
		case '/':
			for i < len(out) && out[i] != '\n' {
				out[i] = ' '
				i++
			}
		case '*':
			end := strings.Index(string(out[i+2:]), "*/")
			if end < 0 {
				return string(out[:i]), false
			}
			for j := i; j < i+2+end+2; j++ {
				if out[j] != '\n' {
					out[j] = ' '
				}
			}
			i += 2 + end + 1
		}
	}
	return string(out), true
}

func checkBalance(src string, report func(int, string, ...any)) {
	pairs := map[byte]byte{')': '(', '}': '{', ']': '['}
	type open struct {
		ch  byte
		pos int
	}
	var stack []open
	for i := 0; i < len(src); i++ {
		switch c := src[i]; c {
		case '(', '{', '[':
			stack = append(stack, open{c, i})
		case ')', '}', ']':
			if len(stack) == 0 || stack[len(stack)-1].ch != pairs[c] {
				report(i, "unexpected '%c'", c)
				continue
			}
			stack = stack[:len(stack)-1]
		}
	}
	for _, o := range stack {
		report(o.pos, "unmatched '%c'", o.ch)
	}
}

func matching(src string, openIdx int, openCh, closeCh byte) int {
	depth := 0
	for i := openIdx; i < len(src); i++ {
		switch src[i] {
		case openCh:
			depth++
		case closeCh:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func position(src string, offset int) (line, col int) {
	if offset > len(src) {
		offset = len(src)
	}
	line = 1 + strings.Count(src[:offset], "\n")
	col = offset - strings.LastIndex(src[:offset], "\n")
	return line, col
}
