package descriptor

// Parse parses a method descriptor, or a single type token as a return-only
// signature.
func Parse(s string) (*Signature, error) {
	if len(s) > 0 && s[0] == '(' {
		return ParseMethod(s)
	}
	t, err := ParseType(s)
	if err != nil {
		return nil, err
	}
	return &Signature{Return: t, ReturnOnly: true}, nil
}

// ParseMethod parses a method descriptor "(P*)R".
func ParseMethod(s string) (*Signature, error) {
	p := &parser{input: s}
	if !p.consume('(') {
		return nil, p.fail("method descriptor must begin with '('")
	}
	sig := &Signature{}
	for {
		if p.done() {
			return nil, p.fail("unterminated parameter list")
		}
		if p.consume(')') {
			break
		}
		t, err := p.fieldType()
		if err != nil {
			return nil, err
		}
		sig.Params = append(sig.Params, t)
	}
	if p.consume('V') {
		sig.Return = Type{Kind: Void}
	} else {
		t, err := p.fieldType()
		if err != nil {
			return nil, err
		}
		sig.Return = t
	}
	if !p.done() {
		return nil, p.fail("trailing characters after return type")
	}
	return sig, nil
}

// ParseType parses a single field type token. "V" is accepted so that a
// return-only signature can be void.
func ParseType(s string) (Type, error) {
	p := &parser{input: s}
	var t Type
	if p.consume('V') {
		t = Type{Kind: Void}
	} else {
		var err error
		if t, err = p.fieldType(); err != nil {
			return Type{}, err
		}
	}
	if !p.done() {
		return Type{}, p.fail("trailing characters after type")
	}
	return t, nil
}

type parser struct {
	input string
	pos   int
}

func (p *parser) done() bool { return p.pos >= len(p.input) }

func (p *parser) consume(c byte) bool {
	if !p.done() && p.input[p.pos] == c {
		p.pos++
		return true
	}
	return false
}

func (p *parser) fail(reason string) error {
	return &MalformedSignatureError{Input: p.input, Offset: p.pos, Reason: reason}
}

func (p *parser) fieldType() (Type, error) {
	if p.done() {
		return Type{}, p.fail("expected type")
	}
	c := Kind(p.input[p.pos])
	switch c {
	case Byte, Char, Double, Float, Int, Long, Short, Boolean:
		p.pos++
		return Type{Kind: c}, nil
	case Object:
		start := p.pos + 1
		end := start
		for end < len(p.input) && p.input[end] != ';' {
			switch p.input[end] {
			case '.', '[', '(', ')':
				p.pos = end
				return Type{}, p.fail("illegal character in class name")
			}
			end++
		}
		if end >= len(p.input) {
			return Type{}, p.fail("unterminated class name")
		}
		if end == start {
			return Type{}, p.fail("empty class name")
		}
		p.pos = end + 1
		return Type{Kind: Object, ClassName: p.input[start:end]}, nil
	case Array:
		p.pos++
		elem, err := p.fieldType()
		if err != nil {
			return Type{}, err
		}
		return ArrayOf(elem), nil
	default:
		return Type{}, p.fail("unexpected type character '" + string(rune(c)) + "'")
	}
}
