package tinybasic

// parser walks the tokens of one statement. Expressions are integer valued;
// relations yield 1 for true and 0 for false.
type parser struct {
	lex  *Lexer
	cur  Token
	line int
	vars *[26]int
}

func newParser(stmt string, line int, vars *[26]int) *parser {
	p := &parser{lex: NewLexer(stmt), line: line, vars: vars}
	p.next()
	return p
}

func (p *parser) next() {
	p.cur = p.lex.NextToken()
}

func (p *parser) expect(t TokenType) error {
	if p.cur.Type != t {
		return syntaxError(p.line, "unexpected "+describe(p.cur))
	}
	p.next()
	return nil
}

func (p *parser) expectKeyword(kw string) error {
	if p.cur.Type != TOKEN_IDENTIFIER || p.cur.Value != kw {
		return syntaxError(p.line, kw+" expected")
	}
	p.next()
	return nil
}

func (p *parser) atEnd() bool { return p.cur.Type == TOKEN_EOF }

// variable consumes a single-letter variable and returns its slot.
func (p *parser) variable() (int, error) {
	if p.cur.Type != TOKEN_IDENTIFIER || len(p.cur.Value) != 1 {
		return 0, NewBASICError(ErrCategorySyntax, ErrExpectedVariable, p.line).WithDetail(describe(p.cur))
	}
	slot := int(p.cur.Value[0] - 'a')
	p.next()
	return slot, nil
}

// relation parses the lowest precedence level.
func (p *parser) relation() (int, error) {
	left, err := p.expr()
	if err != nil {
		return 0, err
	}
	for {
		op := p.cur.Type
		switch op {
		case TOKEN_EQ, TOKEN_NE, TOKEN_LT, TOKEN_LE, TOKEN_GT, TOKEN_GE:
		default:
			return left, nil
		}
		p.next()
		right, err := p.expr()
		if err != nil {
			return 0, err
		}
		var ok bool
		switch op {
		case TOKEN_EQ:
			ok = left == right
		case TOKEN_NE:
			ok = left != right
		case TOKEN_LT:
			ok = left < right
		case TOKEN_LE:
			ok = left <= right
		case TOKEN_GT:
			ok = left > right
		case TOKEN_GE:
			ok = left >= right
		}
		left = truth(ok)
	}
}

func (p *parser) expr() (int, error) {
	left, err := p.term()
	if err != nil {
		return 0, err
	}
	for {
		op := p.cur.Type
		if op != TOKEN_PLUS && op != TOKEN_MINUS && op != TOKEN_AND && op != TOKEN_OR {
			return left, nil
		}
		p.next()
		right, err := p.term()
		if err != nil {
			return 0, err
		}
		switch op {
		case TOKEN_PLUS:
			left += right
		case TOKEN_MINUS:
			left -= right
		case TOKEN_AND:
			left &= right
		case TOKEN_OR:
			left |= right
		}
	}
}

func (p *parser) term() (int, error) {
	left, err := p.factor()
	if err != nil {
		return 0, err
	}
	for {
		op := p.cur.Type
		if op != TOKEN_MULTIPLY && op != TOKEN_DIVIDE && op != TOKEN_MOD {
			return left, nil
		}
		p.next()
		right, err := p.factor()
		if err != nil {
			return 0, err
		}
		switch op {
		case TOKEN_MULTIPLY:
			left *= right
		case TOKEN_DIVIDE, TOKEN_MOD:
			if right == 0 {
				return 0, runtimeError(ErrDivisionByZero, p.line)
			}
			if op == TOKEN_DIVIDE {
				left /= right
			} else {
				left %= right
			}
		}
	}
}

func (p *parser) factor() (int, error) {
	switch p.cur.Type {
	case TOKEN_NUMBER:
		n := p.cur.NumVal
		p.next()
		return n, nil
	case TOKEN_MINUS:
		p.next()
		n, err := p.factor()
		return -n, err
	case TOKEN_PLUS:
		p.next()
		return p.factor()
	case TOKEN_LPAREN:
		p.next()
		n, err := p.relation()
		if err != nil {
			return 0, err
		}
		if p.cur.Type != TOKEN_RPAREN {
			return 0, NewBASICError(ErrCategorySyntax, ErrMissingParenthesis, p.line)
		}
		p.next()
		return n, nil
	case TOKEN_IDENTIFIER:
		slot, err := p.variable()
		if err != nil {
			return 0, err
		}
		return p.vars[slot], nil
	}
	return 0, syntaxError(p.line, "unexpected "+describe(p.cur))
}

func truth(b bool) int {
	if b {
		return 1
	}
	return 0
}

func describe(t Token) string {
	switch t.Type {
	case TOKEN_EOF:
		return "end of line"
	case TOKEN_STRING:
		return `"` + t.Value + `"`
	}
	return t.Value
}
