package highlight

import "github.com/alecthomas/chroma/v2"

// classify maps a chroma token type onto the coarser node kinds of the markup tree.
func classify(t chroma.TokenType) Kind {
	switch {
	case t == chroma.Error:
		return KindError
	case t.InCategory(chroma.Comment):
		return KindComment
	case t == chroma.LiteralStringSymbol:
		return KindKeyword
	case t.InSubCategory(chroma.LiteralString):
		return KindString
	case t.InSubCategory(chroma.LiteralNumber):
		return KindNumber
	case t.InCategory(chroma.Keyword):
		return KindKeyword
	case t == chroma.NameBuiltin, t == chroma.NameBuiltinPseudo, t == chroma.NameFunction:
		return KindBuiltin
	case t.InCategory(chroma.Name):
		return KindSymbol
	case t.InCategory(chroma.Literal):
		return KindSymbol
	case t.InCategory(chroma.Operator):
		return KindOperator
	case t.InCategory(chroma.Punctuation):
		return KindPunctuation
	case t == chroma.TextWhitespace:
		return KindWhitespace
	}
	return KindText
}

func isOpen(s string) bool  { return s == "(" || s == "[" }
func isClose(s string) bool { return s == ")" || s == "]" }

// closes reports whether closer matches opener.
func closes(opener, closer string) bool {
	return (opener == "(" && closer == ")") || (opener == "[" && closer == "]")
}

// isDelimiter reports whether a token may carry parens. Lisp lexers emit vector openers
// such as "#(" as operators.
func isDelimiter(t chroma.TokenType) bool {
	return t.InCategory(chroma.Punctuation) || t.InCategory(chroma.Operator)
}

// splitParens breaks delimiter tokens such as "))" or "#(" into single-delimiter pieces
// so every paren becomes its own leaf. Other tokens are returned unchanged.
func splitParens(tok chroma.Token) []chroma.Token {
	if !isDelimiter(tok.Type) || len(tok.Value) <= 1 {
		return []chroma.Token{tok}
	}
	var (
		pieces []chroma.Token
		start  int
	)
	for i, r := range tok.Value {
		if r != '(' && r != ')' && r != '[' && r != ']' {
			continue
		}
		if i > start {
			pieces = append(pieces, chroma.Token{Type: tok.Type, Value: tok.Value[start:i]})
		}
		pieces = append(pieces, chroma.Token{Type: tok.Type, Value: tok.Value[i : i+1]})
		start = i + 1
	}
	if start < len(tok.Value) {
		pieces = append(pieces, chroma.Token{Type: tok.Type, Value: tok.Value[start:]})
	}
	return pieces
}
