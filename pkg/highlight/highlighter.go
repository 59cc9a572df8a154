package highlight

import (
	"log/slog"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/svoctor/lisper-go/internal/logging"
)

// DefaultLexer is the chroma lexer used for Lisp source.
const DefaultLexer = "common-lisp"

// DefaultMaxBytes bounds the input that gets tokenized. Larger texts are rendered unstyled.
const DefaultMaxBytes = 256 * 1024

// Highlighter converts source text into Markup. It is stateless and safe for concurrent use.
type Highlighter struct {
	lexerName string
	tokenise  func(text string) ([]chroma.Token, error)
	maxBytes  int
	logger    *slog.Logger
}

// Option configures a Highlighter.
type Option func(*Highlighter)

// WithLexer selects a chroma lexer by name or alias (e.g. "scheme", "clojure").
// Unknown names fall back to the default Lisp lexer.
func WithLexer(name string) Option {
	return func(h *Highlighter) {
		h.lexerName = name
	}
}

// WithMaxBytes sets the size above which input is rendered unstyled.
func WithMaxBytes(n int) Option {
	return func(h *Highlighter) {
		h.maxBytes = n
	}
}

// WithLogger configures a logger for degraded-input diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Highlighter) {
		h.logger = logger
	}
}

// New creates a Highlighter.
func New(opts ...Option) *Highlighter {
	h := &Highlighter{
		lexerName: DefaultLexer,
		maxBytes:  DefaultMaxBytes,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}

	lexer := lexers.Get(h.lexerName)
	if lexer == nil {
		h.logger.Warn("Unknown lexer, using default", "lexer", h.lexerName)
		h.lexerName = DefaultLexer
		lexer = lexers.Get(DefaultLexer)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	h.tokenise = func(text string) ([]chroma.Token, error) {
		// EnsureLF is left off so CRLF input survives the round trip.
		it, err := lexer.Tokenise(&chroma.TokeniseOptions{State: "root"}, text)
		if err != nil {
			return nil, err
		}
		return it.Tokens(), nil
	}
	return h
}

// Lexer returns the name of the lexer in use.
func (h *Highlighter) Lexer() string {
	return h.lexerName
}

var defaultHighlighter = New()

// Highlight highlights text with the default Lisp lexer.
func Highlight(text string) *Markup {
	return defaultHighlighter.Highlight(text)
}

// Highlight converts text into Markup. It never fails: input that cannot be tokenized
// losslessly is returned as a single unstyled leaf.
func (h *Highlighter) Highlight(text string) (m *Markup) {
	if text == "" {
		return &Markup{Root: &Node{Kind: KindRoot}, Balanced: true}
	}
	if h.maxBytes > 0 && len(text) > h.maxBytes {
		return plain(text)
	}

	defer func() {
		if r := recover(); r != nil {
			h.logger.Warn("Lexer panicked, rendering unstyled", "panic", r, "size", len(text))
			m = plain(text)
		}
	}()

	tokens, err := h.tokenise(text)
	if err != nil {
		h.logger.Debug("Tokenise failed, rendering unstyled", "err", err, "size", len(text))
		return plain(text)
	}
	tokens = reconcile(text, tokens)
	if tokens == nil {
		h.logger.Debug("Token stream does not reproduce input, rendering unstyled", "size", len(text))
		return plain(text)
	}
	return build(tokens)
}

// reconcile checks that tokens reproduce text exactly. A trailing newline added by the
// lexer is trimmed; any other mismatch yields nil.
func reconcile(text string, tokens []chroma.Token) []chroma.Token {
	var b strings.Builder
	b.Grow(len(text))
	for _, tok := range tokens {
		b.WriteString(tok.Value)
	}
	joined := b.String()

	switch {
	case joined == text:
		return tokens
	case joined == text+"\n" && len(tokens) > 0:
		last := &tokens[len(tokens)-1]
		last.Value = strings.TrimSuffix(last.Value, "\n")
		if last.Value == "" {
			tokens = tokens[:len(tokens)-1]
		}
		return tokens
	}
	return nil
}

// build folds a token stream into a tree, nesting every parenthesized form.
func build(tokens []chroma.Token) *Markup {
	root := &Node{Kind: KindRoot}
	stack := []*Node{root}
	openers := []string{""} // opener of each form on stack
	balanced := true

	appendLeaf := func(tok chroma.Token, kind Kind) {
		top := stack[len(stack)-1]
		top.Children = append(top.Children, &Node{
			Kind:  kind,
			Class: chroma.StandardTypes[tok.Type],
			Text:  tok.Value,
			token: tok.Type,
		})
	}

	for _, tok := range tokens {
		if tok.Value == "" {
			continue
		}
		for _, piece := range splitParens(tok) {
			isPunct := isDelimiter(piece.Type)
			switch {
			case isPunct && isOpen(piece.Value):
				form := &Node{Kind: KindForm}
				top := stack[len(stack)-1]
				top.Children = append(top.Children, form)
				stack = append(stack, form)
				openers = append(openers, piece.Value)
				appendLeaf(piece, KindParen)
			case isPunct && isClose(piece.Value) && len(stack) > 1 && closes(openers[len(openers)-1], piece.Value):
				appendLeaf(piece, KindParen)
				stack = stack[:len(stack)-1]
				openers = openers[:len(openers)-1]
			case isPunct && isClose(piece.Value):
				// No opener, or the wrong kind: ")" never closes "[". The form stays open.
				balanced = false
				piece.Type = chroma.Error
				appendLeaf(piece, KindError)
			default:
				appendLeaf(piece, classify(piece.Type))
			}
		}
	}

	if len(stack) > 1 {
		balanced = false
	}
	return &Markup{Root: root, Balanced: balanced}
}
