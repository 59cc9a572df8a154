// Package highlight turns Lisp source text into a tree of typed spans for styled rendering.
//
// Highlighting is lexical only: a chroma lexer classifies tokens and parentheses are folded
// into nested form nodes. The transform is total. Input the lexer cannot reproduce exactly
// (invalid UTF-8, a lexer error or panic) degrades to a single unstyled leaf, so concatenating
// the leaves of any Markup always yields the original text.
package highlight
