package php

import (
	"strings"
)

// TypeKind classifies a single type token as reported by the evidence collector
type TypeKind int

const (
	// KindClass is any token that may name a class or interface
	KindClass TypeKind = iota
	// KindNative is a scalar type that can never be dereferenced as an object
	KindNative
	// KindString is kept apart from the natives: any class with __toString satisfies it
	KindString
	// KindUninformative carries no constraint (mixed, array, analysis artifacts)
	KindUninformative
	// KindSynthetic is an expression label produced by the analyzer, e.g. "$x->foo" or "a.b"
	KindSynthetic
	// KindEmpty is the empty token left behind by a trailing or doubled '|'
	KindEmpty
)

func (k TypeKind) String() string {
	switch k {
	case KindClass:
		return "class"
	case KindNative:
		return "native"
	case KindString:
		return "string"
	case KindUninformative:
		return "uninformative"
	case KindSynthetic:
		return "synthetic"
	case KindEmpty:
		return "empty"
	default:
		return "unknown"
	}
}

// Token names are matched exactly. The evidence collector already normalizes
// casing, and "ANY" is its own marker for an untyped value.
var nativeTypes = map[string]bool{
	"int":     true,
	"bool":    true,
	"boolean": true,
	"float":   true,
}

var uninformativeTypes = map[string]bool{
	"any":   true,
	"ANY":   true,
	"mixed": true,
	"array": true,
	"null":  true,
}

// ClassifyType returns the kind of a single (non-union) type token
func ClassifyType(token string) TypeKind {
	switch {
	case token == "":
		return KindEmpty
	case nativeTypes[token]:
		return KindNative
	case token == "string":
		return KindString
	case uninformativeTypes[token]:
		return KindUninformative
	case strings.Contains(token, ".") || strings.Contains(token, "->"):
		return KindSynthetic
	default:
		return KindClass
	}
}

// IsNativeType reports whether token is one of the scalar types int, bool, boolean or float
func IsNativeType(token string) bool {
	return nativeTypes[token]
}

// IsUsefulType reports whether token can constrain the set of classes.
// Only uninformative and synthetic tokens are rejected; natives, string and
// the empty token all count as evidence.
func IsUsefulType(token string) bool {
	switch ClassifyType(token) {
	case KindUninformative, KindSynthetic:
		return false
	default:
		return true
	}
}

// SplitUnion splits a union type string like "string|Foo|" into its tokens.
// Order and duplicates are preserved, and so are empty tokens.
func SplitUnion(typeName string) []string {
	return strings.Split(typeName, "|")
}
