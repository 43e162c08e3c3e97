package validator

// InputKind is the syntactic class of a raw query input.
type InputKind int

const (
	KindInvalid InputKind = iota
	KindIdentifier
	KindName
)

func (k InputKind) String() string {
	switch k {
	case KindIdentifier:
		return "identifier"
	case KindName:
		return "name"
	default:
		return "invalid"
	}
}

// DefaultNameSuffix is the reserved suffix of resolvable names.
const DefaultNameSuffix = ".eth"

// Classify decides how a trimmed input should be handled. Identifier shape
// takes precedence over name shape.
func Classify(input, suffix string) InputKind {
	switch {
	case IsValidIdentifier(input):
		return KindIdentifier
	case IsName(input, suffix):
		return KindName
	default:
		return KindInvalid
	}
}
