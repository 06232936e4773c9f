package workflow

// Operator is a condition comparison operator.
type Operator string

const (
	OpEquals      Operator = "Equals"
	OpNotEquals   Operator = "NotEquals"
	OpGreaterThan Operator = "GreaterThan"
	OpLessThan    Operator = "LessThan"
	OpGTE         Operator = "GTE"
	OpLTE         Operator = "LTE"
	OpContains    Operator = "Contains"
	OpNotContains Operator = "NotContains"
	OpIsEmpty     Operator = "IsEmpty"
	OpIsNotEmpty  Operator = "IsNotEmpty"
)

// RefKind tags whether a ValueRef reads a runtime variable or a literal.
type RefKind string

const (
	RefVariable RefKind = "Variable"
	RefLiteral  RefKind = "Literal"
)

// ValueRef is either a named runtime variable or an inline literal.
type ValueRef struct {
	Kind RefKind `json:"kind"`
	Name string  `json:"name,omitempty"` // when Kind == RefVariable

	// Literal payload; at most one is set when Kind == RefLiteral.
	LiteralString *string  `json:"string,omitempty"`
	LiteralNumber *float64 `json:"number,omitempty"`
	LiteralBool   *bool    `json:"bool,omitempty"`
}

// Condition is a single comparison evaluated against a RuntimeContext.
type Condition struct {
	Left     ValueRef `json:"left"`
	Operator Operator `json:"operator"`
	Right    ValueRef `json:"right,omitempty"`
}
