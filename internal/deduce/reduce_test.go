package deduce

import (
	"errors"
	"slices"
	"testing"

	"github.com/quackphp/quack/internal/evidence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func duck(typeName string, reason evidence.Reason) evidence.Observation {
	return evidence.Observation{CondType: evidence.CondDuck, Type: typeName, Reason: reason}
}

func exact(typeName string, reason evidence.Reason) evidence.Observation {
	return evidence.Observation{CondType: evidence.CondExact, Type: typeName, Reason: reason}
}

func TestReduce(t *testing.T) {
	testCases := []struct {
		name          string
		available     []string
		observations  []evidence.Observation
		allTypes      []string
		allowedAll    []string
		allowedStrict []string
	}{
		{
			name:          "union with trailing separator",
			available:     []string{"Template", "InterestingClass"},
			observations:  []evidence.Observation{exact("string|Template|InterestingClass|", "Other")},
			allTypes:      []string{"string", "Template", "InterestingClass", ""},
			allowedAll:    []string{"InterestingClass", "Template"},
			allowedStrict: []string{"InterestingClass", "Template"},
		},
		{
			name:      "mixed docblock next to concrete classes",
			available: []string{"ClassA", "ClassB", "ClassC"},
			observations: []evidence.Observation{
				duck("ClassA", "MethodCall"),
				exact("ClassC", "InstanceOf"),
				duck("mixed", "DocBlock"),
			},
			allTypes:      []string{"ClassA", "ClassC", "mixed"},
			allowedAll:    []string{"ClassA", "ClassC"},
			allowedStrict: []string{"ClassA", "ClassC"},
		},
		{
			name:          "single field set",
			available:     []string{"SomeClass"},
			observations:  []evidence.Observation{duck("SomeClass", "FieldSet")},
			allTypes:      []string{"SomeClass"},
			allowedAll:    []string{"SomeClass"},
			allowedStrict: []string{"SomeClass"},
		},
		{
			name:          "only mixed falls back to every available class",
			available:     []string{"ClassB", "ClassA"},
			observations:  []evidence.Observation{duck("mixed", "DocBlock")},
			allTypes:      []string{"mixed"},
			allowedAll:    []string{},
			allowedStrict: []string{"ClassA", "ClassB"},
		},
		{
			name:      "synthetic labels fall back to every available class",
			available: []string{"Logger", "Stream"},
			observations: []evidence.Observation{
				duck("$this->logger", "FieldGet"),
				duck("Logger.getStream", "Return"),
				exact("ANY|null|array", "Other"),
			},
			allTypes:      []string{"$this->logger", "Logger.getStream", "ANY", "null", "array"},
			allowedAll:    []string{},
			allowedStrict: []string{"Logger", "Stream"},
		},
		{
			name:          "string with empty token constrains to nothing",
			available:     []string{"SomeClass"},
			observations:  []evidence.Observation{exact("string|", "Concat")},
			allTypes:      []string{"string", ""},
			allowedAll:    []string{},
			allowedStrict: []string{},
		},
		{
			name:          "native only",
			available:     []string{"SomeClass"},
			observations:  []evidence.Observation{exact("int", "Arithmetic"), duck("bool", "Condition")},
			allTypes:      []string{"int", "bool"},
			allowedAll:    []string{},
			allowedStrict: []string{},
		},
		{
			name:      "native wins over class only seen through __toString",
			available: []string{"Template"},
			observations: []evidence.Observation{
				exact("float", "Arithmetic"),
				duck("string|Template", evidence.ReasonHasToString),
			},
			allTypes:      []string{"float", "string", "Template"},
			allowedAll:    []string{},
			allowedStrict: []string{},
		},
		{
			name:          "__toString evidence is kept for audit only",
			available:     []string{"Template", "Other"},
			observations:  []evidence.Observation{duck("string|Template", evidence.ReasonHasToString)},
			allTypes:      []string{"string", "Template"},
			allowedAll:    []string{"Template"},
			allowedStrict: []string{},
		},
		{
			name:          "types outside the available set are dropped",
			available:     []string{"A"},
			observations:  []evidence.Observation{duck("A|B", "MethodCall"), duck("A", "FieldGet")},
			allTypes:      []string{"A", "B", "A"},
			allowedAll:    []string{"A"},
			allowedStrict: []string{"A"},
		},
		{
			name:          "no duck or exact evidence yields an empty allow-list",
			available:     []string{"A", "B"},
			observations:  []evidence.Observation{{CondType: "Cond", Type: "A", Reason: "Other"}},
			allTypes:      []string{},
			allowedAll:    []string{},
			allowedStrict: []string{},
		},
		{
			name:          "no evidence at all yields an empty allow-list",
			available:     []string{"A"},
			observations:  nil,
			allTypes:      []string{},
			allowedAll:    []string{},
			allowedStrict: []string{},
		},
		{
			name:          "empty class name never survives the fallback",
			available:     []string{"", "A", "A"},
			observations:  []evidence.Observation{duck("mixed", "DocBlock")},
			allTypes:      []string{"mixed"},
			allowedAll:    []string{},
			allowedStrict: []string{"A"},
		},
		{
			name:          "empty token never matches an empty available class",
			available:     []string{"", "A"},
			observations:  []evidence.Observation{exact("A|", "Other")},
			allTypes:      []string{"A", ""},
			allowedAll:    []string{"A"},
			allowedStrict: []string{"A"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			d := Reduce(tc.available, tc.observations)

			require.Equal(t, Deduced, d.Verdict, "unexpected verdict %s", d.Verdict)
			assert.NoError(t, d.Err())
			assert.Equal(t, tc.allTypes, d.AllTypes)
			assert.Equal(t, tc.allowedAll, d.AllowedAll)
			assert.Equal(t, tc.allowedStrict, d.AllowedStrict)
		})
	}
}

func TestReduce_DynamicCallLeaks(t *testing.T) {
	testCases := []struct {
		name         string
		observations []evidence.Observation
	}{
		{
			name:         "only dynamic call",
			observations: []evidence.Observation{duck("SomeClass", evidence.ReasonDynamicCall)},
		},
		{
			name: "dynamic call after class evidence",
			observations: []evidence.Observation{
				exact("SomeClass", "InstanceOf"),
				duck("ANY", evidence.ReasonDynamicCall),
			},
		},
		{
			name: "dynamic call wins over inconsistent evidence",
			observations: []evidence.Observation{
				exact("int", "Arithmetic"),
				exact("SomeClass", "InstanceOf"),
				duck("SomeClass", evidence.ReasonDynamicCall),
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			d := Reduce([]string{"SomeClass"}, tc.observations)

			assert.Equal(t, Leaked, d.Verdict)
			assert.ErrorIs(t, d.Err(), ErrLeak)
			assert.Nil(t, d.AllTypes)
			assert.Nil(t, d.AllowedStrict)
		})
	}
}

func TestReduce_UntypedDynamicCallIsIgnored(t *testing.T) {
	d := Reduce([]string{"SomeClass"}, []evidence.Observation{
		{CondType: "Cond", Type: "SomeClass", Reason: evidence.ReasonDynamicCall},
		duck("SomeClass", "FieldSet"),
	})

	require.Equal(t, Deduced, d.Verdict)
	assert.Equal(t, []string{"SomeClass"}, d.AllowedStrict)
}

func TestReduce_NativeAndClassIsInconsistent(t *testing.T) {
	d := Reduce([]string{"SomeClass", "Other"}, []evidence.Observation{
		exact("int", "Arithmetic"),
		duck("SomeClass", "MethodCall"),
	})

	require.Equal(t, Inconsistent, d.Verdict)
	assert.Equal(t, []string{"SomeClass"}, d.Conflict)
	assert.Nil(t, d.AllowedStrict)

	var inconsistent *InconsistentEvidenceError
	require.True(t, errors.As(d.Err(), &inconsistent))
	assert.Equal(t, []string{"SomeClass"}, inconsistent.Conflict)
	assert.Contains(t, inconsistent.Error(), "SomeClass")
}

func TestReduce_OrderInsensitive(t *testing.T) {
	available := []string{"A", "B", "C", "Template"}
	observations := []evidence.Observation{
		duck("A|B", "MethodCall"),
		exact("mixed", "DocBlock"),
		duck("string|Template", evidence.ReasonHasToString),
		duck("B|C|", "FieldGet"),
		{CondType: "Cond", Type: "D", Reason: "Other"},
	}

	expected := Reduce(available, observations)
	require.Equal(t, Deduced, expected.Verdict)

	reversed := slices.Clone(observations)
	slices.Reverse(reversed)
	rotated := append(slices.Clone(observations[2:]), observations[:2]...)

	for _, permutation := range [][]evidence.Observation{reversed, rotated} {
		d := Reduce(available, permutation)
		assert.Equal(t, expected.AllowedAll, d.AllowedAll)
		assert.Equal(t, expected.AllowedStrict, d.AllowedStrict)
		assert.ElementsMatch(t, expected.AllTypes, d.AllTypes)
	}
}

func TestVerdictString(t *testing.T) {
	assert.Equal(t, "deduced", Deduced.String())
	assert.Equal(t, "leaked", Leaked.String())
	assert.Equal(t, "inconsistent", Inconsistent.String())
	assert.Equal(t, "unknown", Verdict(42).String())
}
