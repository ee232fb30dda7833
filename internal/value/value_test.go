package value

import "testing"

func TestTruthy(t *testing.T) {
	cases := []struct {
		v    Value
		want bool
	}{
		{NewNil(), false},
		{NewBool(false), false},
		{NewBool(true), true},
		{NewNumber(0), false},
		{NewNumber(-0), false},
		{NewNumber(1), true},
		{NewString(""), true},
		{NewString("false"), true},
	}
	for _, c := range cases {
		if got := c.v.Truthy(); got != c.want {
			t.Errorf("Truthy(%s) = %v, want %v", c.v.String(), got, c.want)
		}
	}
}

func TestEqual(t *testing.T) {
	if !Equal(NewNumber(1), NewNumber(1)) {
		t.Error("1 should equal 1")
	}
	if Equal(NewNumber(1), NewString("1")) {
		t.Error("number 1 should not equal string \"1\"")
	}
	if !Equal(NewNil(), NewNil()) {
		t.Error("nil should equal nil")
	}
	if Equal(NewBool(true), NewBool(false)) {
		t.Error("true should not equal false")
	}
}

func TestStringFormatting(t *testing.T) {
	cases := []struct {
		v    Value
		want string
	}{
		{NewNil(), "nil"},
		{NewBool(true), "true"},
		{NewBool(false), "false"},
		{NewNumber(7), "7"},
		{NewNumber(3.14), "3.14"},
		{NewString("hi"), "hi"},
	}
	for _, c := range cases {
		if got := c.v.String(); got != c.want {
			t.Errorf("String() = %q, want %q", got, c.want)
		}
	}
}
