package validation

import (
	"errors"
	"testing"
)

func TestValidateDate_Valid(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"2017-08-23", "2017-08-23"},
		{"  2016-02-29 ", "2016-02-29"},
		{"2010-01-01", "2010-01-01"},
	}
	for _, tc := range tests {
		got, err := ValidateDate(tc.input)
		if err != nil {
			t.Errorf("ValidateDate(%q) error = %v", tc.input, err)
		}
		if got != tc.want {
			t.Errorf("ValidateDate(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestValidateDate_Empty(t *testing.T) {
	for _, in := range []string{"", "   ", "\t"} {
		if _, err := ValidateDate(in); !errors.Is(err, ErrDateEmpty) {
			t.Errorf("ValidateDate(%q) error = %v, want ErrDateEmpty", in, err)
		}
	}
}

func TestValidateDate_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"slashes", "2017/08/23"},
		{"us order", "08-23-2017"},
		{"no padding", "2017-8-23"},
		{"not a leap day", "2017-02-29"},
		{"month 13", "2017-13-01"},
		{"words", "yesterday"},
		{"timestamp", "2017-08-23T00:00:00Z"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ValidateDate(tc.input); !errors.Is(err, ErrDateFormat) {
				t.Errorf("ValidateDate(%q) error = %v, want ErrDateFormat", tc.input, err)
			}
		})
	}
}

func TestStruct(t *testing.T) {
	type sample struct {
		Mode string `validate:"oneof=literal range"`
	}
	if err := Struct(sample{Mode: "literal"}); err != nil {
		t.Errorf("Struct(valid) error = %v", err)
	}
	if err := Struct(sample{Mode: "inverted"}); err == nil {
		t.Error("Struct(invalid) error = nil, want oneof failure")
	}
}
