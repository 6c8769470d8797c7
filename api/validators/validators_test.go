package validators

import (
	"net/http/httptest"
	"strings"
	"testing"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type addressBody struct {
	City        string `json:"city" validate:"required"`
	CountryCode string `json:"country_code" validate:"required,country"`
	Quantity    int    `json:"quantity,omitempty" validate:"omitempty,min=1"`
}

func decode(t *testing.T, body string) (addressBody, *pkgerrors.Error) {
	t.Helper()
	req := httptest.NewRequest("POST", "/", strings.NewReader(body))
	var dest addressBody
	err := DecodeJSONBody(req, &dest)
	if err == nil {
		return dest, nil
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	return dest, typed
}

func TestDecodeJSONBodyAcceptsValidObject(t *testing.T) {
	got, err := decode(t, `{"city":"Austin","country_code":"us"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.City != "Austin" || got.CountryCode != "us" {
		t.Fatalf("unexpected decode: %+v", got)
	}
}

func TestDecodeJSONBodyReportsFieldErrors(t *testing.T) {
	_, err := decode(t, `{"city":"","country_code":"USA","quantity":0}`)
	if err == nil {
		t.Fatal("expected error")
	}
	details, _ := err.Details().(map[string]string)
	if details["city"] != "is required" {
		t.Fatalf("city detail = %q", details["city"])
	}
	if details["country_code"] != "must be a two letter country code" {
		t.Fatalf("country detail = %q", details["country_code"])
	}
}

func TestDecodeJSONBodyRejectsMalformedInput(t *testing.T) {
	cases := map[string]string{
		"empty":         ``,
		"syntax":        `{"city":`,
		"unknown field": `{"city":"Austin","country_code":"US","admin":true}`,
		"wrong type":    `{"city":7,"country_code":"US"}`,
		"two objects":   `{"city":"A","country_code":"US"}{"city":"B","country_code":"US"}`,
	}
	for name, body := range cases {
		if _, err := decode(t, body); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}

	_, err := decode(t, `{"city":"Austin","country_code":"US","admin":true}`)
	details, _ := err.Details().(map[string]string)
	if details["admin"] != "is not allowed" {
		t.Fatalf("unknown field detail = %v", err.Details())
	}
}

func TestDecodeJSONBodyCapsSize(t *testing.T) {
	body := `{"city":"` + strings.Repeat("a", MaxBodyBytes) + `","country_code":"US"}`
	if _, err := decode(t, body); err == nil {
		t.Fatal("expected oversized body to fail")
	}
}

func TestQueryInt(t *testing.T) {
	req := httptest.NewRequest("GET", "/?limit=25&bad=x&big=1000", nil)
	if v, err := QueryInt(req, "limit", 50, 1, 200); err != nil || v != 25 {
		t.Fatalf("limit = %d, %v", v, err)
	}
	if v, err := QueryInt(req, "missing", 50, 1, 200); err != nil || v != 50 {
		t.Fatalf("default = %d, %v", v, err)
	}
	if _, err := QueryInt(req, "bad", 50, 1, 200); err == nil {
		t.Fatal("expected error for non-integer")
	}
	if _, err := QueryInt(req, "big", 50, 1, 200); err == nil {
		t.Fatal("expected error for out of range")
	}
}

func TestCleanText(t *testing.T) {
	cases := []struct {
		in   string
		max  int
		want string
	}{
		{"  Hoodie  ", 0, "Hoodie"},
		{"Star\tDust\n\nHoodie", 0, "Star Dust Hoodie"},
		{"bell\x07ring", 0, "bellring"},
		{"ñandú azul", 5, "ñandú"},
		{"ab cd", 3, "ab"},
		{"bad\xffutf8", 0, "badutf8"},
	}
	for _, tc := range cases {
		if got := CleanText(tc.in, tc.max); got != tc.want {
			t.Fatalf("CleanText(%q, %d) = %q, want %q", tc.in, tc.max, got, tc.want)
		}
	}
}
