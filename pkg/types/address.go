package types

import "strings"

// Customer is the contact captured at checkout.
type Customer struct {
	Email     string `json:"email" validate:"omitempty,email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// FullName joins first and last name, skipping blanks.
func (c Customer) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(c.FirstName) + " " + strings.TrimSpace(c.LastName))
}

// ShippingAddress is the delivery destination captured at checkout.
type ShippingAddress struct {
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	Address1    string `json:"address_1" validate:"required"`
	Address2    string `json:"address_2,omitempty"`
	City        string `json:"city" validate:"required"`
	Province    string `json:"province,omitempty"`
	PostalCode  string `json:"postal_code" validate:"required"`
	CountryCode string `json:"country_code" validate:"required,country"`
	Phone       string `json:"phone,omitempty"`
}
